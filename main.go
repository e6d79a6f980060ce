// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Scopestat - Three-Channel Scope Stream Analyzer
//
// A CLI tool for decoding the framed byte stream of a three-channel scope
// front end into calibrated waveforms, control state and measurements.

package main

import (
	"os"

	"github.com/Thermoquad/scopestat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
