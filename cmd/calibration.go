// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/womat/debug"
)

// saveCalibration writes the instrument snapshot as CBOR
func saveCalibration(inst *scope.Instrument, path string) error {
	data, err := scope.MarshalSnapshot(inst.Snapshot())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration %s: %w", path, err)
	}
	debug.DebugLog.Printf("calibration saved to %s", path)
	return nil
}

// loadCalibration restores a snapshot written by saveCalibration. A missing
// file is not an error, the instrument keeps its defaults.
func loadCalibration(inst *scope.Instrument, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		debug.InfoLog.Printf("no calibration at %s, using defaults", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read calibration %s: %w", path, err)
	}
	snap, err := scope.UnmarshalSnapshot(data)
	if err != nil {
		return fmt.Errorf("calibration %s: %w", path, err)
	}
	inst.Restore(snap)
	debug.InfoLog.Printf("calibration loaded from %s", path)
	return nil
}

// newInstrument builds an instrument from the configuration and restores the
// calibration file if one is configured
func newInstrument() (*scope.Instrument, error) {
	icfg, err := cfg.InstrumentConfig()
	if err != nil {
		return nil, err
	}
	inst := scope.NewInstrument(icfg)
	if cfg.Calibration != "" {
		if err := loadCalibration(inst, cfg.Calibration); err != nil {
			return nil, err
		}
	}
	return inst, nil
}
