// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"go.bug.st/serial/enumerator"
)

func TestDescribePort(t *testing.T) {
	tests := []struct {
		port enumerator.PortDetails
		want string
	}{
		{enumerator.PortDetails{Name: "/dev/ttyS0"}, "/dev/ttyS0"},
		{
			enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"},
			"/dev/ttyUSB0  USB 1a86:7523",
		},
		{
			enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", SerialNumber: "A1", Product: "Scope"},
			"/dev/ttyACM0  USB 2341:0043  serial A1  Scope",
		},
	}
	for _, tt := range tests {
		if got := describePort(&tt.port); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}
