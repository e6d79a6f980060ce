// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/womat/debug"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Long: `List the serial ports of this machine.

USB ports are shown with vendor and product IDs, serial number and product
name where the platform reports them.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

// describePort renders one enumerated port
func describePort(p *enumerator.PortDetails) string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		s += "  serial " + p.SerialNumber
	}
	if p.Product != "" {
		s += "  " + p.Product
	}
	return s
}

func runPorts(cmd *cobra.Command, args []string) error {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		if len(details) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range details {
			fmt.Println(describePort(p))
		}
		return nil
	}

	debug.DebugLog.Printf("detailed port list unavailable: %v", err)
	names, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
