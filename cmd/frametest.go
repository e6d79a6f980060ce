// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/spf13/cobra"
)

var (
	frameTestTimeout int
	frameTestKind    string
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a complete frame",
	Long: `Wait for a complete scope frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for a complete
frame of the requested kind. Bytes before the first marker are ignored.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a frame
  2 - Connection error

Useful for checking wiring and baud rate before running monitor.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().StringVar(&frameTestKind, "kind", "any", "Frame kind to wait for (any|waveform|control)")
}

// frameMatches reports whether f satisfies the --kind filter
func frameMatches(f *scope.Frame, kind string) bool {
	switch kind {
	case "waveform":
		return f.Kind() == scope.KindWaveform
	case "control":
		return f.Kind() == scope.KindControl
	default:
		return true
	}
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	switch frameTestKind {
	case "any", "waveform", "control":
	default:
		return fmt.Errorf("invalid frame kind %q", frameTestKind)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Scopestat - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for %s frame...\n\n", frameTestKind)

	decoder := scope.NewDecoder()
	frameChan := make(chan *scope.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, readBufferSize)
		total := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			total += n
			decoder.Ingest(buf[:n])
			for _, f := range decoder.Drain() {
				if frameMatches(f, frameTestKind) {
					fmt.Printf("(read %d bytes before the frame completed)\n", total)
					frameChan <- f
					return
				}
			}
		}
	}()

	select {
	case f := <-frameChan:
		fmt.Printf("SUCCESS: Received complete frame\n")
		fmt.Print(scope.FormatFrame(f))
		if anomalies := scope.ValidateFrame(f); len(anomalies) > 0 {
			for _, a := range anomalies {
				fmt.Printf("  WARNING: %s\n", a.Message)
			}
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No %s frame received within %d seconds\n", frameTestKind, frameTestTimeout)
		os.Exit(1)

	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}

	return nil
}
