// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/spf13/cobra"
	"github.com/womat/debug"
)

var rawLogHex bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display scope frames as they arrive.

Each frame is shown with its decode timestamp and kind. Waveform frames show
the first and last reading of each channel, control frames show the
potentiometer readings and the buttons held down.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also dump undecoded bytes left in the buffer")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(cmd.Context(), func() { _ = conn.Close() })
	defer stop()

	fmt.Printf("Scopestat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := scope.NewDecoder()
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if cmd.Context().Err() != nil {
				return nil
			}
			if isConnectionLost(err) {
				debug.InfoLog.Printf("connection closed")
				return nil
			}
			debug.ErrorLog.Printf("read error: %v", err)
			time.Sleep(readRetryDelay)
			continue
		}

		decoder.Ingest(buf[:n])
		for _, frame := range decoder.Drain() {
			fmt.Print(scope.FormatFrame(frame))
			for _, anomaly := range scope.ValidateFrame(frame) {
				fmt.Printf("  [ANOMALY] %s\n", anomaly.Message)
			}
		}
		if rawLogHex && decoder.Buffered() > 0 {
			fmt.Printf("  [BUFFER] %d bytes pending: % X\n", decoder.Buffered(), head(decoder.GetRawBytes(), 16))
		}
	}
}

// head returns at most n leading bytes of b
func head(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
