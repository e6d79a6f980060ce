// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
)

var frameStatsCmd = &cobra.Command{
	Use:   "frame_stats",
	Short: "Track frame rates, anomalies and measurements",
	Long: `Decode the stream and report frame statistics and anomalies.

This command validates each frame and detects:
  - Raw ADC readings above 1023 in waveform and control frames
  - Button flags other than 0 or 1
  - Decode passes skipped because the buffer was busy
  - Statistics and trends (frame rate, byte rate)

By default, only anomalies and button presses are displayed. Use --show-all to
also print the measurements of every processed window.

A statistics summary with the latest measurements is printed at the
configured interval.`,
	RunE: runFrameStats,
}

func init() {
	rootCmd.AddCommand(frameStatsCmd)
	frameStatsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show measurements of every window (not just anomalies)")
	frameStatsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runFrameStats(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("invalid stats interval %d", statsInterval)
	}
	inst, err := newInstrument()
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	fmt.Printf("Scopestat - Frame Statistics\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Profile: %s\n", inst.Profile().Name)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All windows\n")
	} else {
		fmt.Printf("Mode: Anomalies only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	disp := newDispatcher(inst, cfg.Calibration)

	// Output is serialized so result and statistics blocks do not interleave
	var out sync.Mutex

	acq := newAcquisition(inst, conn, connInfo)
	acq.onResult = func(res scope.Result) {
		out.Lock()
		defer out.Unlock()
		printResult(inst, disp, res)
	}
	acq.onLost = func() {
		out.Lock()
		defer out.Unlock()
		fmt.Printf("[%s] \033[1;31mCONNECTION LOST\033[0m reconnecting...\n\n", time.Now().Format("15:04:05.000"))
	}
	acq.onReconnect = func(info string) {
		out.Lock()
		defer out.Unlock()
		fmt.Printf("[%s] \033[1;32mRECONNECTED\033[0m %s\n\n", time.Now().Format("15:04:05.000"), info)
	}

	ctx := cmd.Context()
	done := make(chan struct{})
	go func() {
		defer close(done)
		acq.Run(ctx)
	}()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-done:
			stats := inst.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case <-statsTicker.C:
			stats := inst.Statistics()
			st := inst.Latest()
			out.Lock()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Print(scope.FormatControlState(st.Profile, st.Control))
			fmt.Print(scope.FormatMeasurements(st.Measurements, st.Averages, st.Enabled))
			fmt.Println()
			out.Unlock()
		}
	}
}

// printResult prints the anomalies and button presses of one processing pass
func printResult(inst *scope.Instrument, disp *dispatcher, res scope.Result) {
	timestamp := time.Now().Format("15:04:05.000")

	for i, anomaly := range res.Anomalies {
		fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %s\n", timestamp, anomaly.Type)
		fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, anomaly.Message)
		switch anomaly.Type {
		case scope.AnomalyRawOutOfRange:
			if raw, ok := anomaly.Details["raw"].(uint16); ok {
				fmt.Printf("    raw=%d (max %d), clamped on conversion\n", raw, scope.ADCMax)
			}
		case scope.AnomalyInvalidButton:
			if flag, ok := anomaly.Details["flag"].(uint8); ok {
				fmt.Printf("    flag=%d never counts as a press\n", flag)
			}
		}
		fmt.Printf("  >>> FRAME APPLIED <<<\n\n")
	}

	for i, line := range disp.HandleEvents(res.Events) {
		fmt.Printf("[%s] \033[1;32mBUTTON %s:\033[0m %s\n", timestamp, scope.FormatButton(res.Events[i].Button), line)
	}

	if showAll && res.Waveforms > 0 {
		st := inst.Latest()
		fmt.Printf("[%s] %d waveform(s), window #%d\n", timestamp, res.Waveforms, st.Sequence)
		fmt.Print(scope.FormatMeasurements(st.Measurements, st.Averages, st.Enabled))
		fmt.Println()
	}
}
