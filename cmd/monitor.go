// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI showing live waveforms and measurements",
	Long: `Monitor the scope via an interactive terminal UI.

Shows the control surface state, per-channel measurements (Vpp, Vmax, Vmin,
Vavg, Vrms, frequency, period, rise time), rolling averages and a waveform
trace of every enabled channel. Hardware button presses are executed as they
arrive and logged.

Keys mirror the hardware buttons:
  space  run/stop          e  trigger edge      c  cycle channels
  + / -  trigger level     a  auto-scale        z  auto-zero
  x      XY mode           h  history view      k  cursors
  1-3    toggle channel    s  save calibration  r  reset statistics
  ← / →  move cursor A (cursor mode) or select history entry (history mode)
  , / .  move cursor B

The connection is re-established automatically when it is lost.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	inst, err := newInstrument()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	disp := newDispatcher(inst, cfg.Calibration)
	logs := make(chan eventLogEntry, 100)
	pushLog := func(message string, isError bool) {
		select {
		case logs <- eventLogEntry{timestamp: time.Now(), message: message, isError: isError}:
		default:
		}
	}

	m := newMonitorModel(inst, disp, logs, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())

	acq := newAcquisition(inst, conn, connInfo)
	acq.onResult = func(res scope.Result) {
		for i, line := range disp.HandleEvents(res.Events) {
			pushLog(fmt.Sprintf("[%s] %s", scope.FormatButton(res.Events[i].Button), line), false)
		}
		for _, anomaly := range res.Anomalies {
			pushLog(anomaly.Message, true)
		}
	}
	acq.onLost = func() { p.Send(connectionLostMsg{}) }
	acq.onReconnect = func(info string) { p.Send(reconnectedMsg{connInfo: info}) }

	ctx, cancel := context.WithCancel(cmd.Context())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		acq.Run(ctx)
	}()

	_, err = p.Run()
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
