// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/spf13/cobra"
	"github.com/womat/debug"
)

var (
	recordOutput   string
	recordFormat   string
	recordFrames   int
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record calibrated waveform windows to a file",
	Long: `Record every decoded waveform window to a parquet or CSV file.

Each window is written as 200 rows with the frame number, the sample index,
the time offset derived from the current time base, and the calibrated
voltage of each channel. Parquet files carry the control profile, the sample
rate and the start time as key/value metadata.

Recording stops after --frames windows, after --duration, or on Ctrl+C.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Output `FILE` (required)")
	recordCmd.Flags().StringVar(&recordFormat, "format", "parquet", "Output format (parquet|csv)")
	recordCmd.Flags().IntVar(&recordFrames, "frames", 0, "Stop after N waveform windows (0 = unlimited)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this duration (0 = unlimited)")
	_ = recordCmd.MarkFlagRequired("output")
}

// newRecorder opens path and wraps it in the recorder for format
func newRecorder(path, format string, inst *scope.Instrument) (scope.Recorder, error) {
	switch format {
	case "parquet", "csv":
	default:
		return nil, fmt.Errorf("invalid format %q", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	if format == "csv" {
		return scope.NewCSVRecorder(f), nil
	}
	return scope.NewParquetRecorder(f, map[string]string{
		"profile":     inst.Profile().Name,
		"sample_rate": strconv.FormatFloat(inst.SampleRate(), 'f', -1, 64),
		"started":     time.Now().UTC().Format(time.RFC3339),
	}), nil
}

// windowRecorder writes the waveform windows of each processing pass
type windowRecorder struct {
	inst  *scope.Instrument
	rec   scope.Recorder
	limit int

	mu      sync.Mutex
	written int
	err     error
	done    chan struct{}
}

func newWindowRecorder(inst *scope.Instrument, rec scope.Recorder, limit int) *windowRecorder {
	return &windowRecorder{inst: inst, rec: rec, limit: limit, done: make(chan struct{})}
}

// handle is called after every pass. History holds the newest windows last, so
// the last res.Waveforms entries are exactly the windows this pass applied.
func (w *windowRecorder) handle(res scope.Result) {
	if res.Waveforms == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil || w.full() {
		return
	}

	history := w.inst.History()
	n := min(res.Waveforms, len(history))
	seq := w.inst.Latest().Sequence
	tb := w.inst.Profile().TimeBaseSeconds(w.inst.Control().TimeBase)

	for i := len(history) - n; i < len(history); i++ {
		frame := seq - uint64(len(history)-1-i)
		if err := w.rec.WriteMatrix(frame, &history[i], tb); err != nil {
			w.err = err
			close(w.done)
			return
		}
		w.written++
		if w.full() {
			close(w.done)
			return
		}
	}
}

func (w *windowRecorder) full() bool {
	return w.limit > 0 && w.written >= w.limit
}

// Written returns the number of windows recorded so far
func (w *windowRecorder) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Err returns the first write error
func (w *windowRecorder) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordFrames < 0 {
		return fmt.Errorf("invalid frame count %d", recordFrames)
	}
	inst, err := newInstrument()
	if err != nil {
		return err
	}
	rec, err := newRecorder(recordOutput, recordFormat, inst)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		_ = rec.Close()
		return err
	}

	fmt.Printf("Scopestat - Record\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Output: %s (%s)\n", recordOutput, recordFormat)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	ctx := cmd.Context()
	if recordDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := newWindowRecorder(inst, rec, recordFrames)
	acq := newAcquisition(inst, conn, connInfo)
	acq.onResult = w.handle

	go func() {
		select {
		case <-w.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	acq.Run(ctx)

	closeErr := rec.Close()
	debug.InfoLog.Printf("recorded %d windows to %s in %s", w.Written(), recordOutput, time.Since(start).Round(time.Millisecond))
	fmt.Printf("Recorded %d windows in %s\n", w.Written(), formatUptime(uint64(time.Since(start).Milliseconds())))

	if err := w.Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", recordOutput, err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", recordOutput, closeErr)
	}
	return nil
}
