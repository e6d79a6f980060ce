// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/scopestat/pkg/scope"
)

func TestWindowRecorder_WritesEveryWindow(t *testing.T) {
	inst := scope.NewInstrument(scope.DefaultConfig())
	var buf bytes.Buffer
	rec := scope.NewCSVRecorder(&buf)
	w := newWindowRecorder(inst, rec, 0)

	// Two windows in a single pass are both recorded
	inst.Ingest(append(constantWaveform(0), constantWaveform(scope.ADCMax)...))
	w.handle(processed(t, inst, nil))
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	if w.Written() != 2 {
		t.Fatalf("Expected 2 windows, got %d", w.Written())
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1+2*scope.SamplesPerChan {
		t.Fatalf("Expected header and %d rows, got %d lines", 2*scope.SamplesPerChan, len(lines))
	}
	if lines[0] != "Time,CH1,CH2,CH3" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",0.0000,0.0000,0.0000") {
		t.Errorf("First window should be at 0 V, got %q", lines[1])
	}
	if !strings.HasSuffix(lines[len(lines)-1], ",5.0000,5.0000,5.0000") {
		t.Errorf("Second window should be at 5 V, got %q", lines[len(lines)-1])
	}
}

func TestWindowRecorder_Limit(t *testing.T) {
	inst := scope.NewInstrument(scope.DefaultConfig())
	var buf bytes.Buffer
	w := newWindowRecorder(inst, scope.NewCSVRecorder(&buf), 3)

	for i := 0; i < 5; i++ {
		w.handle(processed(t, inst, constantWaveform(512)))
	}

	if w.Written() != 3 {
		t.Errorf("Expected recording to stop at 3 windows, got %d", w.Written())
	}
	select {
	case <-w.done:
	default:
		t.Error("done should be closed once the limit is reached")
	}
}

func TestWindowRecorder_IgnoresControlOnlyPasses(t *testing.T) {
	inst := scope.NewInstrument(scope.DefaultConfig())
	var buf bytes.Buffer
	w := newWindowRecorder(inst, scope.NewCSVRecorder(&buf), 0)

	w.handle(processed(t, inst, scope.EncodeControlFrame(scope.ControlReading{})))
	if w.Written() != 0 {
		t.Errorf("Expected no windows, got %d", w.Written())
	}
}

func TestNewRecorder(t *testing.T) {
	inst := scope.NewInstrument(scope.DefaultConfig())
	dir := t.TempDir()

	if _, err := newRecorder(filepath.Join(dir, "x.bin"), "hdf5", inst); err == nil {
		t.Error("Expected error for unknown format")
	}

	path := filepath.Join(dir, "capture.parquet")
	rec, err := newRecorder(path, "parquet", inst)
	if err != nil {
		t.Fatalf("newRecorder failed: %v", err)
	}
	m := inst.Samples()
	if err := rec.WriteMatrix(1, &m, 0.001); err != nil {
		t.Fatalf("WriteMatrix failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) {
		t.Error("Expected parquet magic")
	}
}
