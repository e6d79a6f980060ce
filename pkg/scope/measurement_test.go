// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"testing"
)

func squareWave(halfPeriod int, lo, hi float64) []float64 {
	data := make([]float64, SamplesPerChan)
	for i := range data {
		if (i/halfPeriod)%2 == 0 {
			data[i] = hi
		} else {
			data[i] = lo
		}
	}
	return data
}

func TestFrequency_SquareWave(t *testing.T) {
	tests := []struct {
		halfPeriod int
		rate       float64
	}{
		{10, 8000},
		{25, 8000},
		{5, 1000},
	}
	for _, tt := range tests {
		data := squareWave(tt.halfPeriod, 0, 5)
		expected := tt.rate / float64(2*tt.halfPeriod)
		if got := Frequency(data, tt.rate); !almostEqual(got, expected, 1e-9) {
			t.Errorf("half period %d at %v S/s: expected %v Hz, got %v", tt.halfPeriod, tt.rate, expected, got)
		}
	}
}

func TestFrequency_Degenerate(t *testing.T) {
	constant := make([]float64, SamplesPerChan)
	for i := range constant {
		constant[i] = 1.7
	}
	if got := Frequency(constant, DefaultRate); got != 0 {
		t.Errorf("Constant signal: expected 0 Hz, got %v", got)
	}

	// A single step crosses the mean once
	step := squareWave(150, 0, 5)
	if got := Frequency(step, DefaultRate); got != 0 {
		t.Errorf("Single crossing: expected 0 Hz, got %v", got)
	}
	if got := Frequency(nil, DefaultRate); got != 0 {
		t.Errorf("Empty window: expected 0 Hz, got %v", got)
	}
}

func TestRiseTime_Ramp(t *testing.T) {
	data := make([]float64, SamplesPerChan)
	for i := range data {
		data[i] = float64(i) * 5.0 / float64(SamplesPerChan-1)
	}
	// 10% is first reached at sample 20, 90% at sample 180
	expected := 160.0 / DefaultRate * 1e6
	if got := RiseTime(data, DefaultRate); !almostEqual(got, expected, 1e-6) {
		t.Errorf("Expected rise time %v µs, got %v", expected, got)
	}
}

func TestRiseTime_NoEdge(t *testing.T) {
	flat := make([]float64, SamplesPerChan)
	if got := RiseTime(flat, DefaultRate); got != 0 {
		t.Errorf("Flat signal: expected 0, got %v", got)
	}

	// Starts high: both thresholds are met at sample 0
	if got := RiseTime(squareWave(10, 0, 5), DefaultRate); got != 0 {
		t.Errorf("Instant edge: expected 0, got %v", got)
	}
}

func TestMeasure_Values(t *testing.T) {
	data := squareWave(10, 1, 3)
	m := Measure(data, DefaultRate)

	if m.Vmax != 3 || m.Vmin != 1 || m.Vpp != 2 {
		t.Errorf("Unexpected extremes: %+v", m)
	}
	if !almostEqual(m.Vavg, 2, 1e-12) {
		t.Errorf("Expected Vavg 2, got %v", m.Vavg)
	}
	// sqrt((1 + 9) / 2)
	if !almostEqual(m.Vrms, 2.2360679775, 1e-9) {
		t.Errorf("Expected Vrms 2.236, got %v", m.Vrms)
	}
	if !almostEqual(m.Frequency, 400, 1e-9) {
		t.Errorf("Expected 400 Hz, got %v", m.Frequency)
	}
	if !almostEqual(m.Period, 2.5, 1e-9) {
		t.Errorf("Expected period 2.5 ms, got %v", m.Period)
	}
}

// ============================================================
// Engine Tests
// ============================================================

func TestEngine_DisabledChannelsZero(t *testing.T) {
	var m SampleMatrix
	for ch := 0; ch < NumChannels; ch++ {
		copy(m[ch][:], squareWave(10, 0, 5))
	}

	e := NewEngine()
	set := e.Update(&m, AllChannels, DefaultRate)
	if set[1].Vpp != 5 {
		t.Fatalf("Expected Vpp 5 on CH2, got %v", set[1].Vpp)
	}

	set = e.Update(&m, Channels{true, false, true}, DefaultRate)
	if set[1] != (Measurement{}) {
		t.Errorf("Disabled channel should report zeros, got %+v", set[1])
	}
	avg := e.Averages()
	if avg.AverageFrequency[1] != 0 || avg.AverageVoltage[1] != 0 {
		t.Error("Disabled channel rolling averages should be cleared")
	}
	if !almostEqual(avg.AverageFrequency[0], 400, 1e-9) {
		t.Errorf("Expected CH1 average 400 Hz, got %v", avg.AverageFrequency[0])
	}
}

func TestEngine_ReenabledChannelKeepsHistory(t *testing.T) {
	var m SampleMatrix
	copy(m[1][:], squareWave(10, 0, 5))

	e := NewEngine()
	e.Update(&m, AllChannels, DefaultRate)
	e.Update(&m, Channels{true, false, true}, DefaultRate)

	// 200 Hz after re-enabling, averaged with the earlier 400 Hz window
	copy(m[1][:], squareWave(20, 0, 5))
	e.Update(&m, AllChannels, DefaultRate)

	avg := e.Averages()
	if !almostEqual(avg.Frequency[1], 200, 1e-9) {
		t.Errorf("Expected CH2 frequency 200 Hz, got %v", avg.Frequency[1])
	}
	if !almostEqual(avg.AverageFrequency[1], 300, 1e-9) {
		t.Errorf("Expected CH2 average 300 Hz, got %v", avg.AverageFrequency[1])
	}
}

func TestEngine_RollingAverages(t *testing.T) {
	e := NewEngine()
	var m SampleMatrix
	for frame := 0; frame < 12; frame++ {
		level := float64(frame%4) + 1
		for i := 0; i < SamplesPerChan; i++ {
			m[0][i] = level
		}
		e.Update(&m, Channels{true, false, false}, DefaultRate)
	}

	// Last 10 frames have levels 3 4 1 2 3 4 1 2 3 4
	avg := e.Averages()
	if !almostEqual(avg.AverageVoltage[0], 2.7, 1e-12) {
		t.Errorf("Expected rolling voltage 2.7, got %v", avg.AverageVoltage[0])
	}
	if avg.Voltage[0] != 4 {
		t.Errorf("Instantaneous voltage should be the last sample, got %v", avg.Voltage[0])
	}

	e.Reset()
	if e.Averages() != (Averages{}) || e.Measurements() != (MeasurementSet{}) {
		t.Error("Expected cleared engine after reset")
	}
}

func TestEngine_DoesNotModifyInput(t *testing.T) {
	var m SampleMatrix
	for i := 0; i < SamplesPerChan; i++ {
		m[2][i] = float64(i) / 100
	}
	before := m
	NewEngine().Update(&m, AllChannels, DefaultRate)
	if m != before {
		t.Error("Update must not modify the sample matrix")
	}
}
