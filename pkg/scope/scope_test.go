// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"bytes"
	"math"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// constantRaw fills every sample of each channel with the given raw reading
func constantRaw(ch1, ch2, ch3 uint16) *[NumChannels][SamplesPerChan]uint16 {
	var raw [NumChannels][SamplesPerChan]uint16
	for i := 0; i < SamplesPerChan; i++ {
		raw[0][i] = ch1
		raw[1][i] = ch2
		raw[2][i] = ch3
	}
	return &raw
}

// squareRaw builds a full-scale square wave on every channel with the given half period in samples
func squareRaw(halfPeriod int) *[NumChannels][SamplesPerChan]uint16 {
	var raw [NumChannels][SamplesPerChan]uint16
	for ch := 0; ch < NumChannels; ch++ {
		for i := 0; i < SamplesPerChan; i++ {
			if (i/halfPeriod)%2 == 0 {
				raw[ch][i] = ADCMax
			}
		}
	}
	return &raw
}

func controlFrame(pots [NumPots]uint16, pressed ...int) []byte {
	r := ControlReading{Pots: pots}
	for _, b := range pressed {
		r.Buttons[b] = 1
	}
	return EncodeControlFrame(r)
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_SingleWaveformFrame(t *testing.T) {
	d := NewDecoder()
	d.Ingest(EncodeWaveformFrame(constantRaw(100, 200, 300)))

	frames := d.Drain()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0].Kind() != KindWaveform {
		t.Errorf("Expected WAVEFORM, got %s", frames[0].Kind())
	}
	if len(frames[0].Payload()) != WaveformPayload {
		t.Errorf("Expected payload length %d, got %d", WaveformPayload, len(frames[0].Payload()))
	}
	if got := RawSample(frames[0].Payload(), 17, 2); got != 300 {
		t.Errorf("Expected CH3 raw 300, got %d", got)
	}
	if d.Buffered() != 0 {
		t.Errorf("Expected empty buffer, got %d bytes", d.Buffered())
	}
}

func TestDecoder_FrameSplitAcrossIngests(t *testing.T) {
	d := NewDecoder()
	frame := EncodeWaveformFrame(constantRaw(1, 2, 3))

	d.Ingest(frame[:500])
	if frames := d.Drain(); len(frames) != 0 {
		t.Fatalf("Expected no frames from partial input, got %d", len(frames))
	}
	if d.Buffered() != 500 {
		t.Errorf("Partial frame should stay buffered, got %d bytes", d.Buffered())
	}

	d.Ingest(frame[500:])
	frames := d.Drain()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame after completion, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Payload(), frame[MarkerSize:]) {
		t.Error("Payload does not match encoded frame")
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	d := NewDecoder()
	frame := controlFrame([NumPots]uint16{10, 20, 30}, ButtonAutoZero)

	total := 0
	for _, b := range frame {
		d.Ingest([]byte{b})
		total += len(d.Drain())
	}
	if total != 1 {
		t.Errorf("Expected exactly 1 frame, got %d", total)
	}
}

func TestDecoder_LeadingGarbage(t *testing.T) {
	d := NewDecoder()
	d.Ingest([]byte{0x00, 0xAA, 0x13, 0x55, 0xCC})
	d.Ingest(EncodeWaveformFrame(constantRaw(7, 7, 7)))

	frames := d.Drain()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if d.Buffered() != 0 {
		t.Errorf("Garbage before a consumed frame should be dropped, %d bytes left", d.Buffered())
	}
}

func TestDecoder_PartialFrameKeepsPrefix(t *testing.T) {
	d := NewDecoder()
	garbage := []byte{0x01, 0x02, 0x03}
	frame := EncodeWaveformFrame(constantRaw(7, 7, 7))
	d.Ingest(garbage)
	d.Ingest(frame[:100])

	if frames := d.Drain(); len(frames) != 0 {
		t.Fatalf("Expected no frames, got %d", len(frames))
	}
	if d.Buffered() != len(garbage)+100 {
		t.Errorf("Expected buffer untouched at %d bytes, got %d", len(garbage)+100, d.Buffered())
	}
}

func TestDecoder_WaveformsBeforeControls(t *testing.T) {
	d := NewDecoder()
	d.Ingest(EncodeWaveformFrame(constantRaw(1, 1, 1)))
	d.Ingest(EncodeWaveformFrame(constantRaw(2, 2, 2)))
	d.Ingest(controlFrame([NumPots]uint16{1, 2, 3}))

	frames := d.Drain()
	kinds := make([]FrameKind, len(frames))
	for i, f := range frames {
		kinds[i] = f.Kind()
	}
	expected := []FrameKind{KindWaveform, KindWaveform, KindControl}
	if len(kinds) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, kinds)
	}
	for i := range expected {
		if kinds[i] != expected[i] {
			t.Errorf("Frame %d: expected %s, got %s", i, expected[i], kinds[i])
		}
	}
	if RawSample(frames[1].Payload(), 0, 0) != 2 {
		t.Error("Waveform frames should keep stream order")
	}
}

func TestDecoder_ControlAheadOfWaveformConsumed(t *testing.T) {
	// The waveform pass drops everything before the waveform it extracts,
	// including a complete control frame that has not been scanned yet.
	d := NewDecoder()
	d.Ingest(controlFrame([NumPots]uint16{1, 2, 3}))
	d.Ingest(EncodeWaveformFrame(constantRaw(1, 1, 1)))

	frames := d.Drain()
	if len(frames) != 1 || frames[0].Kind() != KindWaveform {
		t.Fatalf("Expected only the waveform frame, got %d frames", len(frames))
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.Ingest([]byte{0xAA, 0x55, 0x00})
	d.Reset()
	if d.Buffered() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d", d.Buffered())
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncoder_RejectsWrongLength(t *testing.T) {
	e := NewEncoder()
	if _, err := e.Encode(NewFrame(KindControl, make([]byte, 3))); err == nil {
		t.Error("Expected error for short control payload")
	}
	out, err := e.Encode(NewFrame(KindControl, make([]byte, ControlPayload)))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if out[0] != 0xCC || out[1] != 0x33 || len(out) != MarkerSize+ControlPayload {
		t.Errorf("Unexpected encoding % X", out[:2])
	}
}

func TestVoltsToRaw(t *testing.T) {
	tests := []struct {
		volts float64
		raw   uint16
	}{
		{-1.0, 0},
		{0.0, 0},
		{2.5, 512},
		{5.0, ADCMax},
		{7.0, ADCMax},
	}
	for _, tt := range tests {
		if got := VoltsToRaw(tt.volts); got != tt.raw {
			t.Errorf("VoltsToRaw(%v): expected %d, got %d", tt.volts, tt.raw, got)
		}
	}
}

// ============================================================
// Waveform Store Tests
// ============================================================

func TestWaveformStore_ConvertsAndClamps(t *testing.T) {
	s := NewWaveformStore()
	payload := EncodeWaveformPayload(constantRaw(0, 512, ADCMax))

	m, err := s.Apply(payload, Offsets{0, 0, 1.0})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if m[0][0] != 0 {
		t.Errorf("CH1: expected 0V, got %v", m[0][0])
	}
	if !almostEqual(m[1][10], 512*5.0/1023, 1e-12) {
		t.Errorf("CH2: expected %v, got %v", 512*5.0/1023, m[1][10])
	}
	if !almostEqual(m[2][199], 4.0, 1e-12) {
		t.Errorf("CH3: expected 4.0V after offset, got %v", m[2][199])
	}

	// Offset larger than the reading clamps at 0 V
	m, _ = s.Apply(payload, Offsets{1.0, 0, 0})
	if m[0][0] != 0 {
		t.Errorf("Expected clamp to 0V, got %v", m[0][0])
	}

	// Out of range raw readings clamp at 5 V
	m, _ = s.Apply(EncodeWaveformPayload(constantRaw(2000, 0, 0)), Offsets{})
	if m[0][0] != MaxVoltage {
		t.Errorf("Expected clamp to 5V, got %v", m[0][0])
	}
}

func TestWaveformStore_RejectsWrongLength(t *testing.T) {
	s := NewWaveformStore()
	if _, err := s.Apply(make([]byte, 10), Offsets{}); err == nil {
		t.Error("Expected error for short payload")
	}
	if s.HistoryLen() != 0 {
		t.Error("Rejected payload must not reach history")
	}
}

func TestWaveformStore_HistoryBounded(t *testing.T) {
	s := NewWaveformStore()
	for i := 0; i < 25; i++ {
		raw := uint16(i * 10)
		if _, err := s.Apply(EncodeWaveformPayload(constantRaw(raw, raw, raw)), Offsets{}); err != nil {
			t.Fatalf("Apply error: %v", err)
		}
	}
	if s.HistoryLen() != HistoryDepth {
		t.Fatalf("Expected history length %d, got %d", HistoryDepth, s.HistoryLen())
	}
	h := s.History()
	if !almostEqual(h[0][0][0], RawToVolts(150), 1e-12) {
		t.Errorf("Oldest entry should be frame 15, got %v V", h[0][0][0])
	}
	if h[len(h)-1] != s.Current() {
		t.Error("Newest history entry should equal the current matrix")
	}

	// History holds copies
	cur := s.CurrentRef()
	cur[0][0] = 4.9
	if h := s.History(); h[len(h)-1][0][0] == 4.9 {
		t.Error("History must not alias the current matrix")
	}
}

// ============================================================
// Calibration Tests
// ============================================================

func TestCalibration_AutoZero(t *testing.T) {
	var m SampleMatrix
	for i := 0; i < SamplesPerChan; i++ {
		m[0][i] = 0.2
		m[1][i] = float64(i%2) * 0.4
		m[2][i] = 3.0
	}

	c := NewCalibration()
	c.Set(Offsets{0, 0, 0.5})
	c.AutoZero(&m, Channels{true, true, false})

	o := c.Offsets()
	if !almostEqual(o[0], 0.2, 1e-12) {
		t.Errorf("CH1 offset: expected 0.2, got %v", o[0])
	}
	if !almostEqual(o[1], 0.2, 1e-12) {
		t.Errorf("CH2 offset: expected 0.2, got %v", o[1])
	}
	if o[2] != 0.5 {
		t.Errorf("Disabled CH3 should keep its offset, got %v", o[2])
	}

	c.Reset()
	if c.Offsets() != (Offsets{}) {
		t.Error("Expected zero offsets after reset")
	}
}

func TestChannels_Count(t *testing.T) {
	if AllChannels.Count() != 3 {
		t.Error("AllChannels should count 3")
	}
	if (Channels{false, true, false}).Count() != 1 {
		t.Error("Single channel mask should count 1")
	}
}

// ============================================================
// Ring Tests
// ============================================================

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	items := r.Items()
	if len(items) != 3 || items[0] != 3 || items[2] != 5 {
		t.Errorf("Expected [3 4 5], got %v", items)
	}
	r.Clear()
	if r.Len() != 0 || r.Cap() != 3 {
		t.Errorf("Expected empty ring of cap 3, got len=%d cap=%d", r.Len(), r.Cap())
	}
}

func TestRollingWindow_Average(t *testing.T) {
	w := NewRollingWindow()
	if w.Average() != 0 {
		t.Error("Empty window should average 0")
	}
	for i := 1; i <= 15; i++ {
		w.Push(float64(i))
	}
	if w.Len() != RollingDepth {
		t.Fatalf("Expected %d values, got %d", RollingDepth, w.Len())
	}
	// Last 10 values are 6..15
	if !almostEqual(w.Average(), 10.5, 1e-12) {
		t.Errorf("Expected average 10.5, got %v", w.Average())
	}
	w.Reset()
	if w.Len() != 0 || w.Average() != 0 {
		t.Error("Expected empty window after reset")
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name     string
		frame    *Frame
		expected []AnomalyType
	}{
		{
			name:  "clean waveform",
			frame: NewFrame(KindWaveform, EncodeWaveformPayload(constantRaw(0, 512, ADCMax))),
		},
		{
			name:     "waveform raw out of range",
			frame:    NewFrame(KindWaveform, EncodeWaveformPayload(constantRaw(0, 1024, 0))),
			expected: []AnomalyType{AnomalyRawOutOfRange},
		},
		{
			name:     "short payload",
			frame:    NewFrame(KindControl, make([]byte, 4)),
			expected: []AnomalyType{AnomalyLengthMismatch},
		},
		{
			name:     "invalid button flag",
			frame:    NewFrame(KindControl, EncodeControlPayload(ControlReading{Buttons: [NumButtons]uint8{0, 2}})),
			expected: []AnomalyType{AnomalyInvalidButton},
		},
		{
			name:     "pot out of range",
			frame:    NewFrame(KindControl, EncodeControlPayload(ControlReading{Pots: [NumPots]uint16{0, 0, 4000}})),
			expected: []AnomalyType{AnomalyRawOutOfRange},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateFrame(tt.frame)
			if len(errs) != len(tt.expected) {
				t.Fatalf("Expected %d anomalies, got %d: %v", len(tt.expected), len(errs), errs)
			}
			for i := range errs {
				if errs[i].Type != tt.expected[i] {
					t.Errorf("Anomaly %d: expected %s, got %s", i, tt.expected[i], errs[i].Type)
				}
			}
		})
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(NewFrame(KindWaveform, make([]byte, WaveformPayload)), nil)
	s.Update(NewFrame(KindControl, make([]byte, ControlPayload)), []ValidationError{
		{Type: AnomalyInvalidButton},
		{Type: AnomalyRawOutOfRange},
	})

	if s.TotalFrames() != 2 {
		t.Errorf("Expected 2 frames, got %d", s.TotalFrames())
	}
	if s.AnomalousFrames != 1 || s.InvalidButtons != 1 || s.RawOutOfRange != 1 {
		t.Errorf("Unexpected anomaly counters: %+v", s)
	}
	s.Reset()
	if s.TotalFrames() != 0 {
		t.Error("Expected counters cleared after reset")
	}
}
