// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleMatrix holds one window of calibrated samples in volts, indexed [channel][sample]
type SampleMatrix [NumChannels][SamplesPerChan]float64

// RawToVolts converts a raw ADC reading to volts before calibration
func RawToVolts(raw uint16) float64 {
	return float64(raw) * FullScale / ADCMax
}

// clampVoltage limits v to the input range of the front end
func clampVoltage(v float64) float64 {
	if v < MinVoltage || math.IsNaN(v) {
		return MinVoltage
	}
	if v > MaxVoltage {
		return MaxVoltage
	}
	return v
}

// RawSample returns the raw reading for sample i of channel ch within a waveform payload
func RawSample(payload []byte, i, ch int) uint16 {
	idx := (i*NumChannels + ch) * 2
	return binary.LittleEndian.Uint16(payload[idx : idx+2])
}

// WaveformStore owns the latest sample matrix and the bounded history of past matrices
type WaveformStore struct {
	current SampleMatrix
	history *Ring[SampleMatrix]
}

// NewWaveformStore creates an empty store
func NewWaveformStore() *WaveformStore {
	return &WaveformStore{
		history: NewRing[SampleMatrix](HistoryDepth),
	}
}

// Apply decodes a waveform payload into the current matrix, subtracting the
// per-channel offsets and clamping to [0, 5] V. The previous matrix is fully
// overwritten and a copy of the new one is pushed onto the history ring.
func (s *WaveformStore) Apply(payload []byte, offsets Offsets) (SampleMatrix, error) {
	if len(payload) != WaveformPayload {
		return s.current, fmt.Errorf("waveform payload length %d (expected %d)", len(payload), WaveformPayload)
	}

	for i := 0; i < SamplesPerChan; i++ {
		for ch := 0; ch < NumChannels; ch++ {
			v := RawToVolts(RawSample(payload, i, ch)) - offsets[ch]
			s.current[ch][i] = clampVoltage(v)
		}
	}

	// SampleMatrix is an array, so this pushes a deep copy
	s.history.Push(s.current)
	return s.current, nil
}

// Current returns a copy of the latest sample matrix
func (s *WaveformStore) Current() SampleMatrix {
	return s.current
}

// CurrentRef returns the latest matrix by reference for read-only use
func (s *WaveformStore) CurrentRef() *SampleMatrix {
	return &s.current
}

// History returns the stored matrices, oldest first
func (s *WaveformStore) History() []SampleMatrix {
	return s.history.Items()
}

// HistoryLen returns the number of matrices in the history ring
func (s *WaveformStore) HistoryLen() int {
	return s.history.Len()
}

// Reset clears the current matrix and the history
func (s *WaveformStore) Reset() {
	s.current = SampleMatrix{}
	s.history.Clear()
}
