// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"encoding/binary"
	"fmt"
)

// Encoder builds wire-format frames. The device is the usual producer; this is
// used by the simulator and by tests.
type Encoder struct{}

// NewEncoder creates a new frame encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns the marker followed by the frame payload
func (e *Encoder) Encode(f *Frame) ([]byte, error) {
	if len(f.Payload()) != f.Kind().PayloadSize() {
		return nil, fmt.Errorf("%s payload length %d (expected %d)", f.Kind(), len(f.Payload()), f.Kind().PayloadSize())
	}
	marker := f.Kind().Marker()
	out := make([]byte, 0, MarkerSize+len(f.Payload()))
	out = append(out, marker[:]...)
	out = append(out, f.Payload()...)
	return out, nil
}

// EncodeWaveformPayload packs raw ADC readings, indexed [channel][sample], into a
// waveform payload
func EncodeWaveformPayload(raw *[NumChannels][SamplesPerChan]uint16) []byte {
	payload := make([]byte, WaveformPayload)
	for i := 0; i < SamplesPerChan; i++ {
		for ch := 0; ch < NumChannels; ch++ {
			idx := (i*NumChannels + ch) * 2
			binary.LittleEndian.PutUint16(payload[idx:], raw[ch][i])
		}
	}
	return payload
}

// EncodeWaveformFrame returns a complete waveform frame for raw readings
func EncodeWaveformFrame(raw *[NumChannels][SamplesPerChan]uint16) []byte {
	out := make([]byte, 0, MarkerSize+WaveformPayload)
	out = append(out, WaveformMarker[:]...)
	return append(out, EncodeWaveformPayload(raw)...)
}

// EncodeControlPayload packs a control reading into a control payload
func EncodeControlPayload(r ControlReading) []byte {
	payload := make([]byte, ControlPayload)
	for i := 0; i < NumPots; i++ {
		binary.LittleEndian.PutUint16(payload[i*2:], r.Pots[i])
	}
	copy(payload[NumPots*2:], r.Buttons[:])
	return payload
}

// EncodeControlFrame returns a complete control frame for a reading
func EncodeControlFrame(r ControlReading) []byte {
	out := make([]byte, 0, MarkerSize+ControlPayload)
	out = append(out, ControlMarker[:]...)
	return append(out, EncodeControlPayload(r)...)
}

// VoltsToRaw converts volts to the nearest raw ADC reading, clamped to the ADC range
func VoltsToRaw(v float64) uint16 {
	r := v*ADCMax/FullScale + 0.5
	if r < 0 {
		return 0
	}
	if r > ADCMax {
		return ADCMax
	}
	return uint16(r)
}
