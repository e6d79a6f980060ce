// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scope decodes the framed byte stream of a three-channel scope front end.
//
// The device emits two kinds of frames, each preceded by a two byte marker: waveform
// frames carrying 200 samples for each of the 3 channels, and control frames carrying
// the raw potentiometer and button readings of the hardware control surface. This
// package turns the stream into calibrated voltage samples, control state and signal
// measurements. It performs no I/O and does not log.
package scope

// Frame markers
var (
	WaveformMarker = [2]byte{0xAA, 0x55}
	ControlMarker  = [2]byte{0xCC, 0x33}
)

// Frame geometry
const (
	MarkerSize      = 2
	NumChannels     = 3
	SamplesPerChan  = 200
	TotalSamples    = NumChannels * SamplesPerChan
	WaveformPayload = TotalSamples * 2 // 1200
	ControlPayload  = 16
	NumPots         = 3
	NumButtons      = 10
)

// ADC conversion
const (
	ADCMax      = 1023
	FullScale   = 5.0
	MinVoltage  = 0.0
	MaxVoltage  = 5.0
	DefaultRate = 8000 // samples/sec per channel
	DefaultBaud = 250000
)

// Buffer capacities
const (
	HistoryDepth = 10
	RollingDepth = 10
)

// Trigger defaults
const (
	DefaultTriggerLevel = 2.5
	TriggerStep         = 0.1
)

// Button indices on the control surface (D2..D11)
const (
	ButtonRunStop = iota
	ButtonTriggerEdge
	ButtonChannelCycle
	ButtonTriggerUp
	ButtonTriggerDown
	ButtonAutoScale
	ButtonXYMode
	ButtonHistory
	ButtonCursor
	ButtonAutoZero
)

// Edge is the trigger edge polarity
type Edge int

// Edge values
const (
	EdgeRising Edge = iota
	EdgeFalling
)

func (e Edge) String() string {
	if e == EdgeFalling {
		return "falling"
	}
	return "rising"
}
