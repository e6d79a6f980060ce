// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import "time"

// FrameKind identifies the payload carried by a frame
type FrameKind uint8

// Frame kinds
const (
	KindWaveform FrameKind = iota
	KindControl
)

func (k FrameKind) String() string {
	switch k {
	case KindWaveform:
		return "WAVEFORM"
	case KindControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Marker returns the two byte marker that precedes frames of this kind
func (k FrameKind) Marker() [2]byte {
	if k == KindControl {
		return ControlMarker
	}
	return WaveformMarker
}

// PayloadSize returns the fixed payload length for this kind
func (k FrameKind) PayloadSize() int {
	if k == KindControl {
		return ControlPayload
	}
	return WaveformPayload
}

// Frame is one complete marker-delimited unit of the stream
type Frame struct {
	kind      FrameKind
	payload   []byte
	timestamp time.Time
}

// NewFrame creates a frame owning a copy of payload
func NewFrame(kind FrameKind, payload []byte) *Frame {
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Frame{
		kind:      kind,
		payload:   p,
		timestamp: time.Now(),
	}
}

// Kind returns the frame kind
func (f *Frame) Kind() FrameKind {
	return f.kind
}

// Payload returns the frame payload (without marker)
func (f *Frame) Payload() []byte {
	return f.payload
}

// Timestamp returns the decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}
