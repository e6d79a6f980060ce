// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import "bytes"

// scanOrder is the order in which frame kinds are extracted on each drain.
// All waveform frames are taken before any control frame is considered.
var scanOrder = [...]FrameKind{KindWaveform, KindControl}

// Decoder accumulates raw stream bytes and extracts complete frames.
//
// Decoder is not safe for concurrent use; Instrument serializes access.
type Decoder struct {
	buffer []byte
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		buffer: make([]byte, 0, WaveformPayload*4),
	}
}

// Reset discards all buffered bytes
func (d *Decoder) Reset() {
	d.buffer = d.buffer[:0]
}

// Ingest appends raw bytes to the buffer. No framing is assumed.
func (d *Decoder) Ingest(p []byte) {
	d.buffer = append(d.buffer, p...)
}

// Buffered returns the number of bytes not yet consumed by Drain
func (d *Decoder) Buffered() int {
	return len(d.buffer)
}

// GetRawBytes returns the bytes currently waiting in the buffer
func (d *Decoder) GetRawBytes() []byte {
	return d.buffer
}

// Drain removes and returns every complete frame currently in the buffer.
//
// Each kind is scanned independently: the leftmost marker is located and, if the
// full payload follows it, the frame is emitted and everything up to the end of
// the payload is dropped. Scanning for a kind stops at the first marker whose
// payload is incomplete; those bytes stay buffered for the next Ingest.
func (d *Decoder) Drain() []*Frame {
	var frames []*Frame
	for _, kind := range scanOrder {
		frames = d.drainKind(kind, frames)
	}
	if len(frames) > 0 {
		d.compact()
	}
	return frames
}

func (d *Decoder) drainKind(kind FrameKind, frames []*Frame) []*Frame {
	marker := kind.Marker()
	size := kind.PayloadSize()

	for len(d.buffer) >= MarkerSize {
		idx := bytes.Index(d.buffer, marker[:])
		if idx == -1 {
			break
		}

		start := idx + MarkerSize
		end := start + size
		if len(d.buffer) < end {
			// Partial frame, wait for more bytes
			break
		}

		payload := d.buffer[start:end]
		d.buffer = d.buffer[end:]
		if len(payload) != size {
			continue
		}
		frames = append(frames, NewFrame(kind, payload))
	}
	return frames
}

// compact copies residual bytes into a fresh buffer so a long running stream
// does not keep consumed bytes reachable through the old backing array.
func (d *Decoder) compact() {
	rest := make([]byte, len(d.buffer), max(len(d.buffer), WaveformPayload*4))
	copy(rest, d.buffer)
	d.buffer = rest
}
