// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator generates the byte stream of a scope front end.
//
// A Generator synthesizes one waveform per channel and encodes it into waveform
// frames, interleaved with control frames carrying potentiometer positions and
// queued button presses. It is used to exercise the analyzer without hardware.
package simulator

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
)

// Shape is a generated waveform shape
type Shape int

// Shape values
const (
	ShapeDC Shape = iota
	ShapeSine
	ShapeSquare
	ShapeRamp
)

var shapeNames = map[string]Shape{
	"dc":     ShapeDC,
	"sine":   ShapeSine,
	"square": ShapeSquare,
	"ramp":   ShapeRamp,
}

func (s Shape) String() string {
	for name, v := range shapeNames {
		if v == s {
			return name
		}
	}
	return "unknown"
}

// ParseShape resolves a shape name
func ParseShape(name string) (Shape, error) {
	s, ok := shapeNames[name]
	if !ok {
		return ShapeDC, fmt.Errorf("unknown waveform shape %q (dc|sine|square|ramp)", name)
	}
	return s, nil
}

// Signal describes the waveform of one channel. Voltages are in volts; the
// result is clamped to the ADC range when encoded.
type Signal struct {
	Shape     Shape
	Frequency float64 // Hz
	Amplitude float64 // peak, V
	Offset    float64 // V
}

// At returns the signal value at time t in seconds
func (s Signal) At(t float64) float64 {
	return s.atCycles(t * s.Frequency)
}

// Sample returns the value of sample n at rate samples/sec. The cycle count is
// computed from the integer index so edges land on exact sample boundaries.
func (s Signal) Sample(n uint64, rate float64) float64 {
	return s.atCycles(float64(n) * s.Frequency / rate)
}

func (s Signal) atCycles(cycles float64) float64 {
	if s.Shape == ShapeDC || s.Frequency <= 0 {
		return s.Offset
	}
	phase := math.Mod(cycles, 1)
	switch s.Shape {
	case ShapeSine:
		return s.Offset + s.Amplitude*math.Sin(2*math.Pi*phase)
	case ShapeSquare:
		if phase < 0.5 {
			return s.Offset + s.Amplitude
		}
		return s.Offset - s.Amplitude
	case ShapeRamp:
		return s.Offset + s.Amplitude*(2*phase-1)
	}
	return s.Offset
}

// Config parameterizes a Generator
type Config struct {
	SampleRate float64 // samples/sec per channel
	Signals    [scope.NumChannels]Signal
	Pots       [scope.NumPots]uint16

	// ControlEvery emits a control frame after this many waveform frames (0 = never)
	ControlEvery int
}

// DefaultConfig returns a 50 Hz sine on CH1, a 120 Hz square on CH2 and a
// 1.5 V level on CH3, all centered at mid scale
func DefaultConfig() Config {
	return Config{
		SampleRate: scope.DefaultRate,
		Signals: [scope.NumChannels]Signal{
			{Shape: ShapeSine, Frequency: 50, Amplitude: 2, Offset: 2.5},
			{Shape: ShapeSquare, Frequency: 120, Amplitude: 1, Offset: 2.5},
			{Shape: ShapeDC, Offset: 1.5},
		},
		Pots:         [scope.NumPots]uint16{512, 512, 512},
		ControlEvery: 5,
	}
}

// Generator produces consecutive frames. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	cfg     Config
	sample  uint64
	frames  uint64
	pending []int
	held    [scope.NumButtons]uint8
}

// New creates a generator
func New(cfg Config) (*Generator, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %v", cfg.SampleRate)
	}
	for i, p := range cfg.Pots {
		if p > scope.ADCMax {
			return nil, fmt.Errorf("pot %d value %d out of range (0-%d)", i+1, p, scope.ADCMax)
		}
	}
	return &Generator{cfg: cfg}, nil
}

// FrameInterval is the time one waveform window spans at the configured rate
func (g *Generator) FrameInterval() time.Duration {
	return time.Duration(float64(scope.SamplesPerChan) / g.cfg.SampleRate * float64(time.Second))
}

// Press queues a button press. The button reads 1 in the next control frame
// and 0 in the one after, so every queued press produces exactly one edge.
func (g *Generator) Press(button int) error {
	if button < 0 || button >= scope.NumButtons {
		return fmt.Errorf("invalid button %d", button)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, button)
	return nil
}

// Waveform returns the raw readings of the next window and advances time
func (g *Generator) Waveform() [scope.NumChannels][scope.SamplesPerChan]uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var raw [scope.NumChannels][scope.SamplesPerChan]uint16
	for i := 0; i < scope.SamplesPerChan; i++ {
		n := g.sample + uint64(i)
		for ch := 0; ch < scope.NumChannels; ch++ {
			raw[ch][i] = scope.VoltsToRaw(g.cfg.Signals[ch].Sample(n, g.cfg.SampleRate))
		}
	}
	g.sample += scope.SamplesPerChan
	return raw
}

// Control returns the next control reading. A held button is released before
// the next queued press is applied.
func (g *Generator) Control() scope.ControlReading {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := scope.ControlReading{Pots: g.cfg.Pots}
	released := false
	for i, v := range g.held {
		if v != 0 {
			g.held[i] = 0
			released = true
		}
	}
	if !released && len(g.pending) > 0 {
		g.held[g.pending[0]] = 1
		g.pending = g.pending[1:]
	}
	r.Buttons = g.held
	return r
}

// Next returns the bytes of the next emission: one waveform frame, followed by
// a control frame every ControlEvery frames
func (g *Generator) Next() []byte {
	raw := g.Waveform()
	out := scope.EncodeWaveformFrame(&raw)

	g.mu.Lock()
	g.frames++
	emitControl := g.cfg.ControlEvery > 0 && g.frames%uint64(g.cfg.ControlEvery) == 0
	g.mu.Unlock()

	if emitControl {
		out = append(out, scope.EncodeControlFrame(g.Control())...)
	}
	return out
}

// Stream writes Next to w once per frame interval until ctx is done or a
// write fails
func (g *Generator) Stream(ctx context.Context, w io.Writer) error {
	ticker := time.NewTicker(g.FrameInterval())
	defer ticker.Stop()

	for {
		if _, err := w.Write(g.Next()); err != nil {
			return fmt.Errorf("simulator write: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
