// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"sync"
	"sync/atomic"
)

// autoScaleMinVpp is the smallest peak-to-peak swing auto-scale reacts to
const autoScaleMinVpp = 0.1

// autoScaleDivisions is the number of vertical divisions auto-scale fits the swing into
const autoScaleDivisions = 4.0

// Config selects the deployment parameters of an Instrument
type Config struct {
	Profile    Profile
	SampleRate float64
	Enabled    Channels
}

// DefaultConfig returns the wide profile at the default sample rate with every channel on
func DefaultConfig() Config {
	return Config{
		Profile:    ProfileWide,
		SampleRate: DefaultRate,
		Enabled:    AllChannels,
	}
}

// Result summarizes one processing pass
type Result struct {
	Waveforms int
	Controls  int
	Events    []ButtonEvent
	Anomalies []ValidationError
}

// Status is a consistent copy of everything the presentation layer renders
type Status struct {
	Sequence     uint64 // number of waveform frames applied so far
	Running      bool
	Profile      Profile
	SampleRate   float64
	Enabled      Channels
	Samples      SampleMatrix
	Control      ControlState
	Offsets      Offsets
	Measurements MeasurementSet
	Averages     Averages
	HistoryLen   int
}

// Instrument ties decoding, calibration, control interpretation and measurement
// together. It is the only owner of instrument state; there are no globals.
//
// One producer calls Ingest as bytes arrive. One consumer calls Process to decode
// whatever is complete. Process never waits for the buffer lock: when another
// pass holds it the call is skipped and the next trigger picks the bytes up.
// Accessors may be called from any goroutine and return copies.
type Instrument struct {
	bufMu   sync.Mutex
	decoder *Decoder
	ingest  atomic.Uint64

	mu          sync.RWMutex
	profile     Profile
	sampleRate  float64
	enabled     Channels
	running     bool
	sequence    uint64
	calibration *Calibration
	store       *WaveformStore
	interpreter *Interpreter
	engine      *Engine
	stats       *Statistics
}

// NewInstrument creates an instrument for the given configuration
func NewInstrument(cfg Config) *Instrument {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultRate
	}
	if cfg.Profile.Name == "" {
		cfg.Profile = ProfileWide
	}
	return &Instrument{
		decoder:     NewDecoder(),
		profile:     cfg.Profile,
		sampleRate:  cfg.SampleRate,
		enabled:     cfg.Enabled,
		running:     true,
		calibration: NewCalibration(),
		store:       NewWaveformStore(),
		interpreter: NewInterpreter(cfg.Profile),
		engine:      NewEngine(),
		stats:       NewStatistics(),
	}
}

// Ingest appends raw transport bytes. It only holds the buffer lock for the append.
func (in *Instrument) Ingest(p []byte) {
	if len(p) == 0 {
		return
	}
	in.bufMu.Lock()
	in.decoder.Ingest(p)
	in.bufMu.Unlock()
	in.ingest.Add(uint64(len(p)))
}

// Buffered returns the number of bytes waiting for a complete frame
func (in *Instrument) Buffered() int {
	in.bufMu.Lock()
	defer in.bufMu.Unlock()
	return in.decoder.Buffered()
}

// Process drains every complete frame and applies them in order. Measurements
// are recomputed after each waveform frame. ok is false when another pass held
// the buffer lock and nothing was done.
func (in *Instrument) Process() (res Result, ok bool) {
	if !in.bufMu.TryLock() {
		in.mu.Lock()
		in.stats.SkippedPasses++
		in.mu.Unlock()
		return res, false
	}
	defer in.bufMu.Unlock()

	frames := in.decoder.Drain()

	in.mu.Lock()
	defer in.mu.Unlock()

	in.stats.Passes++
	for _, f := range frames {
		anomalies := ValidateFrame(f)
		in.stats.Update(f, anomalies)
		res.Anomalies = append(res.Anomalies, anomalies...)

		switch f.Kind() {
		case KindWaveform:
			if _, err := in.store.Apply(f.Payload(), in.calibration.Offsets()); err != nil {
				continue
			}
			in.sequence++
			in.engine.Update(in.store.CurrentRef(), in.enabled, in.sampleRate)
			res.Waveforms++

		case KindControl:
			_, events, err := in.interpreter.Apply(f.Payload())
			if err != nil {
				continue
			}
			in.stats.ButtonPresses += uint64(len(events))
			res.Events = append(res.Events, events...)
			res.Controls++
		}
	}
	return res, true
}

// Latest returns a consistent copy of the current instrument state
func (in *Instrument) Latest() Status {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return Status{
		Sequence:     in.sequence,
		Running:      in.running,
		Profile:      in.profile,
		SampleRate:   in.sampleRate,
		Enabled:      in.enabled,
		Samples:      in.store.Current(),
		Control:      in.interpreter.State(),
		Offsets:      in.calibration.Offsets(),
		Measurements: in.engine.Measurements(),
		Averages:     in.engine.Averages(),
		HistoryLen:   in.store.HistoryLen(),
	}
}

// Samples returns a copy of the current sample matrix
func (in *Instrument) Samples() SampleMatrix {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.store.Current()
}

// History returns copies of the stored matrices, oldest first
func (in *Instrument) History() []SampleMatrix {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.store.History()
}

// Control returns the current control state
func (in *Instrument) Control() ControlState {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.interpreter.State()
}

// Measurements returns the last measurement set
func (in *Instrument) Measurements() MeasurementSet {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.engine.Measurements()
}

// Averages returns instantaneous and rolling frequency/voltage values
func (in *Instrument) Averages() Averages {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.engine.Averages()
}

// Offsets returns the calibration offsets
func (in *Instrument) Offsets() Offsets {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.calibration.Offsets()
}

// Profile returns the deployment profile
func (in *Instrument) Profile() Profile {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.profile
}

// Statistics returns a copy of the decode statistics
func (in *Instrument) Statistics() Statistics {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.BytesIngested = in.ingest.Load()
	in.stats.CalculateRates()
	return *in.stats
}

// ResetStatistics clears the decode statistics
func (in *Instrument) ResetStatistics() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.Reset()
	in.ingest.Store(0)
}

// AutoZero records the current mean of every enabled channel as its DC offset
func (in *Instrument) AutoZero() Offsets {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.calibration.AutoZero(in.store.CurrentRef(), in.enabled)
	return in.calibration.Offsets()
}

// SetOffsets replaces the calibration offsets
func (in *Instrument) SetOffsets(o Offsets) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.calibration.Set(o)
}

// Enabled returns the channel enable mask
func (in *Instrument) Enabled() Channels {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.enabled
}

// SetChannelEnabled turns a channel on or off. Disabling clears its measurements.
func (in *Instrument) SetChannelEnabled(ch int, on bool) {
	if ch < 0 || ch >= NumChannels {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.enabled[ch] = on
	if !on {
		in.engine.ResetChannel(ch)
	}
}

// SetEnabled replaces the channel enable mask
func (in *Instrument) SetEnabled(c Channels) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.setEnabledLocked(c)
}

func (in *Instrument) setEnabledLocked(c Channels) {
	in.enabled = c
	for ch := 0; ch < NumChannels; ch++ {
		if !c[ch] {
			in.engine.ResetChannel(ch)
		}
	}
}

// CycleChannels steps the enable mask: all channels -> CH1 only, one channel ->
// the next channel only, anything else -> all channels
func (in *Instrument) CycleChannels() Channels {
	in.mu.Lock()
	defer in.mu.Unlock()

	var next Channels
	switch in.enabled.Count() {
	case NumChannels:
		next[0] = true
	case 1:
		for ch := 0; ch < NumChannels; ch++ {
			if in.enabled[ch] {
				next[(ch+1)%NumChannels] = true
				break
			}
		}
	default:
		next = AllChannels
	}
	in.setEnabledLocked(next)
	return next
}

// Running reports whether acquisition is running
func (in *Instrument) Running() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.running
}

// SetRunning starts or stops acquisition
func (in *Instrument) SetRunning(on bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.running = on
}

// ToggleRun flips the run state and returns the new value
func (in *Instrument) ToggleRun() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.running = !in.running
	return in.running
}

// SampleRate returns the per-channel sample rate in samples/sec
func (in *Instrument) SampleRate() float64 {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.sampleRate
}

// SetTimeBase overrides the hardware time base
func (in *Instrument) SetTimeBase(v float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.interpreter.SetTimeBase(v)
}

// SetVoltPerDiv overrides the hardware volt/div on every channel
func (in *Instrument) SetVoltPerDiv(v float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.interpreter.SetVoltPerDiv(v)
}

// SetVerticalPosition overrides the hardware vertical position
func (in *Instrument) SetVerticalPosition(v float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.interpreter.SetVerticalPosition(v)
}

// SetTriggerLevel sets the trigger level in volts
func (in *Instrument) SetTriggerLevel(v float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.interpreter.SetTriggerLevel(v)
}

// NudgeTriggerLevel moves the trigger level by delta volts and returns the new level
func (in *Instrument) NudgeTriggerLevel(delta float64) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.interpreter.NudgeTriggerLevel(delta)
}

// ToggleTriggerEdge flips the trigger edge and returns the new polarity
func (in *Instrument) ToggleTriggerEdge() Edge {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.interpreter.ToggleTriggerEdge()
}

// AutoScale fits volt/div to the swing of each enabled channel with a usable
// signal. Channels are visited in order, so the last qualifying channel wins.
// It returns false when no channel qualified.
func (in *Instrument) AutoScale() bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	applied := false
	m := in.store.CurrentRef()
	for ch := 0; ch < NumChannels; ch++ {
		if !in.enabled[ch] {
			continue
		}
		lo, hi := minMax(m[ch][:])
		vpp := hi - lo
		if vpp > autoScaleMinVpp {
			in.interpreter.SetVoltPerDiv(vpp / autoScaleDivisions)
			applied = true
		}
	}
	return applied
}

// Snapshot returns calibration offsets and control state as key/value pairs
func (in *Instrument) Snapshot() Snapshot {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return NewSnapshot(in.calibration.Offsets(), in.interpreter.State())
}

// Restore applies a snapshot produced by Snapshot
func (in *Instrument) Restore(s Snapshot) {
	in.mu.Lock()
	defer in.mu.Unlock()
	offsets := in.calibration.Offsets()
	state := in.interpreter.State()
	s.Apply(&offsets, &state)
	in.calibration.Set(offsets)
	in.interpreter.Restore(state)
}

// Reset discards buffered bytes, samples, history and measurements. Calibration
// and control state are kept.
func (in *Instrument) Reset() {
	in.bufMu.Lock()
	in.decoder.Reset()
	in.bufMu.Unlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	in.store.Reset()
	in.engine.Reset()
	in.sequence = 0
}
