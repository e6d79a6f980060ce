// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot keys
const (
	KeyTimeBase         = "time_base"
	KeyVerticalPosition = "vertical_position"
	KeyTriggerLevel     = "trigger_level"
	KeyTriggerRising    = "trigger_rising"
)

// OffsetKey returns the snapshot key of a channel's DC offset
func OffsetKey(ch int) string {
	return fmt.Sprintf("dc_offset.ch%d", ch+1)
}

// VoltPerDivKey returns the snapshot key of a channel's volt/div
func VoltPerDivKey(ch int) string {
	return fmt.Sprintf("volt_per_div.ch%d", ch+1)
}

// Snapshot is a flat key/value view of calibration and control state for save/restore
type Snapshot map[string]float64

// NewSnapshot flattens offsets and control state
func NewSnapshot(offsets Offsets, state ControlState) Snapshot {
	s := Snapshot{
		KeyTimeBase:         state.TimeBase,
		KeyVerticalPosition: state.VerticalPosition,
		KeyTriggerLevel:     state.TriggerLevel,
		KeyTriggerRising:    0,
	}
	if state.TriggerEdge == EdgeRising {
		s[KeyTriggerRising] = 1
	}
	for ch := 0; ch < NumChannels; ch++ {
		s[OffsetKey(ch)] = offsets[ch]
		s[VoltPerDivKey(ch)] = state.VoltPerDiv[ch]
	}
	return s
}

// lookup returns a finite value stored under key
func (s Snapshot) lookup(key string) (float64, bool) {
	v, ok := s[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Apply overlays the snapshot onto offsets and state. Missing and non-finite
// values leave the corresponding field untouched. Control values are not
// range checked here; Instrument.Restore clamps them to the active profile.
func (s Snapshot) Apply(offsets *Offsets, state *ControlState) {
	if v, ok := s.lookup(KeyTimeBase); ok {
		state.TimeBase = v
	}
	if v, ok := s.lookup(KeyVerticalPosition); ok {
		state.VerticalPosition = v
	}
	if v, ok := s.lookup(KeyTriggerLevel); ok {
		state.TriggerLevel = clampVoltage(v)
	}
	if v, ok := s.lookup(KeyTriggerRising); ok {
		if v != 0 {
			state.TriggerEdge = EdgeRising
		} else {
			state.TriggerEdge = EdgeFalling
		}
	}
	for ch := 0; ch < NumChannels; ch++ {
		if v, ok := s.lookup(OffsetKey(ch)); ok {
			offsets[ch] = v
		}
		if v, ok := s.lookup(VoltPerDivKey(ch)); ok {
			state.VoltPerDiv[ch] = v
		}
	}
}

// MarshalSnapshot encodes a snapshot as a CBOR map
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	data, err := cbor.Marshal(map[string]float64(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a CBOR map produced by MarshalSnapshot
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty snapshot")
	}
	var m map[string]float64
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return Snapshot(m), nil
}
