// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Range is a closed interval of control values
type Range struct {
	Min float64
	Max float64
}

// Clamp limits v to the range
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Profile describes how a deployment maps potentiometer readings to control values
type Profile struct {
	Name string

	// TimeBase is in seconds/div for "wide" and milliseconds/div for "classic"
	TimeBase     Range
	TimeBaseUnit string
	VoltPerDiv   Range

	// PositionSpan is the full span of the vertical position control, centered on 0 V
	PositionSpan float64
}

// Built-in deployment profiles
var (
	ProfileWide = Profile{
		Name:         "wide",
		TimeBase:     Range{Min: 0.00001, Max: 1000000.0},
		TimeBaseUnit: "s",
		VoltPerDiv:   Range{Min: 0.001, Max: 10.0},
		PositionSpan: 10.0,
	}
	ProfileClassic = Profile{
		Name:         "classic",
		TimeBase:     Range{Min: 0.1, Max: 100.0},
		TimeBaseUnit: "ms",
		VoltPerDiv:   Range{Min: 0.01, Max: 5.0},
		PositionSpan: 5.0,
	}
)

var profiles = map[string]Profile{
	ProfileWide.Name:    ProfileWide,
	ProfileClassic.Name: ProfileClassic,
}

// LookupProfile returns the named profile
func LookupProfile(name string) (Profile, error) {
	if p, ok := profiles[strings.ToLower(name)]; ok {
		return p, nil
	}
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(names, ", "))
}

// TimeBaseSeconds converts a time base value of this profile to seconds/div
func (p Profile) TimeBaseSeconds(v float64) float64 {
	if p.TimeBaseUnit == "ms" {
		return v / 1000.0
	}
	return v
}

// LogScale maps a raw potentiometer reading logarithmically onto r.
// Readings of 0 and 1 map exactly to r.Min.
func LogScale(raw uint16, r Range) float64 {
	if raw <= 1 {
		return r.Min
	}
	ratio := float64(raw) / ADCMax
	logMin := math.Log10(r.Min)
	logMax := math.Log10(r.Max)
	return r.Clamp(math.Pow(10, logMin+ratio*(logMax-logMin)))
}

// LinearPosition maps a raw potentiometer reading onto [-span/2, +span/2]
func LinearPosition(raw uint16, span float64) float64 {
	return float64(raw)/ADCMax*span - span/2
}

// ControlState is the scope control surface state
type ControlState struct {
	TimeBase         float64
	VoltPerDiv       [NumChannels]float64
	VerticalPosition float64
	TriggerLevel     float64
	TriggerEdge      Edge

	// Buttons holds the last observed raw level of each button, not press events
	Buttons [NumButtons]uint8
}

// DefaultControlState returns the power-on control state
func DefaultControlState() ControlState {
	return ControlState{
		TimeBase:     1.0,
		VoltPerDiv:   [NumChannels]float64{1.0, 1.0, 1.0},
		TriggerLevel: DefaultTriggerLevel,
		TriggerEdge:  EdgeRising,
	}
}

// ControlReading is a decoded control payload before mapping
type ControlReading struct {
	Pots    [NumPots]uint16
	Buttons [NumButtons]uint8
}

// ParseControlPayload splits a control payload into pot readings and button flags
func ParseControlPayload(payload []byte) (ControlReading, error) {
	var r ControlReading
	if len(payload) != ControlPayload {
		return r, fmt.Errorf("control payload length %d (expected %d)", len(payload), ControlPayload)
	}
	for i := 0; i < NumPots; i++ {
		r.Pots[i] = binary.LittleEndian.Uint16(payload[i*2:])
	}
	copy(r.Buttons[:], payload[NumPots*2:NumPots*2+NumButtons])
	return r, nil
}

// ButtonEvent is a single button press (0 to 1 transition)
type ButtonEvent struct {
	Button int
}

func (e ButtonEvent) String() string {
	return FormatButton(e.Button)
}

// Interpreter maps control frames onto ControlState and detects button presses
type Interpreter struct {
	profile Profile
	state   ControlState
	prev    [NumButtons]uint8
}

// NewInterpreter creates an interpreter for the given profile
func NewInterpreter(profile Profile) *Interpreter {
	return &Interpreter{
		profile: profile,
		state:   DefaultControlState(),
	}
}

// Profile returns the active profile
func (c *Interpreter) Profile() Profile {
	return c.profile
}

// State returns a copy of the current control state
func (c *Interpreter) State() ControlState {
	return c.state
}

// Apply decodes a control payload, updates the control state and returns the
// presses detected against the previous frame in ascending button order. Held
// and released buttons produce no events. The previous-frame levels are always
// replaced by the new raw flags.
func (c *Interpreter) Apply(payload []byte) (ControlState, []ButtonEvent, error) {
	r, err := ParseControlPayload(payload)
	if err != nil {
		return c.state, nil, err
	}

	c.state.TimeBase = LogScale(r.Pots[0], c.profile.TimeBase)
	volts := LogScale(r.Pots[1], c.profile.VoltPerDiv)
	for ch := range c.state.VoltPerDiv {
		c.state.VoltPerDiv[ch] = volts
	}
	c.state.VerticalPosition = LinearPosition(r.Pots[2], c.profile.PositionSpan)

	var events []ButtonEvent
	for i, level := range r.Buttons {
		if level == 1 && c.prev[i] == 0 {
			events = append(events, ButtonEvent{Button: i})
		}
	}
	c.prev = r.Buttons
	c.state.Buttons = r.Buttons

	return c.state, events, nil
}

// SetTimeBase overrides the time base, clamped to the profile range
func (c *Interpreter) SetTimeBase(v float64) {
	c.state.TimeBase = c.profile.TimeBase.Clamp(v)
}

// SetVoltPerDiv overrides volt/div on every channel, clamped to the profile range
func (c *Interpreter) SetVoltPerDiv(v float64) {
	v = c.profile.VoltPerDiv.Clamp(v)
	for ch := range c.state.VoltPerDiv {
		c.state.VoltPerDiv[ch] = v
	}
}

// SetVerticalPosition overrides the vertical position, clamped to the profile span
func (c *Interpreter) SetVerticalPosition(v float64) {
	half := c.profile.PositionSpan / 2
	c.state.VerticalPosition = Range{Min: -half, Max: half}.Clamp(v)
}

// SetTriggerLevel sets the trigger level, clamped to the input range
func (c *Interpreter) SetTriggerLevel(v float64) {
	c.state.TriggerLevel = clampVoltage(v)
}

// NudgeTriggerLevel moves the trigger level by delta volts
func (c *Interpreter) NudgeTriggerLevel(delta float64) float64 {
	c.SetTriggerLevel(c.state.TriggerLevel + delta)
	return c.state.TriggerLevel
}

// SetTriggerEdge sets the trigger edge polarity
func (c *Interpreter) SetTriggerEdge(e Edge) {
	c.state.TriggerEdge = e
}

// ToggleTriggerEdge flips between rising and falling
func (c *Interpreter) ToggleTriggerEdge() Edge {
	if c.state.TriggerEdge == EdgeRising {
		c.state.TriggerEdge = EdgeFalling
	} else {
		c.state.TriggerEdge = EdgeRising
	}
	return c.state.TriggerEdge
}

// Restore replaces the control state, keeping the button edge history. Values
// are clamped to the profile the same way the setters clamp them.
func (c *Interpreter) Restore(s ControlState) {
	c.state = s
	c.SetTimeBase(s.TimeBase)
	c.SetVerticalPosition(s.VerticalPosition)
	c.SetTriggerLevel(s.TriggerLevel)
	for ch, v := range s.VoltPerDiv {
		c.state.VoltPerDiv[ch] = c.profile.VoltPerDiv.Clamp(v)
	}
}
