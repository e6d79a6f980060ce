// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/womat/debug"
)

// viewModes are presentation toggles driven by the control surface. The core
// has no notion of them; they only change what the monitor renders.
type viewModes struct {
	XY      bool `json:"xy"`
	History bool `json:"history"`
	Cursor  bool `json:"cursor"`
}

// dispatcher turns button presses into instrument commands
type dispatcher struct {
	inst *scope.Instrument

	// calibrationFile receives the offsets after every auto-zero, if set
	calibrationFile string

	mu    sync.Mutex
	modes viewModes
}

func newDispatcher(inst *scope.Instrument, calibrationFile string) *dispatcher {
	return &dispatcher{
		inst:            inst,
		calibrationFile: calibrationFile,
	}
}

// Modes returns the current view toggles
func (d *dispatcher) Modes() viewModes {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modes
}

// HandleEvents executes every press in order and returns one log line per press
func (d *dispatcher) HandleEvents(events []scope.ButtonEvent) []string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, d.Press(e.Button))
	}
	return lines
}

// Press executes the command bound to a button and describes what happened
func (d *dispatcher) Press(button int) string {
	msg := d.press(button)
	debug.InfoLog.Printf("button %s: %s", scope.FormatButton(button), msg)
	return msg
}

func (d *dispatcher) press(button int) string {
	switch button {
	case scope.ButtonRunStop:
		if d.inst.ToggleRun() {
			return "RUN"
		}
		return "STOP"

	case scope.ButtonTriggerEdge:
		return fmt.Sprintf("trigger edge %s", d.inst.ToggleTriggerEdge())

	case scope.ButtonChannelCycle:
		return fmt.Sprintf("channels %s", formatChannels(d.inst.CycleChannels()))

	case scope.ButtonTriggerUp:
		return fmt.Sprintf("trigger level %.2fV", d.inst.NudgeTriggerLevel(scope.TriggerStep))

	case scope.ButtonTriggerDown:
		return fmt.Sprintf("trigger level %.2fV", d.inst.NudgeTriggerLevel(-scope.TriggerStep))

	case scope.ButtonAutoScale:
		if !d.inst.Running() {
			return "auto-scale ignored while stopped"
		}
		if !d.inst.AutoScale() {
			return "auto-scale: no channel above 0.1Vpp"
		}
		return fmt.Sprintf("auto-scale %.3fV/div", d.inst.Control().VoltPerDiv[0])

	case scope.ButtonXYMode:
		return d.toggle(&d.modes.XY, "XY mode")

	case scope.ButtonHistory:
		return d.toggle(&d.modes.History, "history view")

	case scope.ButtonCursor:
		return d.toggle(&d.modes.Cursor, "cursors")

	case scope.ButtonAutoZero:
		if !d.inst.Running() {
			return "auto-zero ignored while stopped"
		}
		offsets := d.inst.AutoZero()
		if d.calibrationFile != "" {
			if err := saveCalibration(d.inst, d.calibrationFile); err != nil {
				debug.ErrorLog.Printf("saving calibration: %v", err)
			}
		}
		return fmt.Sprintf("auto-zero offsets %.3f/%.3f/%.3fV", offsets[0], offsets[1], offsets[2])
	}
	return fmt.Sprintf("unknown button %d", button)
}

func (d *dispatcher) toggle(flag *bool, name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	*flag = !*flag
	if *flag {
		return name + " on"
	}
	return name + " off"
}

// formatChannels lists enabled channels as "CH1+CH3", or "none"
func formatChannels(c scope.Channels) string {
	s := ""
	for ch, on := range c {
		if !on {
			continue
		}
		if s != "" {
			s += "+"
		}
		s += fmt.Sprintf("CH%d", ch+1)
	}
	if s == "" {
		return "none"
	}
	return s
}
