// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"fmt"
	"strings"
)

var buttonNames = [NumButtons]string{
	"RUN_STOP",
	"TRIGGER_EDGE",
	"CHANNEL_CYCLE",
	"TRIGGER_UP",
	"TRIGGER_DOWN",
	"AUTO_SCALE",
	"XY_MODE",
	"HISTORY",
	"CURSOR",
	"AUTO_ZERO",
}

// FormatButton returns the human-readable name of a button index
func FormatButton(i int) string {
	if i < 0 || i >= NumButtons {
		return "UNKNOWN"
	}
	return buttonNames[i]
}

// FormatSeconds formats a duration in seconds with an adaptive unit
func FormatSeconds(v float64) string {
	switch {
	case v >= 10:
		return fmt.Sprintf("%.2fs", v)
	case v >= 1:
		return fmt.Sprintf("%.3fs", v)
	case v >= 0.001:
		return fmt.Sprintf("%.2fms", v*1e3)
	case v >= 0.000001:
		return fmt.Sprintf("%.1fµs", v*1e6)
	default:
		return fmt.Sprintf("%.0fns", v*1e9)
	}
}

// FormatRiseTime formats a rise time given in microseconds
func FormatRiseTime(us float64) string {
	if us >= 1000 {
		return fmt.Sprintf("%.2fms", us/1000)
	}
	return fmt.Sprintf("%.1fµs", us)
}

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s len=%d\n", timestamp, f.Kind(), len(f.Payload()))

	switch f.Kind() {
	case KindWaveform:
		if len(f.Payload()) != WaveformPayload {
			break
		}
		for ch := 0; ch < NumChannels; ch++ {
			first := RawSample(f.Payload(), 0, ch)
			last := RawSample(f.Payload(), SamplesPerChan-1, ch)
			result += fmt.Sprintf("  CH%d: raw[0]=%d (%.3fV) raw[%d]=%d (%.3fV)\n",
				ch+1, first, RawToVolts(first), SamplesPerChan-1, last, RawToVolts(last))
		}
	case KindControl:
		r, err := ParseControlPayload(f.Payload())
		if err != nil {
			break
		}
		result += fmt.Sprintf("  Pots: A3=%d A4=%d A5=%d\n", r.Pots[0], r.Pots[1], r.Pots[2])
		var pressed []string
		for i, b := range r.Buttons {
			if b != 0 {
				pressed = append(pressed, FormatButton(i))
			}
		}
		if len(pressed) == 0 {
			result += "  Buttons: (none)\n"
		} else {
			result += fmt.Sprintf("  Buttons: %s\n", strings.Join(pressed, " "))
		}
	}
	return result
}

// FormatControlState formats control state for a given profile
func FormatControlState(p Profile, s ControlState) string {
	return fmt.Sprintf("Time base: %s/div | Vertical: %.3fV/div | Position: %+.2fV | Trigger: %.2fV %s\n",
		FormatSeconds(p.TimeBaseSeconds(s.TimeBase)), s.VoltPerDiv[0], s.VerticalPosition, s.TriggerLevel, s.TriggerEdge)
}

// FormatMeasurements formats measurements and rolling averages for enabled channels
func FormatMeasurements(set MeasurementSet, avg Averages, enabled Channels) string {
	var b strings.Builder
	for ch := 0; ch < NumChannels; ch++ {
		if !enabled[ch] {
			fmt.Fprintf(&b, "CH%d: disabled\n", ch+1)
			continue
		}
		m := set[ch]
		fmt.Fprintf(&b, "CH%d: Vpp=%.4fV Vmax=%.4fV Vmin=%.4fV Vavg=%.4fV Vrms=%.4fV\n",
			ch+1, m.Vpp, m.Vmax, m.Vmin, m.Vavg, m.Vrms)
		fmt.Fprintf(&b, "     Freq=%.2fHz (avg %.2fHz) Period=%.2fms", m.Frequency, avg.AverageFrequency[ch], m.Period)
		if m.RiseTime > 0 {
			fmt.Fprintf(&b, " Rise=%s", FormatRiseTime(m.RiseTime))
		}
		fmt.Fprintf(&b, " V=%.4fV (avg %.4fV)\n", avg.Voltage[ch], avg.AverageVoltage[ch])
	}
	return b.String()
}
