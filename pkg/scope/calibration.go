// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

// Channels is a per-channel enable mask indexed by channel number
type Channels [NumChannels]bool

// AllChannels enables every channel
var AllChannels = Channels{true, true, true}

// Count returns the number of enabled channels
func (c Channels) Count() int {
	n := 0
	for _, on := range c {
		if on {
			n++
		}
	}
	return n
}

// Offsets holds one DC offset in volts per channel
type Offsets [NumChannels]float64

// Calibration holds the DC offsets subtracted from every decoded sample
type Calibration struct {
	offsets Offsets
}

// NewCalibration creates a calibration with all offsets at 0 V
func NewCalibration() *Calibration {
	return &Calibration{}
}

// Offsets returns a copy of the current offsets
func (c *Calibration) Offsets() Offsets {
	return c.offsets
}

// Set replaces all offsets
func (c *Calibration) Set(o Offsets) {
	c.offsets = o
}

// Reset returns every offset to 0 V
func (c *Calibration) Reset() {
	c.offsets = Offsets{}
}

// AutoZero records the mean of each enabled channel's current samples as that
// channel's offset. The input is assumed to be at 0 V. Disabled channels keep
// their previous offset.
func (c *Calibration) AutoZero(m *SampleMatrix, enabled Channels) {
	for ch := 0; ch < NumChannels; ch++ {
		if !enabled[ch] {
			continue
		}
		c.offsets[ch] = mean(m[ch][:])
	}
}
