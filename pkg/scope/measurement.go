// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import "math"

// Measurement is the set of metrics computed for one channel window
type Measurement struct {
	Vpp       float64 `json:"vpp"`
	Vmax      float64 `json:"vmax"`
	Vmin      float64 `json:"vmin"`
	Vavg      float64 `json:"vavg"`
	Vrms      float64 `json:"vrms"`
	Frequency float64 `json:"frequency_hz"`
	Period    float64 `json:"period_ms"`
	RiseTime  float64 `json:"rise_time_us"`
}

// MeasurementSet holds one Measurement per channel
type MeasurementSet [NumChannels]Measurement

// Averages is the smoothed view of the last RollingDepth windows per channel
type Averages struct {
	Frequency        [NumChannels]float64 `json:"frequency_hz"`
	AverageFrequency [NumChannels]float64 `json:"average_frequency_hz"`
	Voltage          [NumChannels]float64 `json:"voltage"`
	AverageVoltage   [NumChannels]float64 `json:"average_voltage"`
}

// mean returns the arithmetic mean of data (0 for an empty slice)
func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// rms returns the root mean square of data (0 for an empty slice)
func rms(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(data)))
}

// minMax returns the smallest and largest value in a non-empty slice
func minMax(data []float64) (float64, float64) {
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// MeanCrossings returns the sample indices at which data crosses its own mean
// in either direction
func MeanCrossings(data []float64) []int {
	if len(data) < 2 {
		return nil
	}
	m := mean(data)
	var crossings []int
	for i := 1; i < len(data); i++ {
		prev, cur := data[i-1], data[i]
		if (prev < m && cur >= m) || (prev > m && cur <= m) {
			crossings = append(crossings, i)
		}
	}
	return crossings
}

// Frequency estimates the fundamental frequency in Hz from mean crossings.
// The mean spacing between crossings is half a period.
func Frequency(data []float64, sampleRate float64) float64 {
	crossings := MeanCrossings(data)
	if len(crossings) < 2 {
		return 0
	}
	total := 0
	for i := 1; i < len(crossings); i++ {
		total += crossings[i] - crossings[i-1]
	}
	periodSamples := float64(total) / float64(len(crossings)-1) * 2
	if periodSamples <= 0 {
		return 0
	}
	return sampleRate / periodSamples
}

// RiseTime returns the 10% to 90% rise time in microseconds of the first rising
// edge in data, or 0 when no such edge exists
func RiseTime(data []float64, sampleRate float64) float64 {
	if len(data) < 2 || sampleRate <= 0 {
		return 0
	}
	vmin, vmax := minMax(data)
	span := vmax - vmin
	if span <= 0 {
		return 0
	}
	v10 := vmin + 0.1*span
	v90 := vmin + 0.9*span

	t10, t90 := -1, -1
	for i, v := range data {
		if t10 == -1 && v >= v10 {
			t10 = i
		}
		if v >= v90 {
			t90 = i
			break
		}
	}
	if t10 == -1 || t90 == -1 || t90 <= t10 {
		return 0
	}
	return float64(t90-t10) / sampleRate * 1e6
}

// Measure computes every metric for a single channel window
func Measure(data []float64, sampleRate float64) Measurement {
	if len(data) == 0 {
		return Measurement{}
	}
	vmin, vmax := minMax(data)
	m := Measurement{
		Vmax:      vmax,
		Vmin:      vmin,
		Vpp:       vmax - vmin,
		Vavg:      mean(data),
		Vrms:      rms(data),
		Frequency: Frequency(data, sampleRate),
		RiseTime:  RiseTime(data, sampleRate),
	}
	if m.Frequency > 0 {
		m.Period = 1000.0 / m.Frequency
	}
	return m
}

// Engine computes measurements per channel and keeps rolling averages of
// frequency and window voltage
type Engine struct {
	set       MeasurementSet
	averages  Averages
	frequency [NumChannels]*RollingWindow
	voltage   [NumChannels]*RollingWindow
}

// NewEngine creates an engine with empty rolling windows
func NewEngine() *Engine {
	e := &Engine{}
	for ch := 0; ch < NumChannels; ch++ {
		e.frequency[ch] = NewRollingWindow()
		e.voltage[ch] = NewRollingWindow()
	}
	return e
}

// Update measures every enabled channel of m. Disabled channels report zero for
// every metric. m is never modified.
func (e *Engine) Update(m *SampleMatrix, enabled Channels, sampleRate float64) MeasurementSet {
	for ch := 0; ch < NumChannels; ch++ {
		if !enabled[ch] {
			e.ResetChannel(ch)
			continue
		}

		data := m[ch][:]
		meas := Measure(data, sampleRate)
		e.set[ch] = meas

		e.averages.Frequency[ch] = meas.Frequency
		e.averages.Voltage[ch] = data[len(data)-1]
		e.averages.AverageFrequency[ch] = e.frequency[ch].Push(meas.Frequency)
		e.averages.AverageVoltage[ch] = e.voltage[ch].Push(meas.Vavg)
	}
	return e.set
}

// Measurements returns the last computed set
func (e *Engine) Measurements() MeasurementSet {
	return e.set
}

// Averages returns the instantaneous and rolling frequency/voltage values
func (e *Engine) Averages() Averages {
	return e.averages
}

// ResetChannel zeroes the values reported for one channel. Its rolling windows
// are kept, so a re-enabled channel averages over earlier windows too.
func (e *Engine) ResetChannel(ch int) {
	e.set[ch] = Measurement{}
	e.averages.Frequency[ch] = 0
	e.averages.AverageFrequency[ch] = 0
	e.averages.Voltage[ch] = 0
	e.averages.AverageVoltage[ch] = 0
}

// Reset clears measurements and rolling windows
func (e *Engine) Reset() {
	e.set = MeasurementSet{}
	e.averages = Averages{}
	for ch := 0; ch < NumChannels; ch++ {
		e.frequency[ch].Reset()
		e.voltage[ch].Reset()
	}
}
