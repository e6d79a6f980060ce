// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"fmt"
	"time"
)

// Statistics tracks frame counts and decode health
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	BytesIngested   uint64
	WaveformFrames  uint64
	ControlFrames   uint64
	AnomalousFrames uint64
	RawOutOfRange   uint64
	InvalidButtons  uint64
	ButtonPresses   uint64
	Passes          uint64
	SkippedPasses   uint64

	// Rates (calculated)
	FrameRate float64 // waveform frames/sec
	ByteRate  float64 // bytes/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update accounts for one decoded frame and its validation errors
func (s *Statistics) Update(f *Frame, validationErrors []ValidationError) {
	switch f.Kind() {
	case KindWaveform:
		s.WaveformFrames++
	case KindControl:
		s.ControlFrames++
	}

	if len(validationErrors) > 0 {
		s.AnomalousFrames++
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyRawOutOfRange:
				s.RawOutOfRange++
			case AnomalyInvalidButton:
				s.InvalidButtons++
			}
		}
	}

	s.LastUpdateTime = time.Now()
}

// TotalFrames returns the number of frames of either kind
func (s *Statistics) TotalFrames() uint64 {
	return s.WaveformFrames + s.ControlFrames
}

// CalculateRates calculates frame and byte rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.WaveformFrames) / elapsed
		s.ByteRate = float64(s.BytesIngested) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var anomalousPercent float64
	if total := s.TotalFrames(); total > 0 {
		anomalousPercent = float64(s.AnomalousFrames) * 100.0 / float64(total)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Ingested:  %8d\n", s.BytesIngested)
	result += fmt.Sprintf("Waveform Frames: %8d\n", s.WaveformFrames)
	result += fmt.Sprintf("Control Frames:  %8d\n", s.ControlFrames)
	result += fmt.Sprintf("Button Presses:  %8d\n", s.ButtonPresses)

	if s.AnomalousFrames > 0 {
		result += fmt.Sprintf("Anomalous:       %8d (%.1f%%)\n", s.AnomalousFrames, anomalousPercent)
		if s.RawOutOfRange > 0 {
			result += fmt.Sprintf("  Raw > %d:      %5d\n", ADCMax, s.RawOutOfRange)
		}
		if s.InvalidButtons > 0 {
			result += fmt.Sprintf("  Bad Buttons:     %5d\n", s.InvalidButtons)
		}
	}
	if s.SkippedPasses > 0 {
		result += fmt.Sprintf("Skipped Passes:  %8d of %d\n", s.SkippedPasses, s.Passes+s.SkippedPasses)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Byte Rate:       %8.1f bytes/sec\n", s.ByteRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
