// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyRawOutOfRange
	AnomalyInvalidButton
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "length mismatch"
	case AnomalyRawOutOfRange:
		return "raw out of range"
	case AnomalyInvalidButton:
		return "invalid button flag"
	default:
		return "unknown"
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a frame for values outside the protocol ranges.
// Anomalous frames are still applied; raw readings are clamped on conversion.
func ValidateFrame(f *Frame) []ValidationError {
	if len(f.Payload()) != f.Kind().PayloadSize() {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload length %d (expected %d)", f.Kind(), len(f.Payload()), f.Kind().PayloadSize()),
			Details: map[string]interface{}{"length": len(f.Payload()), "expected": f.Kind().PayloadSize()},
		}}
	}

	switch f.Kind() {
	case KindWaveform:
		return validateWaveform(f.Payload())
	case KindControl:
		return validateControl(f.Payload())
	}
	return nil
}

// validateWaveform reports the first out of range reading per channel
func validateWaveform(payload []byte) []ValidationError {
	var errors []ValidationError
	for ch := 0; ch < NumChannels; ch++ {
		for i := 0; i < SamplesPerChan; i++ {
			raw := RawSample(payload, i, ch)
			if raw > ADCMax {
				errors = append(errors, ValidationError{
					Type:    AnomalyRawOutOfRange,
					Message: fmt.Sprintf("CH%d sample %d raw=%d (max %d)", ch+1, i, raw, ADCMax),
					Details: map[string]interface{}{"channel": ch, "sample": i, "raw": raw},
				})
				break
			}
		}
	}
	return errors
}

func validateControl(payload []byte) []ValidationError {
	var errors []ValidationError
	for i := 0; i < NumPots; i++ {
		raw := uint16(payload[i*2]) | uint16(payload[i*2+1])<<8
		if raw > ADCMax {
			errors = append(errors, ValidationError{
				Type:    AnomalyRawOutOfRange,
				Message: fmt.Sprintf("Pot %d raw=%d (max %d)", i, raw, ADCMax),
				Details: map[string]interface{}{"pot": i, "raw": raw},
			})
		}
	}
	for i := 0; i < NumButtons; i++ {
		flag := payload[NumPots*2+i]
		if flag > 1 {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidButton,
				Message: fmt.Sprintf("Button %d flag=%d (expected 0 or 1)", i, flag),
				Details: map[string]interface{}{"button": i, "flag": flag},
			})
		}
	}
	return errors
}
