// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/segmentio/parquet-go"
)

// A screen spans 10 horizontal divisions
const divisionsPerScreen = 10

// SampleTime returns the time offset in seconds of sample i for a time base in seconds/div
func SampleTime(i int, timeBaseSeconds float64) float64 {
	return float64(i) * (timeBaseSeconds * divisionsPerScreen / SamplesPerChan)
}

// Recorder persists sample matrices
type Recorder interface {
	WriteMatrix(frame uint64, m *SampleMatrix, timeBaseSeconds float64) error
	Close() error
}

// WaveformRow is one sample instant of a recorded window
type WaveformRow struct {
	Frame  int64   `parquet:"frame"`
	Sample int32   `parquet:"sample"`
	Time   float64 `parquet:"time"`
	CH1    float64 `parquet:"ch1"`
	CH2    float64 `parquet:"ch2"`
	CH3    float64 `parquet:"ch3"`
}

// ParquetRecorder writes sample matrices as parquet rows
type ParquetRecorder struct {
	file   io.Closer
	writer *parquet.GenericWriter[WaveformRow]
	rows   []WaveformRow
}

// NewParquetRecorder creates a recorder writing to w. metadata is stored as
// key/value metadata in the file footer. If w is an io.Closer it is closed by Close.
func NewParquetRecorder(w io.Writer, metadata map[string]string) *ParquetRecorder {
	var opts []parquet.WriterOption
	for k, v := range metadata {
		opts = append(opts, parquet.KeyValueMetadata(k, v))
	}
	r := &ParquetRecorder{
		writer: parquet.NewGenericWriter[WaveformRow](w, opts...),
		rows:   make([]WaveformRow, SamplesPerChan),
	}
	if c, ok := w.(io.Closer); ok {
		r.file = c
	}
	return r
}

// WriteMatrix appends one window of samples
func (r *ParquetRecorder) WriteMatrix(frame uint64, m *SampleMatrix, timeBaseSeconds float64) error {
	for i := 0; i < SamplesPerChan; i++ {
		r.rows[i] = WaveformRow{
			Frame:  int64(frame),
			Sample: int32(i),
			Time:   SampleTime(i, timeBaseSeconds),
			CH1:    m[0][i],
			CH2:    m[1][i],
			CH3:    m[2][i],
		}
	}
	if _, err := r.writer.Write(r.rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	return nil
}

// Close flushes the parquet footer and closes the underlying file
func (r *ParquetRecorder) Close() error {
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// CSVRecorder writes sample matrices as "Time,CH1,CH2,CH3" text rows
type CSVRecorder struct {
	file   io.Closer
	w      *bufio.Writer
	header bool
}

// NewCSVRecorder creates a recorder writing to w
func NewCSVRecorder(w io.Writer) *CSVRecorder {
	r := &CSVRecorder{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.file = c
	}
	return r
}

// WriteMatrix appends one window of samples. The header is written once.
func (r *CSVRecorder) WriteMatrix(frame uint64, m *SampleMatrix, timeBaseSeconds float64) error {
	if !r.header {
		if _, err := r.w.WriteString("Time,CH1,CH2,CH3\n"); err != nil {
			return err
		}
		r.header = true
	}
	return writeCSVRows(r.w, m, timeBaseSeconds)
}

// Close flushes buffered rows and closes the underlying file
func (r *CSVRecorder) Close() error {
	if err := r.w.Flush(); err != nil {
		return err
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// WriteCSV exports a single window with header
func WriteCSV(w io.Writer, m *SampleMatrix, timeBaseSeconds float64) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("Time,CH1,CH2,CH3\n"); err != nil {
		return err
	}
	if err := writeCSVRows(bw, m, timeBaseSeconds); err != nil {
		return err
	}
	return bw.Flush()
}

func writeCSVRows(w *bufio.Writer, m *SampleMatrix, timeBaseSeconds float64) error {
	line := make([]byte, 0, 64)
	for i := 0; i < SamplesPerChan; i++ {
		line = line[:0]
		line = strconv.AppendFloat(line, SampleTime(i, timeBaseSeconds), 'f', 9, 64)
		for ch := 0; ch < NumChannels; ch++ {
			line = append(line, ',')
			line = strconv.AppendFloat(line, m[ch][i], 'f', 4, 64)
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}
