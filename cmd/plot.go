// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"

	"github.com/Thermoquad/scopestat/pkg/scope"
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline renders data as one line of block characters. Each column shows the
// peak of its bucket so short spikes stay visible.
func sparkline(data []float64, width int, lo, hi float64) string {
	if width <= 0 || len(data) == 0 {
		return ""
	}
	if width > len(data) {
		width = len(data)
	}
	span := hi - lo
	var b strings.Builder
	for col := 0; col < width; col++ {
		start := col * len(data) / width
		end := (col + 1) * len(data) / width
		peak := data[start]
		for _, v := range data[start:end] {
			if v > peak {
				peak = v
			}
		}
		level := 0
		if span > 0 {
			level = int((peak - lo) / span * float64(len(sparkLevels)-1))
		}
		level = max(0, min(len(sparkLevels)-1, level))
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

// xyPlot renders y against x on a width by height character grid covering the
// full input range on both axes
func xyPlot(x, y []float64, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	grid := make([][]rune, height)
	for row := range grid {
		grid[row] = []rune(strings.Repeat("·", width))
	}

	n := min(len(x), len(y))
	for i := 0; i < n; i++ {
		col := int(x[i] / scope.MaxVoltage * float64(width-1))
		row := height - 1 - int(y[i]/scope.MaxVoltage*float64(height-1))
		if col < 0 || col >= width || row < 0 || row >= height {
			continue
		}
		grid[row][col] = '•'
	}

	lines := make([]string, height)
	for row := range grid {
		lines[row] = string(grid[row])
	}
	return strings.Join(lines, "\n")
}
