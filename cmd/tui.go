// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 100 * time.Millisecond
	cursorStep      = 5
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Messages
type refreshMsg time.Time
type connectionLostMsg struct{}
type reconnectedMsg struct {
	connInfo string
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	channelStyles = [scope.NumChannels]lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
)

// monitorModel is the Bubble Tea model of the monitor command
type monitorModel struct {
	inst     *scope.Instrument
	disp     *dispatcher
	logs     <-chan eventLogEntry
	connInfo string
	started  time.Time

	status     scope.Status
	stats      scope.Statistics
	modes      viewModes
	table      table.Model
	spinner    spinner.Model
	eventLog   []eventLogEntry
	maxEntries int

	historyIdx int // 0 is the newest entry
	cursorA    int
	cursorB    int

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

func newMonitorModel(inst *scope.Instrument, disp *dispatcher, logs <-chan eventLogEntry, connInfo string) monitorModel {
	columns := []table.Column{
		{Title: "CH", Width: 4},
		{Title: "Vpp", Width: 8},
		{Title: "Vmax", Width: 8},
		{Title: "Vmin", Width: 8},
		{Title: "Vavg", Width: 8},
		{Title: "Vrms", Width: 8},
		{Title: "Freq", Width: 11},
		{Title: "Avg Freq", Width: 11},
		{Title: "Period", Width: 10},
		{Title: "Rise", Width: 10},
		{Title: "V", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(scope.NumChannels+1),
		table.WithFocused(false),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(lipgloss.Color("12")).Bold(true)
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = warningStyle

	return monitorModel{
		inst:       inst,
		disp:       disp,
		logs:       logs,
		connInfo:   connInfo,
		started:    time.Now(),
		table:      t,
		spinner:    sp,
		eventLog:   make([]eventLogEntry, 0),
		maxEntries: 100,
		cursorA:    scope.SamplesPerChan / 4,
		cursorB:    scope.SamplesPerChan * 3 / 4,
		width:      80,
		height:     24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(refreshCmd(), m.spinner.Tick)
}

func refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case refreshMsg:
		m.refresh()
		return m, refreshCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost, reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected: "+msg.connInfo, false)
	}
	return m, nil
}

// refresh pulls the latest instrument state and drains pending log lines
func (m *monitorModel) refresh() {
	m.status = m.inst.Latest()
	m.stats = m.inst.Statistics()
	m.modes = m.disp.Modes()
	m.table.SetRows(measurementRows(m.status))

drain:
	for {
		select {
		case e := <-m.logs:
			m.eventLog = append(m.eventLog, e)
		default:
			break drain
		}
	}
	if len(m.eventLog) > m.maxEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxEntries:]
	}
}

func (m monitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	button := -1
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case " ":
		button = scope.ButtonRunStop
	case "e":
		button = scope.ButtonTriggerEdge
	case "c":
		button = scope.ButtonChannelCycle
	case "+", "up":
		button = scope.ButtonTriggerUp
	case "-", "down":
		button = scope.ButtonTriggerDown
	case "a":
		button = scope.ButtonAutoScale
	case "x":
		button = scope.ButtonXYMode
	case "h":
		button = scope.ButtonHistory
	case "k":
		button = scope.ButtonCursor
	case "z":
		button = scope.ButtonAutoZero

	case "1", "2", "3":
		ch := int(msg.String()[0] - '1')
		on := !m.inst.Enabled()[ch]
		m.inst.SetChannelEnabled(ch, on)
		m.addLogEntry(fmt.Sprintf("CH%d %s", ch+1, map[bool]string{true: "enabled", false: "disabled"}[on]), false)

	case "s":
		if cfg.Calibration == "" {
			m.addLogEntry("No calibration file configured", true)
		} else if err := saveCalibration(m.inst, cfg.Calibration); err != nil {
			m.addLogEntry(err.Error(), true)
		} else {
			m.addLogEntry("Calibration saved to "+cfg.Calibration, false)
		}

	case "r":
		m.inst.ResetStatistics()
		m.addLogEntry("Statistics reset", false)

	case "left":
		m.move(-1)
	case "right":
		m.move(1)
	case ",":
		m.cursorB = clampSample(m.cursorB - cursorStep)
	case ".":
		m.cursorB = clampSample(m.cursorB + cursorStep)
	}

	if button >= 0 {
		m.addLogEntry("["+scope.FormatButton(button)+"] "+m.disp.Press(button), false)
		m.modes = m.disp.Modes()
	}
	return m, nil
}

// move steps cursor A in cursor mode, or the shown history entry in history mode
func (m *monitorModel) move(dir int) {
	switch {
	case m.modes.Cursor:
		m.cursorA = clampSample(m.cursorA + dir*cursorStep)
	case m.modes.History:
		m.historyIdx = max(0, min(scope.HistoryDepth-1, m.historyIdx-dir))
	}
}

func clampSample(i int) int {
	return max(0, min(scope.SamplesPerChan-1, i))
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxEntries:]
	}
}

// measurementRows builds one table row per channel
func measurementRows(st scope.Status) []table.Row {
	rows := make([]table.Row, scope.NumChannels)
	for ch := 0; ch < scope.NumChannels; ch++ {
		name := fmt.Sprintf("CH%d", ch+1)
		if !st.Enabled[ch] {
			rows[ch] = table.Row{name, "-", "-", "-", "-", "-", "-", "-", "-", "-", "-"}
			continue
		}
		meas := st.Measurements[ch]
		rise := "-"
		if meas.RiseTime > 0 {
			rise = scope.FormatRiseTime(meas.RiseTime)
		}
		rows[ch] = table.Row{
			name,
			fmt.Sprintf("%.3fV", meas.Vpp),
			fmt.Sprintf("%.3fV", meas.Vmax),
			fmt.Sprintf("%.3fV", meas.Vmin),
			fmt.Sprintf("%.3fV", meas.Vavg),
			fmt.Sprintf("%.3fV", meas.Vrms),
			fmt.Sprintf("%.2fHz", meas.Frequency),
			fmt.Sprintf("%.2fHz", st.Averages.AverageFrequency[ch]),
			fmt.Sprintf("%.2fms", meas.Period),
			rise,
			fmt.Sprintf("%.3fV", st.Averages.Voltage[ch]),
		}
	}
	return rows
}

// displayedMatrix returns the window to draw: the live one, or a history entry
func (m monitorModel) displayedMatrix() (scope.SampleMatrix, string) {
	if !m.modes.History {
		return m.status.Samples, "live"
	}
	history := m.inst.History()
	if len(history) == 0 {
		return m.status.Samples, "history empty"
	}
	idx := min(m.historyIdx, len(history)-1)
	return history[len(history)-1-idx], fmt.Sprintf("history -%d of %d", idx, len(history))
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("SCOPESTAT - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Profile: %s | Uptime: %s | Press 'q' to quit",
		m.connInfo, m.status.Profile.Name, formatUptime(uint64(time.Since(m.started).Milliseconds())))))
	s.WriteString("\n\n")

	// Run state and modes
	switch {
	case m.connectionLost:
		s.WriteString(errorStyle.Render("✗ Connection lost"))
	case m.status.Sequence == 0:
		s.WriteString(m.spinner.View() + warningStyle.Render(" Waiting for waveform frames..."))
	case m.status.Running:
		s.WriteString(valueStyle.Render("● RUN"))
	default:
		s.WriteString(errorStyle.Render("■ STOP"))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("   Channels: %s   Modes: %s   Window #%d",
		formatChannels(m.status.Enabled), formatModes(m.modes), m.status.Sequence)))
	s.WriteString("\n\n")

	// Control state
	control := strings.Builder{}
	control.WriteString(scope.FormatControlState(m.status.Profile, m.status.Control))
	control.WriteString(fmt.Sprintf("%s %.3fV / %.3fV / %.3fV",
		labelStyle.Render("DC offsets:"), m.status.Offsets[0], m.status.Offsets[1], m.status.Offsets[2]))
	s.WriteString(boxStyle.Render(control.String()))
	s.WriteString("\n")

	// Measurements
	s.WriteString(boxStyle.Render(m.table.View()))
	s.WriteString("\n")

	// Waveforms
	s.WriteString(boxStyle.Render(m.waveformView()))
	s.WriteString("\n")

	// Decode statistics
	stats := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Waveforms:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.WaveformFrames)),
		labelStyle.Render("Controls:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.ControlFrames)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f fps", m.stats.FrameRate)),
		labelStyle.Render("Anomalous:"), func() string {
			if m.stats.AnomalousFrames > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", m.stats.AnomalousFrames))
			}
			return valueStyle.Render("0")
		}(),
	)
	s.WriteString(stats)
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(max(20, m.width-4)).Render(m.logView()))

	return s.String()
}

func (m monitorModel) waveformView() string {
	matrix, source := m.displayedMatrix()
	plotWidth := max(20, min(scope.SamplesPerChan, m.width-16))

	var b strings.Builder
	b.WriteString(headerStyle.Render(source))
	b.WriteString("\n")

	if m.modes.XY {
		b.WriteString(headerStyle.Render("XY: CH1 → X, CH2 → Y"))
		b.WriteString("\n")
		b.WriteString(xyPlot(matrix[0][:], matrix[1][:], min(plotWidth, 60), 12))
		return b.String()
	}

	for ch := 0; ch < scope.NumChannels; ch++ {
		if !m.status.Enabled[ch] {
			continue
		}
		b.WriteString(channelStyles[ch].Render(fmt.Sprintf("CH%d ", ch+1)))
		b.WriteString(channelStyles[ch].Render(sparkline(matrix[ch][:], plotWidth, scope.MinVoltage, scope.MaxVoltage)))
		b.WriteString("\n")
	}

	if m.modes.Cursor {
		b.WriteString(m.cursorView(&matrix))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// cursorView reports the readings under both cursors and their differences
func (m monitorModel) cursorView(matrix *scope.SampleMatrix) string {
	tb := m.status.Profile.TimeBaseSeconds(m.status.Control.TimeBase)
	ta := scope.SampleTime(m.cursorA, tb)
	tbB := scope.SampleTime(m.cursorB, tb)
	dt := tbB - ta

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s A=#%d (%s)  B=#%d (%s)  Δt=%s",
		labelStyle.Render("Cursors:"), m.cursorA, scope.FormatSeconds(ta), m.cursorB, scope.FormatSeconds(tbB), scope.FormatSeconds(abs(dt))))
	if dt != 0 {
		b.WriteString(fmt.Sprintf("  1/Δt=%.2fHz", 1/abs(dt)))
	}
	b.WriteString("\n")
	for ch := 0; ch < scope.NumChannels; ch++ {
		if !m.status.Enabled[ch] {
			continue
		}
		va, vb := matrix[ch][m.cursorA], matrix[ch][m.cursorB]
		b.WriteString(fmt.Sprintf("  CH%d: A=%.3fV B=%.3fV ΔV=%+.3fV\n", ch+1, va, vb, vb-va))
	}
	return b.String()
}

func (m monitorModel) logView() string {
	logHeight := max(5, m.height-30)
	start := max(0, len(m.eventLog)-logHeight)

	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}
	var b strings.Builder
	for _, entry := range m.eventLog[start:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatModes(v viewModes) string {
	var modes []string
	if v.XY {
		modes = append(modes, "XY")
	}
	if v.History {
		modes = append(modes, "HISTORY")
	}
	if v.Cursor {
		modes = append(modes, "CURSOR")
	}
	if len(modes) == 0 {
		return "YT"
	}
	return strings.Join(modes, "+")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// formatUptime formats a duration in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
