// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// webServer exposes the instrument state over HTTP
type webServer struct {
	web     *fiber.App
	inst    *scope.Instrument
	disp    *dispatcher
	started time.Time
}

// newWebServer creates the fiber app and registers every webservice enabled in services
func newWebServer(inst *scope.Instrument, disp *dispatcher, services map[string]bool) *webServer {
	s := &webServer{
		web:     fiber.New(),
		inst:    inst,
		disp:    disp,
		started: time.Now(),
	}
	s.initRoutes(services)
	return s
}

func (s *webServer) initRoutes(services map[string]bool) {
	api := s.web.Group("/")
	if services["version"] {
		api.Get("/version", s.HandleVersion())
	}
	if services["health"] {
		api.Get("/health", s.HandleHealth())
	}
	if services["samples"] {
		api.Get("/samples", s.HandleSamples())
	}
	if services["measurements"] {
		api.Get("/measurements", s.HandleMeasurements())
	}
	if services["control"] {
		api.Get("/control", s.HandleControl())
	}
	if services["statistics"] {
		api.Get("/statistics", s.HandleStatistics())
	}
	if services["autozero"] {
		api.Post("/autozero", s.HandleAutoZero())
	}
	if services["button"] {
		api.Post("/button/:id", s.HandleButton())
	}
}

// HandleVersion is the application version handler
func (s *webServer) HandleVersion() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request version")

		return ctx.JSON(fiber.Map{
			"version":     version,
			"description": module,
			"about":       module + " V" + version,
		})
	}
}

// HandleHealth returns process health data
func (s *webServer) HandleHealth() fiber.Handler {
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		healthData := struct {
			NumGoroutines   int
			HeapAllocatedMB uint64
			SysMemoryMB     uint64
			Version         string
			ProgLang        string
			HostName        string
			Uptime          string
			Running         bool
			Time            string
		}{
			NumGoroutines:   runtime.NumGoroutine(),
			HeapAllocatedMB: bToMb(m.Alloc),
			SysMemoryMB:     bToMb(m.Sys),
			Version:         version,
			ProgLang:        runtime.Version(),
			HostName:        host,
			Uptime:          formatUptime(uint64(time.Since(s.started).Milliseconds())),
			Running:         s.inst.Running(),
			Time:            time.Now().Format(time.RFC3339),
		}
		ctx.Status(http.StatusOK)
		return ctx.JSON(healthData)
	}
}

// samplesResponse is the latest window with its time axis
type samplesResponse struct {
	Sequence uint64      `json:"sequence"`
	Running  bool        `json:"running"`
	Enabled  [3]bool     `json:"enabled"`
	Time     []float64   `json:"time"`
	Channels [][]float64 `json:"channels"`
}

// HandleSamples returns the calibrated samples of the latest window
func (s *webServer) HandleSamples() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.DebugLog.Print("web request samples")

		st := s.inst.Latest()
		tb := st.Profile.TimeBaseSeconds(st.Control.TimeBase)
		resp := samplesResponse{
			Sequence: st.Sequence,
			Running:  st.Running,
			Enabled:  st.Enabled,
			Time:     make([]float64, scope.SamplesPerChan),
			Channels: make([][]float64, scope.NumChannels),
		}
		for i := range resp.Time {
			resp.Time[i] = scope.SampleTime(i, tb)
		}
		for ch := range resp.Channels {
			resp.Channels[ch] = st.Samples[ch][:]
		}
		return ctx.JSON(resp)
	}
}

// measurementsResponse is the per-channel measurement payload, also published over MQTT
type measurementsResponse struct {
	Sequence     uint64               `json:"sequence"`
	Time         string               `json:"time"`
	Enabled      [3]bool              `json:"enabled"`
	Measurements scope.MeasurementSet `json:"measurements"`
	Averages     scope.Averages       `json:"averages"`
}

func newMeasurementsResponse(st scope.Status) measurementsResponse {
	return measurementsResponse{
		Sequence:     st.Sequence,
		Time:         time.Now().Format(time.RFC3339),
		Enabled:      st.Enabled,
		Measurements: st.Measurements,
		Averages:     st.Averages,
	}
}

// HandleMeasurements returns the measurements of the latest window
func (s *webServer) HandleMeasurements() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.DebugLog.Print("web request measurements")
		return ctx.JSON(newMeasurementsResponse(s.inst.Latest()))
	}
}

// HandleControl returns the control surface state and the view toggles
func (s *webServer) HandleControl() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.DebugLog.Print("web request control")

		st := s.inst.Latest()
		return ctx.JSON(fiber.Map{
			"profile":           st.Profile.Name,
			"running":           st.Running,
			"time_base":         st.Control.TimeBase,
			"time_per_div":      scope.FormatSeconds(st.Profile.TimeBaseSeconds(st.Control.TimeBase)),
			"volt_per_div":      st.Control.VoltPerDiv,
			"vertical_position": st.Control.VerticalPosition,
			"trigger_level":     st.Control.TriggerLevel,
			"trigger_edge":      st.Control.TriggerEdge.String(),
			"buttons":           st.Control.Buttons,
			"offsets":           st.Offsets,
			"modes":             s.disp.Modes(),
		})
	}
}

// HandleStatistics returns the frame statistics
func (s *webServer) HandleStatistics() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.DebugLog.Print("web request statistics")

		stats := s.inst.Statistics()
		return ctx.JSON(fiber.Map{
			"uptime":           formatUptime(uint64(time.Since(stats.StartTime).Milliseconds())),
			"bytes":            stats.BytesIngested,
			"waveform_frames":  stats.WaveformFrames,
			"control_frames":   stats.ControlFrames,
			"anomalous_frames": stats.AnomalousFrames,
			"raw_out_of_range": stats.RawOutOfRange,
			"invalid_buttons":  stats.InvalidButtons,
			"button_presses":   stats.ButtonPresses,
			"passes":           stats.Passes,
			"skipped_passes":   stats.SkippedPasses,
			"frame_rate":       stats.FrameRate,
			"byte_rate":        stats.ByteRate,
		})
	}
}

// HandleAutoZero runs auto-zero as if the hardware button was pressed
func (s *webServer) HandleAutoZero() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request autozero")

		msg := s.disp.Press(scope.ButtonAutoZero)
		return ctx.JSON(fiber.Map{
			"result":  msg,
			"offsets": s.inst.Offsets(),
		})
	}
}

// HandleButton presses the button given by index (0-9) or name (e.g. run_stop)
func (s *webServer) HandleButton() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := ctx.Params("id")
		debug.InfoLog.Printf("web request button %s", id)

		button, ok := parseButton(id)
		if !ok {
			ctx.Status(http.StatusBadRequest)
			return ctx.JSON(fiber.Map{"error": "unknown button " + id})
		}
		return ctx.JSON(fiber.Map{
			"button": scope.FormatButton(button),
			"result": s.disp.Press(button),
		})
	}
}

// parseButton resolves a button index or name
func parseButton(id string) (int, bool) {
	if n, err := strconv.Atoi(id); err == nil {
		return n, n >= 0 && n < scope.NumButtons
	}
	for i := 0; i < scope.NumButtons; i++ {
		if strings.EqualFold(id, scope.FormatButton(i)) {
			return i, true
		}
	}
	return 0, false
}
