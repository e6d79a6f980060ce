// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/Thermoquad/scopestat/pkg/simulator"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/womat/debug"
)

var (
	simListen   string
	simOutput   string
	simSignals  []string
	simPots     string
	simPress    []string
	simControl  int
	simDuration time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate a synthetic scope stream",
	Long: `Generate the byte stream of a scope front end without hardware.

Each channel is described as shape:frequency:amplitude:offset, for example
--signal sine:50:2:2.5 --signal square:120:1:2.5 --signal dc:0:0:1.5.
Shapes are dc, sine, square and ramp. Amplitude is the peak in volts.

The stream is written to one of:
  --port /dev/ttyUSB1        a serial port (e.g. one end of a null-modem pair)
  --listen :8080             a WebSocket server, clients connect to ws://host:8080/ws
  --output stream.bin        a file

Control frames carry the --pots readings. Every --press queues one press of
the named button (e.g. --press run_stop --press auto_zero).`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simListen, "listen", "", "Serve the stream over WebSocket on `ADDR`")
	simulateCmd.Flags().StringVarP(&simOutput, "output", "o", "", "Write the stream to `FILE`")
	simulateCmd.Flags().StringArrayVar(&simSignals, "signal", nil, "Channel signal shape:freq:amplitude:offset (repeat per channel)")
	simulateCmd.Flags().StringVar(&simPots, "pots", "512,512,512", "Potentiometer readings time,volt,position (0-1023)")
	simulateCmd.Flags().StringArrayVar(&simPress, "press", nil, "Queue a button press by index or name (repeatable)")
	simulateCmd.Flags().IntVar(&simControl, "control-every", 5, "Emit a control frame every N waveform frames (0 = never)")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 0, "Stop after this duration (0 = unlimited)")
}

// parseSignal parses shape:freq:amplitude:offset
func parseSignal(s string) (simulator.Signal, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return simulator.Signal{}, fmt.Errorf("invalid signal %q (expected shape:freq:amplitude:offset)", s)
	}
	shape, err := simulator.ParseShape(parts[0])
	if err != nil {
		return simulator.Signal{}, err
	}
	var vals [3]float64
	for i, p := range parts[1:] {
		if vals[i], err = strconv.ParseFloat(p, 64); err != nil {
			return simulator.Signal{}, fmt.Errorf("invalid signal %q: %w", s, err)
		}
	}
	return simulator.Signal{Shape: shape, Frequency: vals[0], Amplitude: vals[1], Offset: vals[2]}, nil
}

// parsePots parses three comma separated raw readings
func parsePots(s string) ([scope.NumPots]uint16, error) {
	var pots [scope.NumPots]uint16
	parts := strings.Split(s, ",")
	if len(parts) != scope.NumPots {
		return pots, fmt.Errorf("invalid pots %q (expected %d values)", s, scope.NumPots)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil || v > scope.ADCMax {
			return pots, fmt.Errorf("invalid pot value %q (0-%d)", p, scope.ADCMax)
		}
		pots[i] = uint16(v)
	}
	return pots, nil
}

// simulatorConfig builds the generator configuration from flags
func simulatorConfig() (simulator.Config, error) {
	sc := simulator.DefaultConfig()
	sc.SampleRate = cfg.SampleRate
	sc.ControlEvery = simControl

	if len(simSignals) > scope.NumChannels {
		return sc, fmt.Errorf("at most %d signals", scope.NumChannels)
	}
	for i, s := range simSignals {
		sig, err := parseSignal(s)
		if err != nil {
			return sc, err
		}
		sc.Signals[i] = sig
	}

	pots, err := parsePots(simPots)
	if err != nil {
		return sc, err
	}
	sc.Pots = pots
	return sc, nil
}

// streamHub fans the generated stream out to every connected WebSocket client
type streamHub struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newStreamHub() *streamHub {
	return &streamHub{clients: make(map[*streamClient]struct{})}
}

// Write broadcasts p as one binary message. Slow clients drop chunks.
func (h *streamHub) Write(p []byte) (int, error) {
	msg := append([]byte(nil), p...)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			debug.DebugLog.Printf("client %s lagging, chunk dropped", c.conn.RemoteAddr())
		}
	}
	return len(p), nil
}

// Clients returns the number of connected clients
func (h *streamHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *streamClient) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeHTTP upgrades the request and registers the client until it disconnects
func (h *streamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return true },
		ReadBufferSize:  1024,
		WriteBufferSize: 65536,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.ErrorLog.Printf("upgrade: %v", err)
		return
	}

	client := &streamClient{conn: conn, send: make(chan []byte, 256)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	debug.InfoLog.Printf("client connected: %s", conn.RemoteAddr())

	go client.writePump()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		close(client.send)
		debug.InfoLog.Printf("client disconnected: %s", conn.RemoteAddr())
	}()

	// Drain until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// openSimulatorSink resolves the output transport
func openSimulatorSink(ctx context.Context) (io.Writer, func() error, string, error) {
	if simListen != "" && simOutput != "" {
		return nil, nil, "", errors.New("--listen and --output are mutually exclusive")
	}
	if simListen == "" && simOutput == "" && cfg.Serial.Port == "" {
		return nil, nil, "", errors.New("one of --listen, --output or --port must be specified")
	}

	switch {
	case simOutput != "":
		f, err := os.Create(simOutput)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to create %s: %w", simOutput, err)
		}
		return f, f.Close, "file " + simOutput, nil

	case simListen != "":
		hub := newStreamHub()
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv := &http.Server{Addr: simListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				debug.ErrorLog.Printf("websocket server: %v", err)
			}
		}()
		shutdown := func() error {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		}
		return hub, shutdown, "websocket ws://" + simListen + "/ws", nil

	default:
		conn, err := OpenSerialConnection(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return nil, nil, "", err
		}
		return conn, conn.Close, fmt.Sprintf("serial %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sc, err := simulatorConfig()
	if err != nil {
		return err
	}
	gen, err := simulator.New(sc)
	if err != nil {
		return err
	}
	for _, p := range simPress {
		button, ok := parseButton(p)
		if !ok {
			return fmt.Errorf("unknown button %q", p)
		}
		if err := gen.Press(button); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if simDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, simDuration)
		defer cancel()
	}

	sink, closeSink, info, err := openSimulatorSink(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSink(); err != nil {
			debug.ErrorLog.Printf("closing %s: %v", info, err)
		}
	}()

	fmt.Printf("Scopestat - Simulator\n")
	fmt.Printf("Output: %s\n", info)
	fmt.Printf("Frame interval: %s\n", gen.FrameInterval())
	for ch, s := range sc.Signals {
		fmt.Printf("CH%d: %s %.1fHz %.2fVpk offset %.2fV\n", ch+1, s.Shape, s.Frequency, s.Amplitude, s.Offset)
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	return gen.Stream(ctx, sink)
}
