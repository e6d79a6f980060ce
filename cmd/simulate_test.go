// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/Thermoquad/scopestat/pkg/simulator"
	"github.com/gorilla/websocket"
)

func TestParseSignal(t *testing.T) {
	sig, err := parseSignal("square:120:1:2.5")
	if err != nil {
		t.Fatalf("parseSignal failed: %v", err)
	}
	want := simulator.Signal{Shape: simulator.ShapeSquare, Frequency: 120, Amplitude: 1, Offset: 2.5}
	if sig != want {
		t.Errorf("Expected %+v, got %+v", want, sig)
	}

	for _, bad := range []string{"sine:50:2", "saw:1:1:1", "sine:fast:1:1"} {
		if _, err := parseSignal(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestParsePots(t *testing.T) {
	pots, err := parsePots("0, 512,1023")
	if err != nil {
		t.Fatalf("parsePots failed: %v", err)
	}
	if pots != [scope.NumPots]uint16{0, 512, 1023} {
		t.Errorf("Unexpected pots %v", pots)
	}
	for _, bad := range []string{"1,2", "1,2,1024", "1,x,3"} {
		if _, err := parsePots(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestStreamHub_WebSocketRoundTrip(t *testing.T) {
	hub := newStreamHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := OpenWebSocketConnection(wsURL, "", "", false)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, time.Second, func() bool { return hub.Clients() == 1 })

	g, err := simulator.New(simulator.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	frame := g.Next()
	if _, err := hub.Write(frame); err != nil {
		t.Fatalf("hub write failed: %v", err)
	}

	inst := scope.NewInstrument(scope.DefaultConfig())
	buf := make([]byte, readBufferSize)
	for inst.Buffered() < len(frame) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		inst.Ingest(buf[:n])
	}
	res, ok := inst.Process()
	if !ok || res.Waveforms != 1 {
		t.Fatalf("Expected one waveform through the hub, got %+v", res)
	}
}

func TestStreamHub_NoClients(t *testing.T) {
	hub := newStreamHub()
	n, err := hub.Write([]byte{0xAA, 0x55})
	if err != nil || n != 2 {
		t.Errorf("Expected write to succeed without clients, got %d, %v", n, err)
	}
}

func TestIsConnectionLost(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"normal closure", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"abnormal closure", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, true},
		{"closed", fmt.Errorf("read: %w", ErrConnectionClosed), true},
		{"eof", io.EOF, true},
		{"timeout", errors.New("i/o timeout"), false},
	}
	for _, tt := range tests {
		if got := isConnectionLost(tt.err); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
