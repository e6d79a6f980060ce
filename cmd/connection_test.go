// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestWebSocketConnection_Read(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xAA, 0x55, 0x01})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	conn, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "", "", false)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// The text message is skipped and the binary one is split across reads
	buf := make([]byte, 2)
	n, err := conn.Read(buf)
	if err != nil || n != 2 || buf[0] != 0xAA || buf[1] != 0x55 {
		t.Fatalf("Expected AA55, got %x (%v)", buf[:n], err)
	}
	n, err = conn.Read(buf)
	if err != nil || n != 1 || buf[0] != 0x01 {
		t.Fatalf("Expected 01, got %x (%v)", buf[:n], err)
	}

	_, err = conn.Read(buf)
	if !isConnectionLost(err) {
		t.Fatalf("Expected a lost connection, got %v", err)
	}
	if _, err := conn.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed after failure, got %v", err)
	}
}

func TestOpenWebSocketConnection_InvalidScheme(t *testing.T) {
	if _, err := OpenWebSocketConnection("http://localhost/ws", "", "", false); err == nil {
		t.Error("Expected error for http:// URL")
	}
}
