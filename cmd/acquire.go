// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/womat/debug"
)

const (
	readBufferSize = 1024
	readRetryDelay = 10 * time.Millisecond
	minBackoff     = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// acquisition feeds a transport into an Instrument. A producer goroutine reads
// the connection and ingests; a consumer goroutine processes whenever new bytes
// arrived. It also handles connection loss and reconnection.
type acquisition struct {
	inst *scope.Instrument
	open func() (Connection, string, error)

	mu       sync.RWMutex
	conn     Connection
	connInfo string

	// Optional callbacks, called from the acquisition goroutines
	onResult    func(scope.Result)
	onLost      func()
	onReconnect func(connInfo string)

	backoff    time.Duration
	maxBackoff time.Duration
}

func newAcquisition(inst *scope.Instrument, conn Connection, connInfo string) *acquisition {
	return &acquisition{
		inst:       inst,
		open:       OpenConnection,
		conn:       conn,
		connInfo:   connInfo,
		backoff:    minBackoff,
		maxBackoff: maxBackoff,
	}
}

func (a *acquisition) getConn() Connection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn
}

func (a *acquisition) setConn(conn Connection, connInfo string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conn = conn
	a.connInfo = connInfo
}

// ConnInfo describes the current transport
func (a *acquisition) ConnInfo() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connInfo
}

// Run acquires until ctx is cancelled. The current connection is closed on return.
func (a *acquisition) Run(ctx context.Context) {
	ready := make(chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.consume(ctx, ready)
	}()

	// Unblock a pending Read on shutdown
	stop := context.AfterFunc(ctx, func() {
		if conn := a.getConn(); conn != nil {
			_ = conn.Close()
		}
	})
	defer stop()

	for {
		a.produce(ctx, ready)
		if ctx.Err() != nil {
			break
		}

		debug.ErrorLog.Printf("connection lost: %s", a.ConnInfo())
		if a.onLost != nil {
			a.onLost()
		}
		if !a.reconnect(ctx) {
			break
		}
	}

	wg.Wait()
	if conn := a.getConn(); conn != nil {
		_ = conn.Close()
	}
}

// produce reads from the current connection until it is lost or ctx is done
func (a *acquisition) produce(ctx context.Context, ready chan<- struct{}) {
	conn := a.getConn()
	if conn == nil {
		return
	}
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			a.inst.Ingest(buf[:n])
			debug.TraceLog.Printf("read %d bytes", n)
			select {
			case ready <- struct{}{}:
			default:
			}
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil || isConnectionLost(err) {
			return
		}
		debug.ErrorLog.Printf("read error: %v", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(readRetryDelay):
		}
	}
}

// consume processes the instrument each time the producer signals new bytes
func (a *acquisition) consume(ctx context.Context, ready <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
		}

		res, ok := a.inst.Process()
		if !ok {
			debug.TraceLog.Print("process pass skipped, buffer busy")
			continue
		}
		for _, anomaly := range res.Anomalies {
			debug.DebugLog.Printf("anomalous frame: %s", anomaly.Message)
		}
		if a.onResult != nil && (res.Waveforms > 0 || res.Controls > 0) {
			a.onResult(res)
		}
	}
}

// reconnect retries opening the transport with exponential backoff.
// It returns false if ctx was cancelled first.
func (a *acquisition) reconnect(ctx context.Context) bool {
	if conn := a.getConn(); conn != nil {
		_ = conn.Close()
	}
	a.setConn(nil, a.ConnInfo())

	backoff := a.backoff
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := a.open()
		if err == nil {
			a.setConn(conn, connInfo)
			// Shutdown may have raced the dial
			if ctx.Err() != nil {
				_ = conn.Close()
				return false
			}
			debug.InfoLog.Printf("reconnected: %s", connInfo)
			if a.onReconnect != nil {
				a.onReconnect(connInfo)
			}
			return true
		}

		debug.DebugLog.Printf("reconnect failed, retry in %s: %v", backoff, err)
		backoff *= 2
		if backoff > a.maxBackoff {
			backoff = a.maxBackoff
		}
	}
}
