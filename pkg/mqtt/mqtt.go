// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqtt publishes messages to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

const (
	// quiesce is the number of milliseconds to wait for pending work on disconnect
	quiesce = 250

	connectTimeout = 10 * time.Second
)

// ErrNotConnected is returned when publishing without a broker
var ErrNotConnected = errors.New("mqtt broker not connected")

// Message is one MQTT publication
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}

// Handler owns the client connection to the broker.
// Sending a Message to C publishes it while Service runs.
type Handler struct {
	client   mqttlib.Client
	clientID string

	C chan Message
}

// New creates a handler. clientID may be empty.
func New(clientID string) *Handler {
	return &Handler{
		clientID: clientID,
		C:        make(chan Message, 16),
	}
}

// Connect connects to broker. An empty broker disables publishing.
func (m *Handler) Connect(broker string) error {
	if broker == "" {
		return nil
	}

	opts := mqttlib.NewClientOptions().
		AddBroker(broker).
		SetClientID(m.clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	m.client = mqttlib.NewClient(opts)
	return m.ReConnect()
}

// ReConnect reconnects to the configured broker
func (m *Handler) ReConnect() error {
	if m.client == nil {
		return ErrNotConnected
	}
	t := m.client.Connect()
	if !t.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect: timeout after %s", connectTimeout)
	}
	return t.Error()
}

// Enabled reports whether a broker was configured
func (m *Handler) Enabled() bool {
	return m.client != nil
}

// Disconnect ends the connection to the broker
func (m *Handler) Disconnect() {
	if m.client == nil {
		return
	}
	m.client.Disconnect(quiesce)
}

// PublishJSON marshals v and queues it for topic. It returns without
// blocking if the queue is full.
func (m *Handler) PublishJSON(topic string, v any) error {
	if m.client == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt payload: %w", err)
	}
	select {
	case m.C <- Message{Topic: topic, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("mqtt queue full, dropped message for %s", topic)
	}
}

// Service publishes messages from C until ctx is done.
// Messages without a handler or topic are ignored.
func (m *Handler) Service(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.C:
			if m.client == nil || msg.Topic == "" {
				continue
			}
			m.publish(msg)
		}
	}
}

func (m *Handler) publish(msg Message) {
	if !m.client.IsConnected() {
		debug.DebugLog.Printf("mqtt broker isn't connected, reconnect it")
		if err := m.ReConnect(); err != nil {
			debug.ErrorLog.Printf("can't reconnect to mqtt broker %v", err)
			return
		}
	}

	debug.DebugLog.Printf("publishing %v bytes to topic %v", len(msg.Payload), msg.Topic)
	t := m.client.Publish(msg.Topic, msg.Qos, msg.Retained, msg.Payload)

	go func() {
		<-t.Done()
		if err := t.Error(); err != nil {
			debug.ErrorLog.Printf("publishing topic %v: %v", msg.Topic, err)
		}
	}()
}
