// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Thermoquad/scopestat/pkg/mqtt"
	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/spf13/cobra"
	"github.com/womat/debug"
)

var (
	serveListen string
	serveBroker string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve measurements over HTTP and publish them to MQTT",
	Long: `Acquire in the background and expose the instrument over HTTP.

Webservices (each can be disabled in the webserver section of the config file):
  GET  /version        application version
  GET  /health         process health
  GET  /samples        calibrated samples of the latest window
  GET  /measurements   per-channel measurements and rolling averages
  GET  /control        control surface state and view toggles
  GET  /statistics     frame statistics
  POST /autozero       auto-zero the enabled channels
  POST /button/:id     press a button by index (0-9) or name

If an MQTT broker is configured (--mqtt or mqtt.connection), the measurements
are published as JSON at the configured interval.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Webserver `URL` (default from config, http://0.0.0.0:4000)")
	serveCmd.Flags().StringVar(&serveBroker, "mqtt", "", "MQTT broker `URL` (e.g. tcp://localhost:1883)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("listen") {
		cfg.Webserver.URL = serveListen
	}
	if cmd.Flags().Changed("mqtt") {
		cfg.MQTT.Connection = serveBroker
	}

	u, err := url.Parse(cfg.Webserver.URL)
	if err != nil {
		return fmt.Errorf("invalid webserver url %q: %w", cfg.Webserver.URL, err)
	}

	inst, err := newInstrument()
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	disp := newDispatcher(inst, cfg.Calibration)
	server := newWebServer(inst, disp, cfg.Webserver.Webservices)

	broker := mqtt.New(cfg.MQTT.ClientID)
	if err := broker.Connect(cfg.MQTT.Connection); err != nil {
		_ = conn.Close()
		return fmt.Errorf("can't open mqtt broker %s: %w", cfg.MQTT.Connection, err)
	}
	defer broker.Disconnect()

	acq := newAcquisition(inst, conn, connInfo)
	acq.onResult = func(res scope.Result) {
		disp.HandleEvents(res.Events)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		acq.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		broker.Service(ctx)
	}()
	go func() {
		defer wg.Done()
		publishMeasurements(ctx, inst, broker, cfg.MQTT.Topic, cfg.MQTT.Interval)
	}()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.web.Listen(u.Host)
	}()

	debug.InfoLog.Printf("serving %s on %s", connInfo, u.Host)
	if broker.Enabled() {
		debug.InfoLog.Printf("publishing measurements to %s every %s", cfg.MQTT.Topic, cfg.MQTT.Interval)
	}

	select {
	case <-ctx.Done():
		if err := server.web.Shutdown(); err != nil {
			debug.ErrorLog.Printf("webserver shutdown: %v", err)
		}
		err = nil
	case err = <-listenErr:
		debug.ErrorLog.Print(err)
		cancel()
	}
	wg.Wait()
	return err
}

// publishMeasurements sends the latest measurements to topic every interval
func publishMeasurements(ctx context.Context, inst *scope.Instrument, broker *mqtt.Handler, topic string, interval time.Duration) {
	if !broker.Enabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st := inst.Latest()
		if st.Sequence == last {
			continue
		}
		last = st.Sequence
		if err := broker.PublishJSON(topic, newMeasurementsResponse(st)); err != nil {
			debug.ErrorLog.Printf("mqtt: %v", err)
		}
	}
}
