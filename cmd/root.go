// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/womat/debug"
)

const (
	version = "1.0.0"
	module  = "scopestat"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Application flags
	configFile  string
	logLevel    string
	profileName string

	// cfg is the resolved configuration, loaded before any subcommand runs
	cfg = NewConfig()
)

var rootCmd = &cobra.Command{
	Use:   module,
	Short: "Three-channel scope stream analyzer",
	Long: `Scopestat - A CLI tool for decoding and analyzing the framed byte stream of a
three-channel oscilloscope front end.

The device sends waveform frames (200 samples for each of 3 channels) and
control frames (3 potentiometers, 10 buttons). Scopestat decodes both, applies
DC calibration, maps the control surface and computes per-channel measurements.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 250000]
  WebSocket: --url ws://host/path [--username user]

Settings can also be read from a YAML file with --config. Command line flags
override the file. For WebSocket authentication, the password is read from the
SCOPESTAT_PASSWORD environment variable, or prompted interactively if not set.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg.Flag = FlagConfig{
			ConfigFile: configFile,
			LogLevel:   logLevel,
		}
		if err := cfg.LoadConfig(); err != nil {
			return err
		}
		applyFlagOverrides(cmd)

		debug.SetDebug(cfg.Log.File, cfg.Log.Flag)
		debug.DebugLog.Printf("%s %s: profile=%s rate=%.0f", module, version, cfg.Profile, cfg.SampleRate)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cfg.Close()
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 250000, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Application flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Load configuration from YAML `FILE`")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log", "l", "", "Log `LEVEL` (standard|debug|trace)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Control profile (wide|classic)")
}

// applyFlagOverrides copies explicitly set connection flags over the configuration
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("profile") {
		cfg.Profile = profileName
	}
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
