// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/scopestat/pkg/scope"
	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config holds the application configuration. Values come from NewConfig,
// then the YAML file given with --config, then explicitly set flags.
type Config struct {
	Serial      SerialConfig    `yaml:"serial"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	Profile     string          `yaml:"profile"`
	SampleRate  float64         `yaml:"samplerate"`
	Channels    []int           `yaml:"channels"`
	Calibration string          `yaml:"calibration"`
	Log         LogConfig       `yaml:"log"`
	Webserver   WebserverConfig `yaml:"webserver"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	Flag        FlagConfig      `yaml:"-"`
}

// FlagConfig holds the command line values that steer config loading
type FlagConfig struct {
	ConfigFile string
	LogLevel   string
}

// SerialConfig defines the serial transport
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// WebSocketConfig defines the WebSocket bridge transport
type WebSocketConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// LogConfig defines where and how much is logged
type LogConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"level"`
	FileString string         `yaml:"file"`
}

// WebserverConfig defines the listen URL and the enabled webservices of the serve command
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the broker measurements are published to
type MQTTConfig struct {
	Connection  string        `yaml:"connection"`
	ClientID    string        `yaml:"clientid"`
	Topic       string        `yaml:"topic"`
	IntervalInt int           `yaml:"interval"`
	Interval    time.Duration `yaml:"-"`
}

// NewConfig returns the default configuration
func NewConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud: scope.DefaultBaud,
		},
		Profile:    scope.ProfileWide.Name,
		SampleRate: scope.DefaultRate,
		Channels:   []int{1, 2, 3},
		Log: LogConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version":      true,
				"health":       true,
				"samples":      true,
				"measurements": true,
				"control":      true,
				"statistics":   true,
				"autozero":     true,
				"button":       true,
			},
		},
		MQTT: MQTTConfig{
			ClientID:    module,
			Topic:       "scopestat/measurements",
			IntervalInt: 5,
			Interval:    5 * time.Second,
		},
	}
}

// LoadConfig reads the configuration file if one was given and resolves the
// derived fields
func (c *Config) LoadConfig() error {
	if c.Flag.ConfigFile != "" {
		if err := c.readConfigFile(); err != nil {
			return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
		}
	}

	if c.Flag.LogLevel != "" {
		c.Log.FlagString = c.Flag.LogLevel
	}
	if err := c.setLogConfig(); err != nil {
		return fmt.Errorf("unable to open log file %q: %w", c.Log.FileString, err)
	}

	c.MQTT.Interval = time.Duration(c.MQTT.IntervalInt) * time.Second
	if c.MQTT.Interval <= 0 {
		c.MQTT.Interval = 5 * time.Second
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %v", c.SampleRate)
	}
	if _, err := c.EnabledChannels(); err != nil {
		return err
	}
	return nil
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) setLogConfig() (err error) {
	switch c.Log.FlagString {
	case "trace", "full":
		c.Log.Flag = debug.Full
	case "debug":
		c.Log.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard", "":
		c.Log.Flag = debug.Standard
	default:
		return fmt.Errorf("unknown log level %q", c.Log.FlagString)
	}

	switch c.Log.FileString {
	case "stderr", "":
		c.Log.File = os.Stderr
	case "stdout":
		c.Log.File = os.Stdout
	default:
		if c.Log.File, err = os.OpenFile(c.Log.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}
	return
}

// Close releases the log file if one was opened
func (c *Config) Close() {
	if c.Log.File == nil || c.Log.File == os.Stderr || c.Log.File == os.Stdout {
		return
	}
	_ = c.Log.File.Close()
}

// ScopeProfile resolves the configured control profile
func (c *Config) ScopeProfile() (scope.Profile, error) {
	return scope.LookupProfile(c.Profile)
}

// EnabledChannels converts the 1-based channel list into an enable mask
func (c *Config) EnabledChannels() (scope.Channels, error) {
	var enabled scope.Channels
	for _, ch := range c.Channels {
		if ch < 1 || ch > scope.NumChannels {
			return enabled, fmt.Errorf("invalid channel %d (expected 1-%d)", ch, scope.NumChannels)
		}
		enabled[ch-1] = true
	}
	return enabled, nil
}

// InstrumentConfig builds the core configuration
func (c *Config) InstrumentConfig() (scope.Config, error) {
	profile, err := c.ScopeProfile()
	if err != nil {
		return scope.Config{}, err
	}
	enabled, err := c.EnabledChannels()
	if err != nil {
		return scope.Config{}, err
	}
	return scope.Config{
		Profile:    profile,
		SampleRate: c.SampleRate,
		Enabled:    enabled,
	}, nil
}
