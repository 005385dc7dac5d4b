package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"hidreader/device"
	"hidreader/hid"
	"hidreader/mqtt"
	"hidreader/report"
)

// Config is the main configuration structure for hidreader.
type Config struct {
	// Identifies this reader in MQTT topics and client IDs.
	ClientID string `yaml:"client_id"`

	// Reader device configuration
	Reader device.Config `yaml:"reader"`

	// MQTT connection settings; reporting over MQTT is off without a host
	MQTT mqtt.Config `yaml:"mqtt"`

	// Report payload settings
	Report report.Config `yaml:"report"`

	// Timing
	PollInterval      time.Duration `yaml:"poll_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"` // per worker
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Logging
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
}

// loadConfig reads the YAML config at path. A missing file yields the
// defaults unless required is set.
func loadConfig(path string, required bool) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !required:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "hidreader"
		}
		c.ClientID = host
	}
	c.Reader = c.Reader.WithDefaults()
	if c.PollInterval <= 0 {
		c.PollInterval = hid.DefaultPollInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 3 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	return c
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
