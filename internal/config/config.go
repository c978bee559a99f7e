// Package config holds the runtime configuration of aerosync and the settings snapshot that the
// presentation layer pushes into the core.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults for the connection and watchdog timings.
const (
	DefaultURL                    = "ws://localhost:8765/ws"
	DefaultDialTimeout            = 10 * time.Second
	DefaultHeartbeatInterval      = 30 * time.Second
	DefaultHeartbeatCheckInterval = 10 * time.Second
	DefaultHeartbeatTimeout       = 60 * time.Second
	DefaultBackoffBase            = 5 * time.Second
	DefaultMaxAttempts            = 10
	DefaultStaleAfter             = 60 * time.Second
	DefaultSummaryInterval        = 15 * time.Minute
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is everything the core needs to run a session.
// Values are read from an optional YAML file first and then overridden by environment variables.
type Config struct {
	URL                    string        `yaml:"url"                      env:"AEROSYNC_URL"`
	DialTimeout            time.Duration `yaml:"dial_timeout"             env:"AEROSYNC_DIAL_TIMEOUT"`
	HeartbeatInterval      time.Duration `yaml:"heartbeat_interval"       env:"AEROSYNC_HEARTBEAT_INTERVAL"`
	HeartbeatCheckInterval time.Duration `yaml:"heartbeat_check_interval" env:"AEROSYNC_HEARTBEAT_CHECK_INTERVAL"`
	HeartbeatTimeout       time.Duration `yaml:"heartbeat_timeout"        env:"AEROSYNC_HEARTBEAT_TIMEOUT"`
	BackoffBase            time.Duration `yaml:"backoff_base"             env:"AEROSYNC_BACKOFF_BASE"`
	// BackoffCap limits a single backoff delay. Zero leaves the delay uncapped.
	BackoffCap      time.Duration `yaml:"backoff_cap"      env:"AEROSYNC_BACKOFF_CAP"`
	MaxAttempts     int           `yaml:"max_attempts"     env:"AEROSYNC_MAX_ATTEMPTS"`
	StaleAfter      time.Duration `yaml:"stale_after"      env:"AEROSYNC_STALE_AFTER"`
	SummaryInterval time.Duration `yaml:"summary_interval" env:"AEROSYNC_SUMMARY_INTERVAL"`
	MetricsAddr     string        `yaml:"metrics_addr"     env:"AEROSYNC_METRICS_ADDR"`
	LogLevel        string        `yaml:"log_level"        env:"AEROSYNC_LOG_LEVEL"`
	Settings        Settings      `yaml:"settings"`
}

// Default returns the configuration used when neither a file nor environment variables are given.
func Default() Config {
	return Config{
		URL:                    DefaultURL,
		DialTimeout:            DefaultDialTimeout,
		HeartbeatInterval:      DefaultHeartbeatInterval,
		HeartbeatCheckInterval: DefaultHeartbeatCheckInterval,
		HeartbeatTimeout:       DefaultHeartbeatTimeout,
		BackoffBase:            DefaultBackoffBase,
		BackoffCap:             0,
		MaxAttempts:            DefaultMaxAttempts,
		StaleAfter:             DefaultStaleAfter,
		SummaryInterval:        DefaultSummaryInterval,
		MetricsAddr:            "",
		LogLevel:               "info",
		Settings:               DefaultSettings(),
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config.Load: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config.Load: failed to parse %s: %w", path, err)
		}
	}

	// Defaults come from Default(), so only variables that are actually set override the file.
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configurations the connection manager cannot run with.
func (c Config) Validate() error {
	switch {
	case c.URL == "":
		return fmt.Errorf("%w: url must not be empty", ErrInvalidConfig)
	case c.HeartbeatInterval <= 0, c.HeartbeatCheckInterval <= 0, c.HeartbeatTimeout <= 0:
		return fmt.Errorf("%w: heartbeat durations must be positive", ErrInvalidConfig)
	case c.BackoffBase <= 0:
		return fmt.Errorf("%w: backoff_base must be positive", ErrInvalidConfig)
	case c.BackoffCap < 0:
		return fmt.Errorf("%w: backoff_cap must not be negative", ErrInvalidConfig)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max_attempts must be positive", ErrInvalidConfig)
	case c.DialTimeout <= 0:
		return fmt.Errorf("%w: dial_timeout must be positive", ErrInvalidConfig)
	case c.StaleAfter <= 0, c.SummaryInterval <= 0:
		return fmt.Errorf("%w: stale_after and summary_interval must be positive", ErrInvalidConfig)
	}

	return c.Settings.Validate()
}
