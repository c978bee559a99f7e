package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatCheckInterval)
	assert.Equal(t, 60*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 5*time.Second, cfg.BackoffBase)
	assert.Equal(t, 10, cfg.MaxAttempts)
	assert.Zero(t, cfg.BackoffCap)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, cfg.URL)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aerosync.yaml")
	content := `
url: ws://feed.example:9000/ws
heartbeat_timeout: 45s
max_attempts: 4
settings:
  update_interval_seconds: 2
  proximity_distance_nm: 8
  proximity_altitude_ft: 2000
  collision_distance_nm: 1
  collision_altitude_ft: 500
  filter:
    emergency_only: true
    search: BAW
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("AEROSYNC_MAX_ATTEMPTS", "7")
	t.Setenv("AEROSYNC_SPEECH", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://feed.example:9000/ws", cfg.URL)
	assert.Equal(t, 45*time.Second, cfg.HeartbeatTimeout)
	// values not in the file keep their defaults
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	// environment wins over the file
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.True(t, cfg.Settings.SpeechEnabled)
	assert.InDelta(t, 8.0, cfg.Settings.ProximityDistanceNM, 1e-9)
	assert.True(t, cfg.Settings.Filter.EmergencyOnly)
	assert.Equal(t, "BAW", cfg.Settings.Filter.Search)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.URL = "" }},
		{"zero heartbeat timeout", func(c *Config) { c.HeartbeatTimeout = 0 }},
		{"zero backoff base", func(c *Config) { c.BackoffBase = 0 }},
		{"negative backoff cap", func(c *Config) { c.BackoffCap = -time.Second }},
		{"zero max attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero dial timeout", func(c *Config) { c.DialTimeout = 0 }},
		{"zero stale after", func(c *Config) { c.StaleAfter = 0 }},
		{"zero summary interval", func(c *Config) { c.SummaryInterval = 0 }},
		{"zero proximity distance", func(c *Config) { c.Settings.ProximityDistanceNM = 0 }},
		{"collision wider than proximity", func(c *Config) { c.Settings.CollisionDistanceNM = 10 }},
		{"zero update interval", func(c *Config) { c.Settings.UpdateIntervalSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
