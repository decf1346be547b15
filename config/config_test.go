package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:8000", cfg.Server.ServiceURL)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "models.json", cfg.Models.ConfigPath)
	assert.Equal(t, 24*time.Hour, cfg.Files.TTL)
	assert.Equal(t, 3, cfg.Remote.Retry.MaxAttempts)
	assert.Equal(t, 50, cfg.Jobs.HistorySize)
	assert.Equal(t, "info", cfg.LogLevel)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9100"
  api_key: hunter2
remote:
  request_timeout: 30s
  services:
    txt2img:
      calls_per_second: 2
      burst: 4
      max_concurrent: 8
log_level: debug
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, "hunter2", cfg.Server.APIKey)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Remote.RequestTimeout)

	// Unset fields keep their defaults.
	assert.Equal(t, "http://localhost:8000", cfg.Server.ServiceURL)
	assert.Equal(t, 3, cfg.Remote.Retry.MaxAttempts)

	limits, ok := cfg.Remote.Services["txt2img"]
	require.True(t, ok)
	assert.Equal(t, 2.0, limits.CallsPerSecond)
	assert.Equal(t, 4, limits.Burst)
	assert.Equal(t, 8, limits.MaxConcurrent)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeConfig(t, "server: [not a mapping"))
	assert.Error(t, err)
}

func TestLoadEnvironmentWins(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9100"
log_level: debug
`)
	t.Setenv("WEFT_ADDR", ":9200")
	t.Setenv("WEFT_API_KEY", "env-secret")
	t.Setenv("WEFT_FILES_TTL", "2h")
	t.Setenv("WEFT_JOB_HISTORY_SIZE", "10")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.Server.Addr, "environment overrides the file")
	assert.Equal(t, "env-secret", cfg.Server.APIKey)
	assert.Equal(t, 2*time.Hour, cfg.Files.TTL)
	assert.Equal(t, 10, cfg.Jobs.HistorySize)
	assert.Equal(t, "debug", cfg.LogLevel, "file value survives when the env var is unset")
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing addr", func(c *Config) { c.Server.Addr = "" }},
		{"missing service url", func(c *Config) { c.Server.ServiceURL = "" }},
		{"missing model config", func(c *Config) { c.Models.ConfigPath = "" }},
		{"non-positive file ttl", func(c *Config) { c.Files.TTL = 0 }},
		{"zero retry attempts", func(c *Config) { c.Remote.Retry.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
