// Package config provides configuration loading and management for weft.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete weft service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Models   ModelsConfig   `yaml:"models"`
	Files    FilesConfig    `yaml:"files"`
	Remote   RemoteConfig   `yaml:"remote"`
	Jobs     JobsConfig     `yaml:"jobs"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig configures the HTTP surface and this pod's identity.
type ServerConfig struct {
	// Addr is the bind address (host:port).
	Addr string `yaml:"addr"`
	// APIKey is the shared secret required on authenticated routes.
	APIKey string `yaml:"api_key"`
	// ServiceURL is this pod's externally reachable base URL; webhook
	// callback URLs are derived from it.
	ServiceURL string `yaml:"service_url"`
	// PodID identifies this pod in submission responses.
	PodID string `yaml:"pod_id"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelsConfig locates the model catalog and workflow assets.
type ModelsConfig struct {
	// ConfigPath is the model configuration JSON file.
	ConfigPath string `yaml:"config_path"`
	// DefaultModel overrides the config file's default_model when set.
	DefaultModel string `yaml:"default_model"`
	// CustomNodesDir holds JSON custom node definitions, loaded at startup.
	CustomNodesDir string `yaml:"custom_nodes_dir"`
}

// FilesConfig configures the local output file cache.
type FilesConfig struct {
	// Dir is the cache directory for generated files.
	Dir string `yaml:"dir"`
	// TTL is how long generated files stay servable.
	TTL time.Duration `yaml:"ttl"`
}

// ServiceLimits bounds outbound traffic to one remote service.
type ServiceLimits struct {
	CallsPerSecond float64 `yaml:"calls_per_second"`
	Burst          int     `yaml:"burst"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
}

// RemoteConfig configures the shared remote-service client.
type RemoteConfig struct {
	// APIKey is sent as X-API-Key on outbound service calls.
	APIKey string `yaml:"api_key"`
	// RequestTimeout bounds each outbound HTTP call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Retry configures backoff for transient failures.
	Retry RetryConfig `yaml:"retry"`
	// Services holds per-service traffic limits, keyed by service name.
	Services map[string]ServiceLimits `yaml:"services"`
}

// RetryConfig mirrors the remote client's retry knobs.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
}

// JobsConfig configures job manager behavior.
type JobsConfig struct {
	// HistorySize bounds the processing-time ring used for wait estimates.
	HistorySize int `yaml:"history_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ServiceURL:      "http://localhost:8000",
			ShutdownTimeout: 15 * time.Second,
		},
		Models: ModelsConfig{
			ConfigPath: "models.json",
		},
		Files: FilesConfig{
			Dir: "output",
			TTL: 24 * time.Hour,
		},
		Remote: RemoteConfig{
			RequestTimeout: 2 * time.Minute,
			Retry: RetryConfig{
				MaxAttempts:       3,
				BackoffBase:       time.Second,
				BackoffMultiplier: 2.0,
				MaxBackoff:        10 * time.Second,
			},
		},
		Jobs: JobsConfig{
			HistorySize: 50,
		},
		LogLevel: "info",
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ServiceURL == "" {
		return fmt.Errorf("server.service_url is required")
	}
	if c.Models.ConfigPath == "" {
		return fmt.Errorf("models.config_path is required")
	}
	if c.Files.TTL <= 0 {
		return fmt.Errorf("files.ttl must be positive")
	}
	if c.Remote.Retry.MaxAttempts < 1 {
		return fmt.Errorf("remote.retry.max_attempts must be at least 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}
