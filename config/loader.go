package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Load builds the effective configuration: defaults, then the YAML file at
// path (when non-empty), then WEFT_* environment overrides. The environment
// wins, matching how deployments inject per-pod identity and secrets.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
		logger.Debug("loaded config file", slog.String("path", path))
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// applyEnv overlays WEFT_* environment variables onto the config.
func applyEnv(c *Config) {
	setString(&c.Server.Addr, "WEFT_ADDR")
	setString(&c.Server.APIKey, "WEFT_API_KEY")
	setString(&c.Server.ServiceURL, "WEFT_SERVICE_URL")
	setString(&c.Server.PodID, "WEFT_POD_ID")
	setString(&c.Models.ConfigPath, "WEFT_MODEL_CONFIG")
	setString(&c.Models.DefaultModel, "WEFT_DEFAULT_MODEL")
	setString(&c.Models.CustomNodesDir, "WEFT_CUSTOM_NODES_DIR")
	setString(&c.Files.Dir, "WEFT_FILES_DIR")
	setDuration(&c.Files.TTL, "WEFT_FILES_TTL")
	setString(&c.Remote.APIKey, "WEFT_REMOTE_API_KEY")
	setDuration(&c.Remote.RequestTimeout, "WEFT_REMOTE_TIMEOUT")
	setInt(&c.Jobs.HistorySize, "WEFT_JOB_HISTORY_SIZE")
	setString(&c.LogLevel, "WEFT_LOG_LEVEL")
}

func setString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func setDuration(target *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*target = d
		}
	}
}

func setInt(target *int, key string) {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*target = n
		}
	}
}
