package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// Registry holds the model configurations loaded at startup. It is
// immutable after Load, so reads need no locking.
type Registry struct {
	configs      map[string]*Config
	defaultModel string
	logger       *slog.Logger
}

// configFile is the on-disk shape of the model configuration file.
type configFile struct {
	DefaultModel string                     `json:"default_model"`
	Models       map[string]json.RawMessage `json:"models"`
}

// Load reads the model configuration file. defaultOverride, when non-empty,
// takes precedence over the file's default_model; deployments select their
// default per pod through the environment.
func Load(path, defaultOverride string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model config %s: %w", path, err)
	}

	r := &Registry{
		configs: make(map[string]*Config, len(file.Models)),
		logger:  logger,
	}
	for name, raw := range file.Models {
		cfg := &Config{TimeoutMinutes: defaultTimeoutMinutes}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse model %q: %w", name, err)
		}
		if cfg.WorkflowPath == "" {
			return nil, fmt.Errorf("model %q: workflow_path is required", name)
		}
		r.configs[name] = cfg
	}

	r.defaultModel = file.DefaultModel
	if defaultOverride != "" {
		r.defaultModel = defaultOverride
		logger.Info("using default model from configuration override", slog.String("model", r.defaultModel))
	} else {
		logger.Info("using default model from config file", slog.String("model", r.defaultModel))
	}
	if _, ok := r.configs[r.defaultModel]; !ok {
		return nil, fmt.Errorf("default model %q not found in %s", r.defaultModel, path)
	}

	logger.Info("model configurations loaded",
		slog.String("path", path),
		slog.Int("models", len(r.configs)))
	return r, nil
}

// Get resolves a model by name. An unknown name falls back to the default
// model with a warning, matching the service's permissive request handling.
func (r *Registry) Get(name string) *Config {
	if cfg, ok := r.configs[name]; ok {
		return cfg
	}
	r.logger.Warn("model not found, using default",
		slog.String("model", name),
		slog.String("default", r.defaultModel))
	return r.configs[r.defaultModel]
}

// DefaultModel returns the default model name.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Names returns the configured model names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
