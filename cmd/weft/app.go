package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/threadloop/weft/callback"
	"github.com/threadloop/weft/config"
	"github.com/threadloop/weft/httpapi"
	"github.com/threadloop/weft/job"
	"github.com/threadloop/weft/model"
	"github.com/threadloop/weft/remote"
	"github.com/threadloop/weft/storage"
	"github.com/threadloop/weft/workflow"
	"github.com/threadloop/weft/workflow/nodes"
)

// App wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	workflows *workflow.Manager
	jobs      *job.Manager
	files     *storage.FileManager
	server    *httpapi.Server
}

// NewApp builds every component from configuration: node registry, webhook
// coordinator, remote client, model catalog, file cache, workflow and job
// managers, and the HTTP server.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	registry := workflow.NewRegistry(logger)
	coordinator := callback.New(logger)

	client := remote.NewClient(cfg.Remote.APIKey,
		remote.WithLogger(logger),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.RequestTimeout}),
		remote.WithRetryConfig(remote.RetryConfig{
			MaxAttempts:       cfg.Remote.Retry.MaxAttempts,
			BackoffBase:       cfg.Remote.Retry.BackoffBase,
			BackoffMultiplier: cfg.Remote.Retry.BackoffMultiplier,
			MaxBackoff:        cfg.Remote.Retry.MaxBackoff,
		}))
	for name, limits := range cfg.Remote.Services {
		client.Configure(name, remote.ServiceLimits{
			CallsPerSecond: limits.CallsPerSecond,
			Burst:          limits.Burst,
			MaxConcurrent:  limits.MaxConcurrent,
		})
	}

	nodes.RegisterBuiltins(nodes.Services{
		Registry:    registry,
		Coordinator: coordinator,
		Remote:      client,
		Logger:      logger,
	})
	if cfg.Models.CustomNodesDir != "" {
		if err := nodes.LoadCustomDir(registry, cfg.Models.CustomNodesDir, logger); err != nil {
			return nil, fmt.Errorf("load custom nodes: %w", err)
		}
	}

	models, err := model.Load(cfg.Models.ConfigPath, cfg.Models.DefaultModel, logger)
	if err != nil {
		return nil, fmt.Errorf("load model config: %w", err)
	}

	files, err := storage.NewFileManager(cfg.Files.Dir, cfg.Files.TTL, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize file cache: %w", err)
	}

	workflows := workflow.NewManager(registry, workflow.WithManagerLogger(logger))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	jobs := job.NewManager(workflows, models, cfg.Server.ServiceURL,
		job.WithLogger(logger),
		job.WithPodID(cfg.Server.PodID),
		job.WithHistorySize(cfg.Jobs.HistorySize),
		job.WithRegisterer(promRegistry),
	)

	server, err := httpapi.NewServer(httpapi.Deps{
		Jobs:        jobs,
		Workflows:   workflows,
		Registry:    registry,
		Coordinator: coordinator,
		Files:       files,
		APIKey:      cfg.Server.APIKey,
		Gatherer:    promRegistry,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create http server: %w", err)
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		workflows: workflows,
		jobs:      jobs,
		files:     files,
		server:    server,
	}, nil
}

// Start begins the file cache sweeper and serves HTTP. It blocks until the
// listener fails or Shutdown is called.
func (a *App) Start() error {
	a.files.Start()
	return a.server.Start(a.cfg.Server.Addr)
}

// Shutdown drains the HTTP server, cancels in-flight workflow tasks and
// stops the file cache sweeper.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	a.workflows.Shutdown()
	a.files.Stop()
}
