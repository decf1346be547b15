// Package httpapi exposes the service's HTTP surface: job submission and
// lifecycle, raw workflow execution, the unified inbound webhook, the node
// catalog, generated file serving, and the health and metrics endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/threadloop/weft/callback"
	"github.com/threadloop/weft/job"
	"github.com/threadloop/weft/storage"
	"github.com/threadloop/weft/workflow"
)

// Deps are the components the HTTP surface fronts.
type Deps struct {
	Jobs        *job.Manager
	Workflows   *workflow.Manager
	Registry    *workflow.Registry
	Coordinator *callback.Coordinator
	Files       *storage.FileManager

	// APIKey is the shared secret for authenticated routes. Empty disables
	// authentication (local development).
	APIKey string

	// Gatherer backs the /metrics endpoint.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	deps           Deps
	logger         *slog.Logger
	router         chi.Router
	workflowSchema *jsonschema.Schema
	httpServer     *http.Server
}

// NewServer builds the router and its handlers.
func NewServer(deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := compileWorkflowSchema()
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:           deps,
		logger:         logger,
		workflowSchema: schema,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// Authenticated management routes.
	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/v1/jobs/generate", s.handleGenerate)
		r.Post("/cancel/{job_id}", s.handleCancelJob)
		r.Post("/purge-queue", s.handlePurgeQueue)
		r.Post("/v1/workflow/execute", s.handleWorkflowExecute)
		r.Post("/v1/workflow/cancel/{task_id}", s.handleWorkflowCancel)
		r.Get("/v1/workflow/status/{task_id}", s.handleWorkflowStatus)
		r.Get("/v1/workflow/nodes", s.handleWorkflowNodes)
	})

	// Open routes: inbound webhooks, probes, files and metrics.
	r.Post("/webhook", s.handleWebhook)
	r.Post("/v1/workflow/webhook/{job_id}", s.handleWorkflowWebhook)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/files/{file_id}", s.handleFile)
	r.Get("/files/{file_id}/info", s.handleFileInfo)
	if s.deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the root HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving on addr. It blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", slog.String("addr", addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
