package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadloop/weft/job"
)

// handleGenerate accepts a job submission.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req job.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	resp, err := s.deps.Jobs.Submit(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleCancelJob cancels a job; cancelling a terminal job is a 400.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.deps.Jobs.Cancel(jobID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "cancelled",
		"job_id": jobID,
	})
}

// handlePurgeQueue cancels every pending job.
func (s *Server) handlePurgeQueue(w http.ResponseWriter, r *http.Request) {
	removed := s.deps.Jobs.PurgeQueue()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"removed": removed,
		"status":  "completed",
	})
}

// handleWebhook is the unified inbound webhook from remote compute
// services. Deliveries are routed by their id field; unknown ids are
// acknowledged anyway, since the waiting node may already have timed out.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid webhook body: %v", err)})
		return
	}
	if id, _ := payload["id"].(string); id == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "webhook payload must include id"})
		return
	}

	s.deps.Coordinator.Handle(payload)
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// handleHealth summarizes job statistics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Jobs.HealthStats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   stats,
	})
}

// handleReady is the liveness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleFile serves a generated file from the local cache.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")
	path, err := s.deps.Files.Path(fileID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Debug("serving file", slog.String("file_id", fileID))
	http.ServeFile(w, r, path)
}

// handleFileInfo returns a generated file's metadata.
func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Files.Info(chi.URLParam(r, "file_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}
