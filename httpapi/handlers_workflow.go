package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadloop/weft/workflow"
)

// executeRequest is the body of a raw workflow submission.
type executeRequest struct {
	Workflow   json.RawMessage `json:"workflow"`
	WebhookURL string          `json:"webhook_url"`
}

// handleWorkflowExecute validates and launches a raw workflow definition.
func (s *Server) handleWorkflowExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if len(req.Workflow) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "workflow definition is required"})
		return
	}

	// Schema validation runs on the generic decoding, before the graph is
	// built, so shape errors carry schema locations instead of engine noise.
	var generic any
	if err := json.Unmarshal(req.Workflow, &generic); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid workflow definition: %v", err)})
		return
	}
	if err := s.workflowSchema.Validate(generic); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("workflow definition is invalid: %v", err)})
		return
	}

	var def workflow.Definition
	if err := json.Unmarshal(req.Workflow, &def); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid workflow definition: %v", err)})
		return
	}

	taskID, err := s.deps.Workflows.Execute(def, req.WebhookURL, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  "accepted",
	})
}

// handleWorkflowCancel cancels a standalone workflow task.
func (s *Server) handleWorkflowCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if !s.deps.Workflows.Cancel(taskID) {
		s.writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("task %s not found", taskID)})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  "cancelled",
	})
}

// handleWorkflowStatus polls a workflow task's state.
func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	state := s.deps.Workflows.Status(taskID)

	body := map[string]any{
		"task_id": taskID,
		"status":  state.Status,
		"result":  state.Result,
	}
	if state.Error != "" {
		body["error"] = state.Error
	}
	s.writeJSON(w, http.StatusOK, body)
}

// handleWorkflowNodes enumerates the node catalog with port schemas.
func (s *Server) handleWorkflowNodes(w http.ResponseWriter, r *http.Request) {
	descriptors := s.deps.Registry.Descriptors()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"nodes":      descriptors,
		"categories": s.deps.Registry.Categories(),
		"count":      len(descriptors),
	})
}

// workflowCallback is the engine's completion webhook body.
type workflowCallback struct {
	TaskID string           `json:"task_id"`
	Status string           `json:"status"`
	Result workflow.Results `json:"result"`
	Error  string           `json:"error"`
}

// handleWorkflowWebhook receives the engine's completion callback for a
// job's workflow and finishes the job.
func (s *Server) handleWorkflowWebhook(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	var cb workflowCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid callback body: %v", err)})
		return
	}

	if err := s.deps.Jobs.HandleWorkflowCallback(jobID, workflow.TaskStatus(cb.Status), cb.Result, cb.Error); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
