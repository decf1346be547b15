package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/threadloop/weft/job"
	"github.com/threadloop/weft/storage"
	"github.com/threadloop/weft/workflow"
)

// writeJSON writes a JSON response body with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

// writeError maps an error to its HTTP status and writes it as JSON.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes: request and graph
// construction problems are 400, missing resources 404, everything else 500.
func statusFor(err error) int {
	var (
		buildErr      *workflow.BuildError
		cycleErr      *workflow.CycleError
		connErr       *workflow.ConnectionError
		transitionErr *job.InvalidTransitionError
	)
	switch {
	case errors.As(err, &buildErr),
		errors.As(err, &cycleErr),
		errors.As(err, &connErr),
		errors.Is(err, workflow.ErrUnknownNodeType),
		errors.As(err, &transitionErr),
		errors.Is(err, job.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
