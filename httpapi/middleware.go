package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// requireAPIKey enforces the shared-secret header on management routes. An
// empty configured key disables the check.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.APIKey != "" {
			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(s.deps.APIKey)) != 1 {
				s.logger.Warn("rejected request with invalid api key",
					slog.String("path", r.URL.Path))
				s.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid or missing API key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
