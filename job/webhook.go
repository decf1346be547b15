package job

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// webhookPayload builds the user notification body from a job state
// snapshot. Every field is derived from the state alone, so a webhook for
// any transition carries the same shape.
func webhookPayload(s State) map[string]any {
	payload := map[string]any{
		"id":          s.ID,
		"created_at":  s.CreatedAt.UTC().Format(time.RFC3339),
		"status":      string(s.Status),
		"model":       s.Model,
		"input":       s.Input,
		"webhook_url": s.WebhookURL,
		"options":     s.Options,
		"stream":      false,
	}
	if s.OutputURL != "" {
		payload["output_url"] = s.OutputURL
	}
	if s.LocalURL != "" {
		payload["local_url"] = s.LocalURL
	}
	if s.OutputWasabiURL != "" {
		payload["output_wasabi_url"] = s.OutputWasabiURL
	}
	if s.Error != "" {
		payload["error"] = s.Error
	}
	return payload
}

// notify posts the state snapshot to the user's webhook URL. Best effort:
// failures are logged at ERROR and never retried, and a job without a
// webhook URL is a no-op.
func (m *Manager) notify(s State) {
	if s.WebhookURL == "" {
		return
	}

	body, err := json.Marshal(webhookPayload(s))
	if err != nil {
		m.logger.Error("marshal user webhook",
			slog.String("job_id", s.ID),
			slog.String("error", err.Error()))
		m.metrics.webhookFailures.Inc()
		return
	}

	resp, err := m.client.Post(s.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		m.logger.Error("user webhook post failed",
			slog.String("job_id", s.ID),
			slog.String("url", s.WebhookURL),
			slog.String("error", err.Error()))
		m.metrics.webhookFailures.Inc()
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		m.logger.Error("user webhook rejected",
			slog.String("job_id", s.ID),
			slog.Int("status", resp.StatusCode))
		m.metrics.webhookFailures.Inc()
	}
}
