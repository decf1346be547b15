// Package remote provides the shared HTTP client used by remote-service
// nodes: authenticated JSON POSTs with per-service rate limits, bounded
// concurrency and retry with exponential backoff, plus the best-effort
// cancellation call for asynchronous remote jobs.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseSize limits remote response bodies to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// ServiceError reports a non-200 response from a remote service, with the
// status and body captured for the node failure message.
type ServiceError struct {
	Service string
	Status  int
	Body    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s call failed with status %d: %s", e.Service, e.Status, e.Body)
}

// ServiceLimits bounds outbound traffic to one service.
type ServiceLimits struct {
	// CallsPerSecond caps the request rate. Zero means unlimited.
	CallsPerSecond float64

	// Burst is the rate limiter burst size. Zero defaults to 1 when a rate
	// is configured.
	Burst int

	// MaxConcurrent bounds in-flight requests. Zero means unbounded.
	MaxConcurrent int
}

type serviceState struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// Client is the pooled HTTP client shared by every remote-service node.
type Client struct {
	httpClient *http.Client
	apiKey     string
	retry      RetryConfig
	logger     *slog.Logger

	mu       sync.Mutex
	services map[string]*serviceState
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.httpClient = c }
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(client *Client) { client.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) { client.logger = logger }
}

// NewClient creates a remote service client. The API key is sent as
// X-API-Key on every outbound request.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		retry:      DefaultRetryConfig(),
		logger:     slog.Default(),
		services:   make(map[string]*serviceState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure installs traffic limits for a service. Call at startup; limits
// for unconfigured services default to unbounded.
func (c *Client) Configure(service string, limits ServiceLimits) {
	state := &serviceState{}
	if limits.CallsPerSecond > 0 {
		burst := limits.Burst
		if burst <= 0 {
			burst = 1
		}
		state.limiter = rate.NewLimiter(rate.Limit(limits.CallsPerSecond), burst)
	}
	if limits.MaxConcurrent > 0 {
		state.sem = make(chan struct{}, limits.MaxConcurrent)
	}
	c.mu.Lock()
	c.services[service] = state
	c.mu.Unlock()
}

func (c *Client) state(service string) *serviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.services[service]
}

// Post sends a JSON POST to a remote service and decodes the JSON response.
// The call honors the service's rate limit and concurrency bound, and
// retries transient failures (transport errors and 5xx responses) with
// exponential backoff. 4xx responses are not retried.
func (c *Client) Post(ctx context.Context, service, url string, body map[string]any) (map[string]any, error) {
	state := c.state(service)

	if state != nil && state.limiter != nil {
		if err := state.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if state != nil && state.sem != nil {
		select {
		case state.sem <- struct{}{}:
			defer func() { <-state.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request for %s: %w", service, err)
	}

	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := c.retry.BackoffBase

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.post(ctx, service, url, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || attempt == attempts {
			break
		}
		c.logger.Warn("remote call failed, retrying",
			slog.String("service", service),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff = c.retry.nextBackoff(backoff)
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, service, url string, payload []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to %s: %w", service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", service, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Service: service, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var result map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode response from %s: %w", service, err)
		}
	}
	return result, nil
}

// retryable reports whether the error warrants another attempt: transport
// errors and 5xx responses do, client errors do not.
func retryable(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Status >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Cancel posts to a remote job's cancellation endpoint, derived from the pod
// URL returned by the initial submission. Failures are logged, never fatal:
// cancellation of the local job proceeds regardless.
func (c *Client) Cancel(ctx context.Context, podURL, remoteID string) {
	url := fmt.Sprintf("%s/cancel/%s", strings.TrimRight(podURL, "/"), remoteID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		c.logger.Error("build remote cancel request", slog.String("url", url), slog.String("error", err.Error()))
		return
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("remote cancel failed",
			slog.String("remote_id", remoteID),
			slog.String("url", url),
			slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("remote cancel rejected",
			slog.String("remote_id", remoteID),
			slog.Int("status", resp.StatusCode))
		return
	}
	c.logger.Info("remote job cancelled", slog.String("remote_id", remoteID))
}
