package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestPostSendsAuthAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"echo": body["prompt"]})
	}))
	defer srv.Close()

	c := NewClient("secret", WithRetryConfig(fastRetry(1)))
	result, err := c.Post(context.Background(), "test", srv.URL, map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result["echo"])
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewClient("", WithRetryConfig(fastRetry(3)))
	result, err := c.Post(context.Background(), "test", srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("", WithRetryConfig(fastRetry(3)))
	_, err := c.Post(context.Background(), "test", srv.URL, nil)
	require.Error(t, err)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.Status)
	assert.Equal(t, "bad request", svcErr.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("", WithRetryConfig(fastRetry(2)))
	_, err := c.Post(context.Background(), "test", srv.URL, nil)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostHonorsConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("", WithRetryConfig(fastRetry(1)))
	c.Configure("bounded", ServiceLimits{MaxConcurrent: 2})

	done := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := c.Post(context.Background(), "bounded", srv.URL, nil)
			done <- err
		}()
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, <-done)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCancelPostsToDerivedURL(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("", WithRetryConfig(fastRetry(1)))
	c.Cancel(context.Background(), srv.URL+"/", "remote-42")
	assert.Equal(t, "/cancel/remote-42", gotPath.Load())
}

func TestRetryConfigBackoffCap(t *testing.T) {
	cfg := RetryConfig{BackoffMultiplier: 3.0, MaxBackoff: 5 * time.Second}
	assert.Equal(t, 3*time.Second, cfg.nextBackoff(time.Second))
	assert.Equal(t, 5*time.Second, cfg.nextBackoff(2*time.Second))
}
