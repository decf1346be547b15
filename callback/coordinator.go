// Package callback routes inbound webhook deliveries from remote compute
// services back to the suspended node executions waiting on them. Each
// in-flight asynchronous remote call registers its remote job id here, then
// blocks in Wait until the matching delivery arrives, the timeout elapses or
// the caller cancels.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrDuplicateRegistration is returned when a job id is registered twice.
var ErrDuplicateRegistration = errors.New("callback already registered for job")

// ErrTimeout is returned by Wait when no delivery arrives in time.
var ErrTimeout = errors.New("callback timeout")

// ErrCancelled is returned by Wait when the registration is cancelled via
// Unregister before a delivery arrives.
var ErrCancelled = errors.New("callback wait cancelled")

// Handler transforms a raw webhook payload into the waiter's result. It runs
// on the delivery goroutine; a handler error wakes the waiter with a
// *HandlerError.
type Handler func(payload map[string]any) (map[string]any, error)

// HandlerError wraps a handler failure so the waiter can distinguish it from
// transport-level outcomes.
type HandlerError struct {
	JobID string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("callback handler for job %s failed: %v", e.JobID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type outcome struct {
	result map[string]any
	err    error
}

type pending struct {
	handler      Handler
	done         chan outcome
	registeredAt time.Time

	// delivered flags that a delivery already claimed this registration.
	// The entry stays in the map until the waiter consumes the outcome, so
	// a delivery racing ahead of Wait is not lost.
	delivered bool
}

// Coordinator is the process-wide registry of pending callbacks, keyed by
// remote job id. All map accesses are serialized by a single mutex;
// registrations and lookups are O(1) and the lock is never held across a
// handler invocation's result delivery.
type Coordinator struct {
	mu      sync.Mutex
	waiting map[string]*pending
	logger  *slog.Logger
}

// New creates an empty coordinator.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		waiting: make(map[string]*pending),
		logger:  logger,
	}
}

// Register records a handler for the given job id. It fails with
// ErrDuplicateRegistration when an entry already exists.
func (c *Coordinator) Register(jobID string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.waiting[jobID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, jobID)
	}
	c.waiting[jobID] = &pending{
		handler:      handler,
		done:         make(chan outcome, 1),
		registeredAt: time.Now().UTC(),
	}
	c.logger.Debug("callback registered", slog.String("job_id", jobID))
	return nil
}

// Wait blocks until the delivery for jobID arrives, the timeout elapses, or
// ctx is cancelled. The registration is removed on every terminal outcome;
// deliveries arriving afterwards are dropped with a warning. A zero timeout
// waits indefinitely (bounded only by ctx).
func (c *Coordinator) Wait(ctx context.Context, jobID string, timeout time.Duration) (map[string]any, error) {
	c.mu.Lock()
	entry, ok := c.waiting[jobID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no pending callback for job %s", jobID)
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case out := <-entry.done:
		c.remove(jobID)
		return out.result, out.err
	case <-timer:
		c.remove(jobID)
		return nil, fmt.Errorf("%w: job %s after %s", ErrTimeout, jobID, timeout)
	case <-ctx.Done():
		c.remove(jobID)
		return nil, ctx.Err()
	}
}

// Handle routes an inbound delivery by its "id" field. Unknown ids are
// logged and dropped: the remote service may deliver after a timeout or
// cancellation already consumed the registration.
func (c *Coordinator) Handle(payload map[string]any) {
	jobID, _ := payload["id"].(string)
	if jobID == "" {
		c.logger.Error("callback delivery without job id")
		return
	}

	c.mu.Lock()
	entry, ok := c.waiting[jobID]
	if ok && entry.delivered {
		ok = false
	}
	if ok {
		// Claim the registration before running the handler so a second
		// delivery for the same id is discarded, not double-dispatched. The
		// entry itself stays until the waiter consumes the outcome.
		entry.delivered = true
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("no pending callback for delivery", slog.String("job_id", jobID))
		return
	}

	result, err := entry.handler(payload)
	if err != nil {
		c.logger.Error("callback handler failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		entry.done <- outcome{err: &HandlerError{JobID: jobID, Err: err}}
		return
	}
	entry.done <- outcome{result: result}
}

// Unregister cancels a pending wait. The waiter, if any, wakes with
// ErrCancelled; absent entries are a no-op.
func (c *Coordinator) Unregister(jobID string) {
	c.mu.Lock()
	entry, ok := c.waiting[jobID]
	delivered := ok && entry.delivered
	if ok {
		delete(c.waiting, jobID)
	}
	c.mu.Unlock()

	if ok && !delivered {
		entry.done <- outcome{err: fmt.Errorf("%w: job %s", ErrCancelled, jobID)}
	}
	if ok {
		c.logger.Debug("callback unregistered", slog.String("job_id", jobID))
	}
}

// Pending returns the number of registrations currently waiting.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiting)
}

func (c *Coordinator) remove(jobID string) {
	c.mu.Lock()
	delete(c.waiting, jobID)
	c.mu.Unlock()
}
