package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a standalone workflow task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
	TaskCancelled TaskStatus = "cancelled"
	TaskNotFound  TaskStatus = "not_found"
)

// TaskState is the externally visible state of a workflow task.
type TaskState struct {
	Status TaskStatus `json:"status"`
	Result Results    `json:"result"`
	Error  string     `json:"error,omitempty"`
}

type activeTask struct {
	cancel   context.CancelFunc
	executor *Executor
}

// defaultCompletedRetention bounds how many finished webhook-less tasks stay
// pollable. Oldest results are evicted first.
const defaultCompletedRetention = 256

// Manager launches workflow executions as detached, cancellable tasks and
// tracks their state. It backs both the raw execute endpoint and the Job
// Manager, which launches each job's workflow through it.
type Manager struct {
	registry *Registry
	client   *http.Client
	logger   *slog.Logger

	// retention caps the completed map; eviction is oldest-first.
	retention int

	mu             sync.Mutex
	active         map[string]*activeTask
	completed      map[string]TaskState
	completedOrder []string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithManagerHTTPClient sets the client used for completion webhooks.
func WithManagerHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.client = c }
}

// WithCompletedRetention caps how many finished webhook-less task results
// stay available for status polling.
func WithCompletedRetention(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.retention = n
		}
	}
}

// NewManager creates a workflow task manager using the given node registry.
func NewManager(registry *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry:  registry,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    slog.Default(),
		retention: defaultCompletedRetention,
		active:    make(map[string]*activeTask),
		completed: make(map[string]TaskState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Execute builds a graph from the definition and launches it as a detached
// task, returning the task id. Construction errors surface immediately so
// the HTTP layer can reject bad submissions with a 400; execution errors
// surface through the task state and the webhook. A zero timeout means the
// run is unbounded. When webhookURL is set, completion posts
// {task_id, status, result|error} there instead of retaining the result.
func (m *Manager) Execute(def Definition, webhookURL string, timeout time.Duration) (string, error) {
	graph, err := BuildGraph(def, m.registry)
	if err != nil {
		return "", err
	}
	// Reject cyclic graphs at submission time rather than letting the first
	// execution step fail asynchronously.
	if _, err := graph.ExecutionOrder(); err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	executor := NewExecutor(graph, WithExecutorLogger(m.logger))

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	m.mu.Lock()
	m.active[taskID] = &activeTask{cancel: cancel, executor: executor}
	m.mu.Unlock()

	go m.run(ctx, cancel, taskID, executor, webhookURL)

	m.logger.Info("workflow task started",
		slog.String("task_id", taskID),
		slog.Int("nodes", len(def.Nodes)))
	return taskID, nil
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, taskID string, executor *Executor, webhookURL string) {
	defer cancel()

	results, err := executor.Execute(ctx)

	var state TaskState
	switch {
	case err == nil:
		state = TaskState{Status: TaskCompleted, Result: results}
	case errors.Is(err, context.Canceled):
		state = TaskState{Status: TaskCancelled, Result: executor.Results()}
	default:
		state = TaskState{Status: TaskError, Result: executor.Results(), Error: err.Error()}
		m.logger.Error("workflow task failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
	}

	m.finish(taskID, state, webhookURL)
}

// finish moves a task out of the active set. With a webhook URL the result
// is delivered and not retained; without one it is kept for status polling,
// bounded by the retention cap.
func (m *Manager) finish(taskID string, state TaskState, webhookURL string) {
	m.mu.Lock()
	delete(m.active, taskID)
	if webhookURL == "" {
		m.completed[taskID] = state
		m.completedOrder = append(m.completedOrder, taskID)
		for len(m.completedOrder) > m.retention {
			evicted := m.completedOrder[0]
			m.completedOrder = m.completedOrder[1:]
			delete(m.completed, evicted)
		}
	}
	m.mu.Unlock()

	if webhookURL != "" {
		m.postWebhook(taskID, state, webhookURL)
	}

	m.logger.Info("workflow task finished",
		slog.String("task_id", taskID),
		slog.String("status", string(state.Status)))
}

func (m *Manager) postWebhook(taskID string, state TaskState, webhookURL string) {
	payload := map[string]any{
		"task_id": taskID,
		"status":  state.Status,
	}
	if state.Status == TaskCompleted {
		payload["result"] = state.Result
	}
	if state.Error != "" {
		payload["error"] = state.Error
	}

	body, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("marshal workflow webhook", slog.String("task_id", taskID), slog.String("error", err.Error()))
		return
	}
	resp, err := m.client.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		m.logger.Error("workflow webhook post failed",
			slog.String("task_id", taskID),
			slog.String("url", webhookURL),
			slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		m.logger.Error("workflow webhook rejected",
			slog.String("task_id", taskID),
			slog.Int("status", resp.StatusCode))
	}
}

// Cancel requests cancellation of a running task. It reports false when the
// task id is unknown or already finished.
func (m *Manager) Cancel(taskID string) bool {
	m.mu.Lock()
	task, ok := m.active[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	task.cancel()
	m.logger.Info("workflow task cancel requested", slog.String("task_id", taskID))
	return true
}

// Status reports the state of a task: running tasks expose their partial
// results, finished webhook-less tasks their final state, everything else
// not_found.
func (m *Manager) Status(taskID string) TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task, ok := m.active[taskID]; ok {
		return TaskState{Status: TaskRunning, Result: task.executor.Results()}
	}
	if state, ok := m.completed[taskID]; ok {
		return state
	}
	return TaskState{Status: TaskNotFound, Result: Results{}}
}

// ActiveCount returns the number of in-flight tasks.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown cancels every in-flight task.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	tasks := make([]*activeTask, 0, len(m.active))
	for _, t := range m.active {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}
