package job

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/threadloop/weft/model"
	"github.com/threadloop/weft/workflow"
)

// ErrNotFound is returned for operations on unknown job ids.
var ErrNotFound = errors.New("job not found")

// ErrInvalidRequest marks submission errors caused by the request body, so
// the HTTP layer can answer 400 instead of 500.
var ErrInvalidRequest = errors.New("invalid job request")

// SubmitRequest is a job submission.
type SubmitRequest struct {
	ID         string         `json:"id,omitempty"`
	Model      string         `json:"model"`
	Input      []InputItem    `json:"input"`
	Options    map[string]any `json:"options"`
	WebhookURL string         `json:"webhook_url"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	ID                string  `json:"id"`
	PodID             string  `json:"pod_id"`
	QueuePosition     int     `json:"queue_position"`
	EstimatedWaitTime float64 `json:"estimated_wait_time"`
	PodURL            string  `json:"pod_url"`
}

// HealthStats summarizes job counts for the health endpoint.
type HealthStats struct {
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"inProgress"`
	InQueue    int `json:"inQueue"`
}

// Manager owns every job's lifecycle: it resolves the model, preprocesses
// the request onto the workflow template, launches the workflow through the
// workflow manager and reacts to the engine's completion callback. It is
// the single writer of job states.
type Manager struct {
	workflows *workflow.Manager
	models    *model.Registry
	client    *http.Client
	logger    *slog.Logger
	metrics   *metrics
	history   *historyRing

	// serviceURL is this pod's externally reachable base URL; the engine's
	// internal completion webhook and the async nodes' callback URLs are
	// derived from it.
	serviceURL string
	podID      string

	mu             sync.Mutex
	jobs           map[string]*State
	completedCount int
	failedCount    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithHTTPClient sets the client used for user webhooks.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithPodID sets the pod identifier echoed in submission responses.
func WithPodID(id string) Option {
	return func(m *Manager) { m.podID = id }
}

// WithHistorySize bounds the processing-time ring.
func WithHistorySize(size int) Option {
	return func(m *Manager) { m.history = newHistoryRing(size) }
}

// WithRegisterer sets the prometheus registerer for job metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = newMetrics(reg) }
}

// NewManager creates a job manager. serviceURL is this pod's base URL,
// without a trailing slash.
func NewManager(workflows *workflow.Manager, models *model.Registry, serviceURL string, opts ...Option) *Manager {
	m := &Manager{
		workflows:  workflows,
		models:     models,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		serviceURL: serviceURL,
		history:    newHistoryRing(50),
		jobs:       make(map[string]*State),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = newMetrics(prometheus.NewRegistry())
	}
	return m
}

// Submit accepts a job: resolve the model, preprocess the request onto its
// workflow template, record the state and launch the workflow. The job is
// processing by the time Submit returns.
func (m *Manager) Submit(req SubmitRequest) (*SubmitResponse, error) {
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	// Reserve the id before any validation or file I/O, so concurrent
	// submissions with the same caller-supplied id race for one slot and the
	// losers fail with the duplicate-id error instead of launching their own
	// workflow tasks.
	state := &State{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}
	m.mu.Lock()
	if _, exists := m.jobs[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: job id %q already exists", ErrInvalidRequest, id)
	}
	m.jobs[id] = state
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
	}

	modelName := req.Model
	if modelName == "" {
		modelName = m.models.DefaultModel()
	}
	cfg := m.models.Get(modelName)

	if err := cfg.ValidateInputTypes(providedTypes(req.Input)); err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	options := preprocessOptions(cfg, req.Options, m.logger, id)
	def, err := cfg.Workflow()
	if err != nil {
		release()
		return nil, err
	}
	applyMappings(&def, cfg, options, groupInputs(req.Input))

	m.mu.Lock()
	state.Model = modelName
	state.Input = req.Input
	state.Options = options
	state.WebhookURL = req.WebhookURL
	m.mu.Unlock()
	m.metrics.submitted.Inc()

	timeout := time.Duration(cfg.TimeoutMinutes) * time.Minute
	internalWebhook := fmt.Sprintf("%s/v1/workflow/webhook/%s", m.serviceURL, id)

	taskID, err := m.workflows.Execute(def, internalWebhook, timeout)
	if err != nil {
		m.setStatus(id, StatusFailed, func(s *State) { s.Error = err.Error() })
		return nil, err
	}

	m.mu.Lock()
	state.WorkflowTaskID = taskID
	queuePosition := m.countLocked(StatusPending) + m.countLocked(StatusProcessing)
	m.mu.Unlock()

	if err := m.setStatus(id, StatusProcessing, nil); err != nil {
		return nil, err
	}

	m.logger.Info("job accepted",
		slog.String("job_id", id),
		slog.String("model", modelName),
		slog.String("workflow_task_id", taskID))

	return &SubmitResponse{
		ID:                id,
		PodID:             m.podID,
		QueuePosition:     queuePosition,
		EstimatedWaitTime: m.EstimatedWait().Seconds(),
		PodURL:            m.serviceURL,
	}, nil
}

// HandleWorkflowCallback reacts to the engine's completion webhook for a
// job's workflow: map node outputs onto the job's output URL fields, close
// the state and notify the user.
func (m *Manager) HandleWorkflowCallback(jobID string, status workflow.TaskStatus, result workflow.Results, errMsg string) error {
	m.mu.Lock()
	state, ok := m.jobs[jobID]
	terminal := ok && state.Status.Terminal()
	modelName := ""
	if ok {
		modelName = state.Model
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if terminal {
		// A cancelled job's workflow still reports back; nothing left to do.
		m.logger.Debug("workflow callback for terminal job",
			slog.String("job_id", jobID),
			slog.String("status", string(status)))
		return nil
	}

	switch status {
	case workflow.TaskCompleted:
		cfg := m.models.Get(modelName)
		return m.setStatus(jobID, StatusCompleted, func(s *State) {
			applyOutputs(s, cfg, result)
		})
	case workflow.TaskCancelled:
		return m.setStatus(jobID, StatusCancelled, func(s *State) {
			if s.Error == "" {
				s.Error = "workflow cancelled"
			}
		})
	default:
		if errMsg == "" {
			errMsg = "workflow failed"
		}
		return m.setStatus(jobID, StatusFailed, func(s *State) { s.Error = errMsg })
	}
}

// applyOutputs copies mapped node outputs into the job's output URL fields.
func applyOutputs(s *State, cfg *model.Config, result workflow.Results) {
	for outputKey, ref := range cfg.OutputMapping {
		nodeResult, ok := result[ref.NodeID]
		if !ok {
			continue
		}
		value, _ := nodeResult[ref.OutputKey].(string)
		if value == "" {
			continue
		}
		switch outputKey {
		case "output_url":
			s.OutputURL = value
		case "local_url":
			s.LocalURL = value
		case "output_wasabi_url":
			s.OutputWasabiURL = value
		}
	}
}

// Cancel cancels a job: guarded state transition, then cancellation of the
// workflow task, which propagates into any in-flight async node.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	state, ok := m.jobs[jobID]
	var taskID string
	if ok {
		taskID = state.WorkflowTaskID
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	if err := m.setStatus(jobID, StatusCancelled, func(s *State) {
		s.Error = "Job cancelled by user"
	}); err != nil {
		return err
	}

	if taskID != "" {
		m.workflows.Cancel(taskID)
	}
	m.logger.Info("job cancelled", slog.String("job_id", jobID))
	return nil
}

// PurgeQueue cancels every pending job and reports how many were removed.
func (m *Manager) PurgeQueue() int {
	m.mu.Lock()
	var pending []string
	for id, s := range m.jobs {
		if s.Status == StatusPending {
			pending = append(pending, id)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, id := range pending {
		if err := m.Cancel(id); err == nil {
			removed++
		}
	}
	m.logger.Info("queue purged", slog.Int("removed", removed))
	return removed
}

// Get returns a snapshot of a job's state.
func (m *Manager) Get(jobID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.jobs[jobID]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// HealthStats summarizes job counts.
func (m *Manager) HealthStats() HealthStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return HealthStats{
		Completed:  m.completedCount,
		Failed:     m.failedCount,
		InProgress: m.countLocked(StatusProcessing),
		InQueue:    m.countLocked(StatusPending),
	}
}

// EstimatedWait multiplies the number of live jobs by the average
// processing time of recently completed ones.
func (m *Manager) EstimatedWait() time.Duration {
	m.mu.Lock()
	live := m.countLocked(StatusPending) + m.countLocked(StatusProcessing)
	m.mu.Unlock()
	return time.Duration(live) * m.history.Average()
}

func (m *Manager) countLocked(status Status) int {
	n := 0
	for _, s := range m.jobs {
		if s.Status == status {
			n++
		}
	}
	return n
}

// setStatus performs a guarded transition, applies the extra mutation, and
// posts the user webhook from a consistent snapshot. The webhook leaves the
// lock before any network I/O.
func (m *Manager) setStatus(jobID string, to Status, mutate func(*State)) error {
	m.mu.Lock()
	state, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if !canTransition(state.Status, to) {
		err := &InvalidTransitionError{JobID: jobID, From: state.Status, To: to}
		m.mu.Unlock()
		return err
	}

	state.Status = to
	if mutate != nil {
		mutate(state)
	}
	if to.Terminal() {
		now := time.Now().UTC()
		state.CompletedAt = &now
	}
	switch to {
	case StatusCompleted:
		m.completedCount++
	case StatusFailed:
		m.failedCount++
	}
	snapshot := *state
	m.mu.Unlock()

	switch to {
	case StatusCompleted:
		m.metrics.completed.Inc()
		duration := snapshot.CompletedAt.Sub(snapshot.CreatedAt)
		m.history.Add(duration)
		m.metrics.processingTime.Observe(duration.Seconds())
	case StatusFailed:
		m.metrics.failed.Inc()
	case StatusCancelled:
		m.metrics.cancelled.Inc()
	}

	m.logger.Info("job status changed",
		slog.String("job_id", jobID),
		slog.String("status", string(to)))
	m.notify(snapshot)
	return nil
}
