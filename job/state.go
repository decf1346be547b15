// Package job implements the job manager: it accepts generation requests,
// preprocesses them onto a model's workflow template, drives the workflow
// engine, tracks each job's lifecycle state and notifies the caller's
// webhook on every status transition.
package job

import (
	"fmt"
	"time"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// InvalidTransitionError reports a forbidden job status transition, most
// commonly a cancel attempt on an already-terminal job.
type InvalidTransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s: invalid transition %s -> %s", e.JobID, e.From, e.To)
}

// canTransition encodes the machine pending -> processing -> {completed,
// failed, cancelled}, with pending also allowed to fail or cancel directly.
func canTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to.Terminal()
	case StatusProcessing:
		return to.Terminal()
	}
	return false
}

// InputItem is one entry of a job's input list.
type InputItem struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// State is the full lifecycle record of one job. The manager is the single
// writer; readers receive copies.
type State struct {
	ID             string
	CreatedAt      time.Time
	CompletedAt    *time.Time
	Status         Status
	Model          string
	Input          []InputItem
	Options        map[string]any
	WebhookURL     string
	WorkflowTaskID string

	// Output URL fields filled from the model's output_mapping.
	OutputURL       string
	LocalURL        string
	OutputWasabiURL string

	Error string
}
