package domain

import (
	"time"
)

// PipelineStatus describes the overall outcome of a pipeline run.
type PipelineStatus string

// Pipeline run statuses. A run is failed only when nothing succeeded and
// completed only when nothing failed; any mix is partial, which is a
// first-class outcome rather than an error.
const (
	StatusPending   PipelineStatus = "pending"
	StatusRunning   PipelineStatus = "running"
	StatusCompleted PipelineStatus = "completed"
	StatusFailed    PipelineStatus = "failed"
	StatusPartial   PipelineStatus = "partial"
)

// StatusFromCounts derives the final pipeline status from success and
// failure counts.
func StatusFromCounts(succeeded, failed int) PipelineStatus {
	switch {
	case failed == 0:
		return StatusCompleted
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// PipelineRun aggregates the outcome of one pipeline execution.
// It serializes to a plain key-value document for transport across the
// service boundary.
type PipelineRun struct {
	// ID uniquely identifies this run.
	ID string `json:"id"`

	// JobID identifies the job the run belongs to.
	JobID string `json:"job_id"`

	// Status is the overall outcome.
	Status PipelineStatus `json:"status"`

	// Results maps agent ID to its result.
	Results map[string]Result `json:"results"`

	// Executed counts the agents that were scheduled.
	Executed int `json:"executed"`

	// Succeeded counts agents whose result was successful.
	Succeeded int `json:"succeeded"`

	// Failed counts agents whose result was a failure.
	Failed int `json:"failed"`

	// Errors lists failures as "agentID: message".
	Errors []string `json:"errors,omitempty"`

	// StartedAt records when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt records when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// TotalTime is the wall-clock duration of the run.
	TotalTime time.Duration `json:"total_time"`
}
