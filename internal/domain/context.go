package domain

import (
	"time"
)

// Clamp01 restricts v to the [0, 1] range.
// Scores and confidences are always clamped at the boundary where they
// are produced or consumed.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Result is the standardized outcome of a single agent execution.
// A Result for a given agent ID is written into the execution context
// exactly once per pipeline run.
type Result struct {
	// AgentID identifies the agent that produced this result.
	AgentID string `json:"agent_id"`

	// Success reports whether the execution produced usable output.
	Success bool `json:"success"`

	// Payload carries the agent's opaque output data.
	Payload map[string]any `json:"payload,omitempty"`

	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty"`

	// ErrorKind classifies the failure for retry decisions.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Confidence expresses how certain the agent is about its output,
	// clamped to [0, 1].
	Confidence float64 `json:"confidence"`

	// Latency measures the execution duration, including retries when
	// produced by the scheduler.
	Latency time.Duration `json:"latency"`

	// Metadata carries execution annotations such as used_fallback or
	// retries_attempted.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp records when the result was produced.
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionContext is the shared state threaded through a pipeline run.
// Results are append-only: once an agent's result is stored it is never
// overwritten within the same run.
type ExecutionContext struct {
	// JobID identifies the evaluation job being processed.
	JobID string `json:"job_id"`

	// SubjectID identifies the subject under evaluation, e.g. a user.
	SubjectID string `json:"subject_id"`

	// Input is the opaque payload provided by the caller.
	Input map[string]any `json:"input,omitempty"`

	// Results maps agent ID to that agent's result.
	Results map[string]Result `json:"results"`

	// Metadata carries run-scoped annotations shared between agents.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewExecutionContext creates an execution context for one pipeline run.
func NewExecutionContext(jobID, subjectID string, input map[string]any) *ExecutionContext {
	if input == nil {
		input = make(map[string]any)
	}
	return &ExecutionContext{
		JobID:     jobID,
		SubjectID: subjectID,
		Input:     input,
		Results:   make(map[string]Result),
		Metadata:  make(map[string]any),
	}
}

// Result returns the stored result for the given agent ID.
func (ec *ExecutionContext) Result(agentID string) (Result, bool) {
	r, ok := ec.Results[agentID]
	return r, ok
}

// AddResult stores a result under its agent ID. The first write wins;
// later writes for the same agent ID are ignored.
func (ec *ExecutionContext) AddResult(r Result) {
	if _, exists := ec.Results[r.AgentID]; exists {
		return
	}
	ec.Results[r.AgentID] = r
}
