// Package events provides the process-wide publish/subscribe primitive
// used for pipeline lifecycle notifications. The bus supports priority,
// wildcard, and one-shot subscriptions, bounded event history, and an
// asynchronous publishing path drained by a single worker.
package events

import (
	"time"
)

// Priority orders handler invocation when an event is dispatched.
// Higher priorities run first.
type Priority int

// Subscription and event priorities.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Standard event types emitted by the pipeline core.
const (
	// Pipeline lifecycle. The scheduler reports failed runs as
	// pipeline_completed with a failed status; pipeline_failed is
	// reserved for callers that distinguish abnormal termination.
	TypePipelineStarted   = "pipeline_started"
	TypePipelineCompleted = "pipeline_completed"
	TypePipelineFailed    = "pipeline_failed"

	// Agent lifecycle.
	TypeAgentStarted   = "agent_started"
	TypeAgentCompleted = "agent_completed"
	TypeAgentFailed    = "agent_failed"
	TypeAgentRetry     = "agent_retry"

	// Scoring signals consumed by downstream review tooling.
	TypeScoreCalculated = "score_calculated"
	TypeLowConfidence   = "low_confidence"
	TypeReviewRequested = "review_requested"

	// WildcardType matches every published event when used as a
	// subscription type.
	WildcardType = "*"
)

// Event is a lifecycle notification published on the bus.
// It serializes to a plain key-value document for transport.
type Event struct {
	// Type names the event, e.g. agent_completed.
	Type string `json:"type"`

	// AgentID identifies the source agent, or "scheduler" for
	// pipeline-level events.
	AgentID string `json:"agent_id"`

	// JobID identifies the job the event belongs to, if any.
	JobID string `json:"job_id,omitempty"`

	// Payload carries event-specific data.
	Payload map[string]any `json:"payload,omitempty"`

	// Priority orders handler invocation for this event's dispatch.
	Priority Priority `json:"priority"`

	// Timestamp records when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID links events belonging to the same pipeline run.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Handler processes a published event. Handlers run synchronously on the
// publisher's goroutine; a panic in a handler is recovered and isolated.
type Handler func(Event)

// Predicate filters events for a subscription. A nil predicate matches
// every event of the subscribed type.
type Predicate func(Event) bool
