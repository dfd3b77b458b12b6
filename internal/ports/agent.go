// Package ports defines the interfaces between the pipeline core and its
// collaborators: agent implementations, persistence sinks, and metrics
// backends. These interfaces enable dependency inversion and keep the
// core testable with in-memory fakes.
package ports

import (
	"context"
	"time"

	"github.com/fairfound/agentcore/internal/domain"
)

// Agent is the unit of work executed by the scheduler. Implementations
// hold the concrete scoring, collection, or judging logic, which the
// core treats as opaque.
//
// Execute returns the agent's result. A returned error marks the attempt
// as failed; wrap it in a *domain.AgentError to classify it, otherwise
// the failure is treated as transient and retried per policy. Agents
// should respect context cancellation and return promptly.
type Agent interface {
	Execute(ctx context.Context, ec *domain.ExecutionContext) (domain.Result, error)
}

// FallbackAgent is implemented by agents that can produce a degraded but
// valid result after normal execution exhausts its retries.
type FallbackAgent interface {
	Agent

	// Fallback produces a degraded result when Execute has failed on
	// every attempt. The scheduler marks successful fallback results
	// with the used_fallback metadata flag.
	Fallback(ctx context.Context, ec *domain.ExecutionContext) (domain.Result, error)
}

// StatSink receives execution statistics after every agent run.
// The core functions correctly with this as a no-op; a persistence layer
// may implement it to write stats through to a durable store.
type StatSink interface {
	OnStatUpdate(agentID string, success bool, latency time.Duration)
}
