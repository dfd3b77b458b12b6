// Package domain contains pure, dependency-free domain models and types
// for the agent pipeline core.
package domain

import (
	"time"
)

// AgentKind classifies an agent for introspection and reporting.
// The kind never influences scheduling or execution behavior.
type AgentKind string

// Supported agent kinds.
const (
	// KindScoring marks agents that produce rubric scores.
	KindScoring AgentKind = "scoring"

	// KindCollector marks agents that gather external data.
	KindCollector AgentKind = "collector"

	// KindEvaluation marks agents that produce judgments or opinions.
	KindEvaluation AgentKind = "evaluation"

	// KindOther marks agents that fit no specific category.
	KindOther AgentKind = "other"
)

// AgentHealth describes the operational health of an agent derived
// from its historical success rate.
type AgentHealth string

// Health buckets derived from an agent's success rate.
const (
	// HealthUnknown applies to agents that have never executed.
	HealthUnknown AgentHealth = "unknown"

	// HealthHealthy applies to agents with a success rate of at least 0.95.
	HealthHealthy AgentHealth = "healthy"

	// HealthDegraded applies to agents with a success rate of at least 0.80.
	HealthDegraded AgentHealth = "degraded"

	// HealthUnhealthy applies to agents below the degraded threshold.
	HealthUnhealthy AgentHealth = "unhealthy"
)

// AgentStats tracks runtime execution statistics for a registered agent.
// Stats are updated by the registry after every execution attempt and
// feed the derived health classification.
type AgentStats struct {
	// TotalRuns counts every completed execution, successful or not.
	TotalRuns int `json:"total_runs"`

	// SuccessRuns counts executions that produced a successful result.
	SuccessRuns int `json:"success_runs"`

	// FailRuns counts executions that produced a failed result.
	FailRuns int `json:"fail_runs"`

	// AvgLatency is the running average execution latency.
	AvgLatency time.Duration `json:"avg_latency"`

	// LastRunAt records the completion time of the most recent execution.
	// It is zero if the agent has never run.
	LastRunAt time.Time `json:"last_run_at,omitempty"`
}

// SuccessRate returns the fraction of runs that succeeded, or 0 for
// agents that have never executed.
func (s AgentStats) SuccessRate() float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return float64(s.SuccessRuns) / float64(s.TotalRuns)
}

// Health derives the health bucket from the success rate.
// Agents with no runs are unknown rather than unhealthy.
func (s AgentStats) Health() AgentHealth {
	if s.TotalRuns == 0 {
		return HealthUnknown
	}
	rate := s.SuccessRate()
	switch {
	case rate >= 0.95:
		return HealthHealthy
	case rate >= 0.80:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// AgentInfo describes a registered agent: its identity, declared
// capabilities, dependency edges, scheduling priority, and runtime stats.
// AgentInfo is the registry's unit of bookkeeping; the executable behavior
// lives behind the ports.Agent interface and is attached at registration.
type AgentInfo struct {
	// ID uniquely identifies the agent within a registry instance.
	ID string `json:"id"`

	// Capabilities lists what the agent can do, used for discovery.
	Capabilities []string `json:"capabilities"`

	// Dependencies lists agent IDs whose successful results this agent
	// requires before executing.
	Dependencies []string `json:"dependencies,omitempty"`

	// Priority orders ready agents during scheduling; higher runs earlier.
	Priority int `json:"priority"`

	// Kind classifies the agent for reporting only.
	Kind AgentKind `json:"kind,omitempty"`

	// Enabled controls whether the agent participates in discovery and
	// default pipeline runs.
	Enabled bool `json:"enabled"`

	// Version is an informational version string for the agent.
	Version string `json:"version,omitempty"`

	// Description is free-form documentation for operators.
	Description string `json:"description,omitempty"`

	// RegisteredAt records when the agent was added to the registry.
	RegisteredAt time.Time `json:"registered_at"`

	// Stats holds runtime execution statistics.
	Stats AgentStats `json:"stats"`
}

// HealthReport is a point-in-time snapshot of registry health suitable
// for serialization across the service boundary.
type HealthReport struct {
	// TotalAgents is the number of registered agents.
	TotalAgents int `json:"total_agents"`

	// EnabledAgents is the number of agents currently enabled.
	EnabledAgents int `json:"enabled_agents"`

	// Summary counts agents per health bucket.
	Summary map[AgentHealth]int `json:"summary"`

	// Agents maps agent ID to its health snapshot.
	Agents map[string]AgentHealthInfo `json:"agents"`
}

// AgentHealthInfo is the per-agent entry of a HealthReport.
type AgentHealthInfo struct {
	// Health is the derived health bucket.
	Health AgentHealth `json:"health"`

	// Enabled mirrors the agent's enabled flag.
	Enabled bool `json:"enabled"`

	// SuccessRate is the fraction of successful runs.
	SuccessRate float64 `json:"success_rate"`

	// TotalRuns counts completed executions.
	TotalRuns int `json:"total_runs"`

	// AvgLatency is the running average execution latency.
	AvgLatency time.Duration `json:"avg_latency"`

	// Capabilities lists the agent's declared capabilities.
	Capabilities []string `json:"capabilities"`
}
