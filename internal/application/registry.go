// Package application contains the pipeline core: the agent registry,
// the dependency-aware scheduler, the consensus engine, and the YAML
// pipeline configuration loader.
package application

import (
	"sort"
	"sync"
	"time"

	"github.com/fairfound/agentcore/internal/domain"
	"github.com/fairfound/agentcore/internal/ports"
	"github.com/fairfound/agentcore/logging"
)

// registration pairs an agent's descriptor with its runnable
// implementation.
type registration struct {
	info   domain.AgentInfo
	runner ports.Agent
}

// Registry stores agent descriptors, computes dependency-respecting
// execution orders, and tracks per-agent runtime statistics.
// A Registry is an explicit instance created by the caller; there is no
// process-wide registry.
type Registry struct {
	// mu guards agents, order, and all per-agent stats.
	mu     sync.RWMutex
	agents map[string]*registration

	// order preserves registration order for deterministic iteration.
	order []string

	logger logging.Logger
	stats  ports.StatSink
}

// RegistryOption customizes a Registry at construction time.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(l logging.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStatSink installs a persistence sink that receives every stat
// update. The registry functions correctly without one.
func WithStatSink(sink ports.StatSink) RegistryOption {
	return func(r *Registry) { r.stats = sink }
}

// NewRegistry creates an empty agent registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		agents: make(map[string]*registration),
		logger: logging.NoOp{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an agent descriptor and its implementation.
// Registration fails with *domain.DuplicateAgentError if the ID is
// already present; existing agents are never silently overwritten.
func (r *Registry) Register(info domain.AgentInfo, runner ports.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[info.ID]; exists {
		return &domain.DuplicateAgentError{ID: info.ID}
	}
	if info.RegisteredAt.IsZero() {
		info.RegisteredAt = time.Now()
	}
	r.agents[info.ID] = &registration{info: info, runner: runner}
	r.order = append(r.order, info.ID)

	r.logger.Info("registered agent",
		"agent_id", info.ID, "capabilities", info.Capabilities,
		"dependencies", info.Dependencies, "priority", info.Priority)
	return nil
}

// Unregister removes an agent. It reports whether the agent existed.
func (r *Registry) Unregister(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agentID]; !exists {
		return false
	}
	delete(r.agents, agentID)
	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the agent's descriptor.
func (r *Registry) Get(agentID string) (domain.AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.agents[agentID]
	if !ok {
		return domain.AgentInfo{}, false
	}
	return reg.info, true
}

// Runner returns the executable implementation for an enabled agent.
func (r *Registry) Runner(agentID string) (ports.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.agents[agentID]
	if !ok || !reg.info.Enabled {
		return nil, false
	}
	return reg.runner, true
}

// Agents returns descriptor copies for every registered agent in
// registration order.
func (r *Registry) Agents() []domain.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.AgentInfo, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.agents[id].info)
	}
	return result
}

// EnabledIDs returns the IDs of all enabled agents in registration order.
func (r *Registry) EnabledIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.agents[id].info.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// Enable marks an agent as eligible for discovery and default runs.
// It reports whether the agent exists.
func (r *Registry) Enable(agentID string) bool { return r.setEnabled(agentID, true) }

// Disable excludes an agent from discovery and default runs.
// It reports whether the agent exists.
func (r *Registry) Disable(agentID string) bool { return r.setEnabled(agentID, false) }

func (r *Registry) setEnabled(agentID string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.agents[agentID]
	if !ok {
		return false
	}
	reg.info.Enabled = enabled
	return true
}

// Discover returns the IDs of all enabled agents whose capability set
// contains the given capability, in registration order.
func (r *Registry) Discover(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		reg := r.agents[id]
		if !reg.info.Enabled {
			continue
		}
		for _, c := range reg.info.Capabilities {
			if c == capability {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

// DiscoverByCapabilities returns enabled agents matching the given
// capabilities. With matchAll true an agent must provide every
// capability; otherwise any one suffices.
func (r *Registry) DiscoverByCapabilities(capabilities []string, matchAll bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		reg := r.agents[id]
		if !reg.info.Enabled {
			continue
		}
		have := make(map[string]bool, len(reg.info.Capabilities))
		for _, c := range reg.info.Capabilities {
			have[c] = true
		}

		matched := 0
		for _, c := range capabilities {
			if have[c] {
				matched++
			}
		}
		if matchAll && matched == len(capabilities) || !matchAll && matched > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Dependents returns the IDs of agents that declare a dependency on the
// given agent.
func (r *Registry) Dependents(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		for _, dep := range r.agents[id].info.Dependencies {
			if dep == agentID {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

// GetExecutionOrder computes a dependency-respecting execution order for
// the requested agents (nil or empty selects all enabled agents) using
// Kahn's algorithm restricted to the subset. Duplicate IDs in the
// request are collapsed, so every agent appears at most once.
// Only dependency edges whose target is also in the subset count toward
// in-degrees. Among ready agents the highest priority is scheduled
// first; ties preserve the order in which agents became ready, making
// the result deterministic for identical registration and readiness
// order.
//
// Returns *domain.UnknownAgentError for IDs that are not registered and
// *domain.CycleError when some agents can never become ready.
func (r *Registry) GetExecutionOrder(agentIDs []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(agentIDs) == 0 {
		agentIDs = make([]string, 0, len(r.order))
		for _, id := range r.order {
			if r.agents[id].info.Enabled {
				agentIDs = append(agentIDs, id)
			}
		}
	}

	// Dedup the request so a repeated ID schedules exactly once.
	subset := make(map[string]bool, len(agentIDs))
	ids := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		if _, ok := r.agents[id]; !ok {
			return nil, &domain.UnknownAgentError{ID: id}
		}
		if subset[id] {
			continue
		}
		subset[id] = true
		ids = append(ids, id)
	}

	// In-degree counts only edges internal to the subset; dependencies
	// outside the subset are the caller's responsibility.
	inDegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		inDegree[id] = 0
	}
	for _, id := range ids {
		for _, dep := range r.agents[id].info.Dependencies {
			if subset[dep] {
				inDegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	// Seed the ready queue in request order so equal-priority agents
	// schedule deterministically.
	ready := make([]string, 0, len(ids))
	for _, id := range ids {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	result := make([]string, 0, len(ids))
	for len(ready) > 0 {
		// Pick the highest-priority ready agent; ties keep readiness
		// discovery order (strict > comparison).
		best := 0
		for i := 1; i < len(ready); i++ {
			if r.agents[ready[i]].info.Priority > r.agents[ready[best]].info.Priority {
				best = i
			}
		}
		current := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		result = append(result, current)

		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(result) != len(ids) {
		remaining := make([]string, 0, len(ids)-len(result))
		for _, id := range ids {
			if inDegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &domain.CycleError{Remaining: remaining}
	}
	return result, nil
}

// UpdateStats records the outcome of one agent execution, maintaining a
// running average latency and the derived health classification.
// Safe for concurrent callers.
func (r *Registry) UpdateStats(agentID string, success bool, latency time.Duration) {
	r.mu.Lock()
	reg, ok := r.agents[agentID]
	if ok {
		s := &reg.info.Stats
		s.TotalRuns++
		if success {
			s.SuccessRuns++
		} else {
			s.FailRuns++
		}
		s.AvgLatency += (latency - s.AvgLatency) / time.Duration(s.TotalRuns)
		s.LastRunAt = time.Now()
	}
	r.mu.Unlock()

	if ok && r.stats != nil {
		r.stats.OnStatUpdate(agentID, success, latency)
	}
}

// HealthReport returns a snapshot of per-agent health and aggregate
// counts per health bucket.
func (r *Registry) HealthReport() domain.HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := domain.HealthReport{
		TotalAgents: len(r.agents),
		Summary: map[domain.AgentHealth]int{
			domain.HealthHealthy:   0,
			domain.HealthDegraded:  0,
			domain.HealthUnhealthy: 0,
			domain.HealthUnknown:   0,
		},
		Agents: make(map[string]domain.AgentHealthInfo, len(r.agents)),
	}

	for _, id := range r.order {
		info := r.agents[id].info
		if info.Enabled {
			report.EnabledAgents++
		}
		health := info.Stats.Health()
		report.Summary[health]++
		report.Agents[id] = domain.AgentHealthInfo{
			Health:       health,
			Enabled:      info.Enabled,
			SuccessRate:  info.Stats.SuccessRate(),
			TotalRuns:    info.Stats.TotalRuns,
			AvgLatency:   info.Stats.AvgLatency,
			Capabilities: info.Capabilities,
		}
	}
	return report
}
