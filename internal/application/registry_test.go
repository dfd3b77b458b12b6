package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairfound/agentcore/internal/domain"
	"github.com/fairfound/agentcore/internal/ports"
)

// stubAgent is a minimal agent for registry tests; the registry never
// executes it.
type stubAgent struct{}

func (stubAgent) Execute(context.Context, *domain.ExecutionContext) (domain.Result, error) {
	return domain.Result{Success: true}, nil
}

func mustRegister(t *testing.T, r *Registry, info domain.AgentInfo) {
	t.Helper()
	if info.Kind == "" {
		info.Kind = domain.KindOther
	}
	require.NoError(t, r.Register(info, stubAgent{}))
}

func enabledAgent(id string, deps []string, priority int) domain.AgentInfo {
	return domain.AgentInfo{
		ID:           id,
		Capabilities: []string{"cap_" + id},
		Dependencies: deps,
		Priority:     priority,
		Enabled:      true,
	}
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("scorer", nil, 0))

	err := r.Register(enabledAgent("scorer", nil, 5), stubAgent{})
	var dup *domain.DuplicateAgentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "scorer", dup.ID)

	// The original registration is untouched.
	info, ok := r.Get("scorer")
	require.True(t, ok)
	assert.Equal(t, 0, info.Priority)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("scorer", nil, 0))

	assert.True(t, r.Unregister("scorer"))
	assert.False(t, r.Unregister("scorer"))

	_, ok := r.Get("scorer")
	assert.False(t, ok)
}

func TestRegistryEnableDisable(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("scorer", nil, 0))

	require.True(t, r.Disable("scorer"))
	_, runnable := r.Runner("scorer")
	assert.False(t, runnable)
	assert.Empty(t, r.EnabledIDs())

	require.True(t, r.Enable("scorer"))
	_, runnable = r.Runner("scorer")
	assert.True(t, runnable)
	assert.Equal(t, []string{"scorer"}, r.EnabledIDs())

	assert.False(t, r.Enable("missing"))
}

func TestRegistryDiscoverByCapability(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, domain.AgentInfo{
		ID: "github", Capabilities: []string{"collect", "code_analysis"}, Enabled: true,
	})
	mustRegister(t, r, domain.AgentInfo{
		ID: "skills", Capabilities: []string{"scoring"}, Enabled: true,
	})
	mustRegister(t, r, domain.AgentInfo{
		ID: "disabled", Capabilities: []string{"collect"}, Enabled: false,
	})

	assert.Equal(t, []string{"github"}, r.Discover("collect"))
	assert.Equal(t, []string{"skills"}, r.Discover("scoring"))
	assert.Empty(t, r.Discover("unknown"))
}

func TestRegistryDiscoverByCapabilities(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, domain.AgentInfo{
		ID: "github", Capabilities: []string{"collect", "code_analysis"}, Enabled: true,
	})
	mustRegister(t, r, domain.AgentInfo{
		ID: "linkedin", Capabilities: []string{"collect"}, Enabled: true,
	})

	tests := []struct {
		name         string
		capabilities []string
		matchAll     bool
		want         []string
	}{
		{
			name:         "any match",
			capabilities: []string{"collect", "scoring"},
			want:         []string{"github", "linkedin"},
		},
		{
			name:         "all match",
			capabilities: []string{"collect", "code_analysis"},
			matchAll:     true,
			want:         []string{"github"},
		},
		{
			name:         "all match none qualify",
			capabilities: []string{"collect", "scoring"},
			matchAll:     true,
			want:         nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.DiscoverByCapabilities(tt.capabilities, tt.matchAll)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistryDependents(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("collector", nil, 0))
	mustRegister(t, r, enabledAgent("scorer", []string{"collector"}, 0))
	mustRegister(t, r, enabledAgent("reviewer", []string{"collector", "scorer"}, 0))

	assert.Equal(t, []string{"scorer", "reviewer"}, r.Dependents("collector"))
	assert.Equal(t, []string{"reviewer"}, r.Dependents("scorer"))
	assert.Empty(t, r.Dependents("reviewer"))
}

func TestExecutionOrderRespectsDependencyChain(t *testing.T) {
	r := NewRegistry()
	// Register out of dependency order on purpose.
	mustRegister(t, r, enabledAgent("reviewer", []string{"scorer"}, 0))
	mustRegister(t, r, enabledAgent("scorer", []string{"collector"}, 0))
	mustRegister(t, r, enabledAgent("collector", nil, 0))

	order, err := r.GetExecutionOrder([]string{"reviewer", "scorer", "collector"})
	require.NoError(t, err)
	assert.Equal(t, []string{"collector", "scorer", "reviewer"}, order)
}

func TestExecutionOrderPrefersHigherPriority(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("low", nil, 1))
	mustRegister(t, r, enabledAgent("high", nil, 10))
	mustRegister(t, r, enabledAgent("mid", nil, 5))

	order, err := r.GetExecutionOrder([]string{"low", "high", "mid"})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestExecutionOrderEqualPrioritiesAreDeterministic(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("a", nil, 3))
	mustRegister(t, r, enabledAgent("b", nil, 3))
	mustRegister(t, r, enabledAgent("c", nil, 3))

	first, err := r.GetExecutionOrder([]string{"a", "b", "c"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.GetExecutionOrder([]string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// Ties keep request order.
	assert.Equal(t, []string{"a", "b", "c"}, first)
}

func TestExecutionOrderIgnoresDependenciesOutsideSubset(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("collector", nil, 0))
	mustRegister(t, r, enabledAgent("scorer", []string{"collector"}, 0))

	// The collector is not part of the requested subset, so its edge
	// does not constrain the order.
	order, err := r.GetExecutionOrder([]string{"scorer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"scorer"}, order)
}

func TestExecutionOrderDetectsCycle(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("a", []string{"c"}, 0))
	mustRegister(t, r, enabledAgent("b", []string{"a"}, 0))
	mustRegister(t, r, enabledAgent("c", []string{"b"}, 0))
	mustRegister(t, r, enabledAgent("standalone", nil, 0))

	_, err := r.GetExecutionOrder([]string{"a", "b", "c", "standalone"})
	var cycle *domain.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "c"}, cycle.Remaining)
}

func TestExecutionOrderCollapsesDuplicateRequestIDs(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("collector", nil, 0))
	mustRegister(t, r, enabledAgent("scorer", []string{"collector"}, 0))

	order, err := r.GetExecutionOrder([]string{"scorer", "scorer", "collector", "scorer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"collector", "scorer"}, order)
}

func TestExecutionOrderUnknownAgent(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("scorer", nil, 0))

	_, err := r.GetExecutionOrder([]string{"scorer", "ghost"})
	var unknown *domain.UnknownAgentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.ID)
}

func TestExecutionOrderNilSelectsEnabledAgents(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("collector", nil, 0))
	mustRegister(t, r, enabledAgent("scorer", []string{"collector"}, 0))
	mustRegister(t, r, domain.AgentInfo{ID: "disabled", Enabled: false})

	order, err := r.GetExecutionOrder(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"collector", "scorer"}, order)
}

func TestUpdateStatsTracksOutcomesAndLatency(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("scorer", nil, 0))

	r.UpdateStats("scorer", true, 100*time.Millisecond)
	r.UpdateStats("scorer", true, 300*time.Millisecond)
	r.UpdateStats("scorer", false, 200*time.Millisecond)

	info, ok := r.Get("scorer")
	require.True(t, ok)
	assert.Equal(t, 3, info.Stats.TotalRuns)
	assert.Equal(t, 2, info.Stats.SuccessRuns)
	assert.Equal(t, 1, info.Stats.FailRuns)
	assert.InDelta(t, 2.0/3.0, info.Stats.SuccessRate(), 1e-9)
	assert.Equal(t, 200*time.Millisecond, info.Stats.AvgLatency)
	assert.False(t, info.Stats.LastRunAt.IsZero())

	// Unknown agents are ignored.
	assert.NotPanics(t, func() { r.UpdateStats("ghost", true, time.Second) })
}

// recordingSink captures stat updates for assertion.
type recordingSink struct {
	updates []string
}

func (s *recordingSink) OnStatUpdate(agentID string, success bool, latency time.Duration) {
	s.updates = append(s.updates, agentID)
}

func TestUpdateStatsNotifiesSink(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(WithStatSink(sink))
	mustRegister(t, r, enabledAgent("scorer", nil, 0))

	r.UpdateStats("scorer", true, time.Millisecond)
	r.UpdateStats("scorer", false, time.Millisecond)

	assert.Equal(t, []string{"scorer", "scorer"}, sink.updates)
}

var _ ports.StatSink = (*recordingSink)(nil)

func TestHealthReport(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, enabledAgent("healthy", nil, 0))
	mustRegister(t, r, enabledAgent("degraded", nil, 0))
	mustRegister(t, r, enabledAgent("unhealthy", nil, 0))
	mustRegister(t, r, domain.AgentInfo{ID: "never_ran", Enabled: false})

	for i := 0; i < 20; i++ {
		r.UpdateStats("healthy", true, time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		r.UpdateStats("degraded", i < 9, time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		r.UpdateStats("unhealthy", i < 5, time.Millisecond)
	}

	report := r.HealthReport()
	assert.Equal(t, 4, report.TotalAgents)
	assert.Equal(t, 3, report.EnabledAgents)
	assert.Equal(t, 1, report.Summary[domain.HealthHealthy])
	assert.Equal(t, 1, report.Summary[domain.HealthDegraded])
	assert.Equal(t, 1, report.Summary[domain.HealthUnhealthy])
	assert.Equal(t, 1, report.Summary[domain.HealthUnknown])

	assert.Equal(t, domain.HealthHealthy, report.Agents["healthy"].Health)
	assert.Equal(t, domain.HealthDegraded, report.Agents["degraded"].Health)
	assert.Equal(t, domain.HealthUnhealthy, report.Agents["unhealthy"].Health)
	assert.Equal(t, domain.HealthUnknown, report.Agents["never_ran"].Health)
	assert.False(t, report.Agents["never_ran"].Enabled)
}
