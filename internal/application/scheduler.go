package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fairfound/agentcore/internal/domain"
	"github.com/fairfound/agentcore/internal/events"
	"github.com/fairfound/agentcore/internal/ports"
	"github.com/fairfound/agentcore/logging"
)

// RetryPolicy controls how failed agent executions are retried.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int `json:"max_retries"`

	// Delay is the base delay before the first retry.
	Delay time.Duration `json:"delay"`

	// BackoffFactor multiplies the delay for each subsequent retry.
	BackoffFactor float64 `json:"backoff_factor"`
}

// DefaultRetryPolicy returns the standard policy: two retries with
// exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Delay: time.Second, BackoffFactor: 2}
}

// DelayFor returns the backoff delay before the retry following the
// given zero-based attempt: Delay * BackoffFactor^attempt.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(p.Delay)
	for i := 0; i < attempt; i++ {
		delay *= factor
	}
	return time.Duration(delay)
}

// HookType names a scheduler lifecycle hook point.
type HookType string

// Hook points exposed by the scheduler.
const (
	HookBeforePipeline HookType = "before_pipeline"
	HookAfterPipeline  HookType = "after_pipeline"
	HookBeforeAgent    HookType = "before_agent"
	HookAfterAgent     HookType = "after_agent"
	HookOnError        HookType = "on_error"
)

// HookContext carries the data available at a hook point. Fields not
// applicable to the hook point are zero-valued.
type HookContext struct {
	// JobID identifies the job being processed.
	JobID string

	// AgentID identifies the agent, for agent-level hooks.
	AgentID string

	// Execution is the shared run context.
	Execution *domain.ExecutionContext

	// Result is the agent result, for after_agent hooks.
	Result *domain.Result

	// Run is the aggregated result, for after_pipeline hooks.
	Run *domain.PipelineRun

	// Err is the failure message, for on_error hooks.
	Err string
}

// Hook is a lifecycle callback. Hooks are best-effort: a panic inside a
// hook is recovered and logged, never aborting the pipeline. In
// wave-parallel mode agent-level hooks may run concurrently.
type Hook func(HookContext)

// Scheduler walks a registry-computed execution order, invoking agents
// with retry, backoff, and fallback handling, tolerating partial
// failure, and publishing lifecycle events for every step.
type Scheduler struct {
	registry *Registry
	bus      *events.Bus
	retry    RetryPolicy
	logger   logging.Logger
	metrics  ports.MetricsCollector

	// limiter optionally gates agent executions.
	limiter *rate.Limiter

	// maxConcurrency > 1 enables wave-parallel execution of agents
	// with no dependency edges between them.
	maxConcurrency int

	hookMu sync.RWMutex
	hooks  map[HookType][]Hook
}

// SchedulerOption customizes a Scheduler at construction time.
type SchedulerOption func(*Scheduler)

// WithRetryPolicy sets the retry policy for agent executions.
func WithRetryPolicy(p RetryPolicy) SchedulerOption {
	return func(s *Scheduler) { s.retry = p }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l logging.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics installs a metrics collector for pipeline and agent
// observability.
func WithMetrics(m ports.MetricsCollector) SchedulerOption {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRateLimit gates agent executions at the given rate.
func WithRateLimit(limiter *rate.Limiter) SchedulerOption {
	return func(s *Scheduler) { s.limiter = limiter }
}

// WithMaxConcurrency allows up to n independent agents to execute
// concurrently within a dependency wave. Values below 2 keep the
// default strictly sequential walk.
func WithMaxConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) { s.maxConcurrency = n }
}

// NewScheduler creates a scheduler over the given registry and event
// bus.
func NewScheduler(registry *Registry, bus *events.Bus, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		registry: registry,
		bus:      bus,
		retry:    DefaultRetryPolicy(),
		logger:   logging.NoOp{},
		metrics:  ports.NoopMetrics{},
		hooks:    make(map[HookType][]Hook),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHook adds a lifecycle callback for the given hook point.
func (s *Scheduler) RegisterHook(hookType HookType, hook Hook) {
	if hook == nil {
		return
	}
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks[hookType] = append(s.hooks[hookType], hook)
}

// runHooks invokes all hooks of a type, recovering from panics so a
// misbehaving hook never aborts the pipeline.
func (s *Scheduler) runHooks(hookType HookType, hc HookContext) {
	s.hookMu.RLock()
	hooks := s.hooks[hookType]
	s.hookMu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("hook panicked", "hook", string(hookType), "panic", r)
				}
			}()
			hook(hc)
		}()
	}
}

// ExecutePipeline runs the given agents (nil or empty = all enabled) in
// dependency order for one job, tolerating per-agent failures. The
// returned error is non-nil only when no execution order exists (cycle
// or unknown agent); agent failures are reported through the run's
// status and error list instead.
//
// Cancelling ctx stops the run between agents and during backoff
// sleeps; agents already finished keep their results.
func (s *Scheduler) ExecutePipeline(
	ctx context.Context,
	jobID, subjectID string,
	input map[string]any,
	agentIDs []string,
) (*domain.PipelineRun, error) {
	order, err := s.registry.GetExecutionOrder(agentIDs)
	if err != nil {
		return nil, fmt.Errorf("computing execution order: %w", err)
	}

	run := &domain.PipelineRun{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Status:    domain.StatusRunning,
		Results:   make(map[string]domain.Result, len(order)),
		StartedAt: time.Now(),
	}
	ec := domain.NewExecutionContext(jobID, subjectID, input)

	s.logger.Info("pipeline started",
		"job_id", jobID, "run_id", run.ID, "agents", len(order))
	s.runHooks(HookBeforePipeline, HookContext{JobID: jobID, Execution: ec})
	s.publish(events.Event{
		Type:     events.TypePipelineStarted,
		AgentID:  "scheduler",
		JobID:    jobID,
		Priority: events.PriorityNormal,
		Payload:  map[string]any{"agent_count": len(order), "execution_order": order},
	}, run.ID)

	if s.maxConcurrency > 1 {
		s.runWaves(ctx, order, ec, run)
	} else {
		s.runSequential(ctx, order, ec, run)
	}

	run.Status = domain.StatusFromCounts(run.Succeeded, run.Failed)
	run.CompletedAt = time.Now()
	run.TotalTime = run.CompletedAt.Sub(run.StartedAt)

	s.runHooks(HookAfterPipeline, HookContext{JobID: jobID, Execution: ec, Run: run})
	s.publish(events.Event{
		Type:     events.TypePipelineCompleted,
		AgentID:  "scheduler",
		JobID:    jobID,
		Priority: events.PriorityNormal,
		Payload: map[string]any{
			"status":     string(run.Status),
			"total_time": run.TotalTime.Seconds(),
			"succeeded":  run.Succeeded,
			"failed":     run.Failed,
		},
	}, run.ID)

	s.metrics.RecordCounter("pipeline_runs_total", 1,
		map[string]string{"status": string(run.Status)})
	s.metrics.RecordLatency("pipeline_execution", run.TotalTime,
		map[string]string{"status": string(run.Status)})
	s.logger.Info("pipeline completed",
		"job_id", jobID, "run_id", run.ID, "status", string(run.Status),
		"succeeded", run.Succeeded, "failed", run.Failed, "total_time", run.TotalTime)

	return run, nil
}

// runSequential executes agents one at a time in topological order.
// This mirrors the default single-threaded pipeline model.
func (s *Scheduler) runSequential(
	ctx context.Context,
	order []string,
	ec *domain.ExecutionContext,
	run *domain.PipelineRun,
) {
	for _, agentID := range order {
		if ctx.Err() != nil {
			run.Errors = append(run.Errors, "pipeline: "+ctx.Err().Error())
			return
		}
		result := s.executeAgent(ctx, agentID, ec, run.ID)
		s.record(run, ec, result)
	}
}

// runWaves executes agents wave by wave: every agent whose dependencies
// all have results runs concurrently with its wave siblings, bounded by
// maxConcurrency. Results are written to the shared context only
// between waves, so sibling reads never race with writes. Per-agent
// retry/backoff/fallback and continue-past-failure semantics are
// identical to the sequential walk.
func (s *Scheduler) runWaves(
	ctx context.Context,
	order []string,
	ec *domain.ExecutionContext,
	run *domain.PipelineRun,
) {
	remaining := order
	for len(remaining) > 0 {
		if ctx.Err() != nil {
			run.Errors = append(run.Errors, "pipeline: "+ctx.Err().Error())
			return
		}

		var wave, deferred []string
		for _, agentID := range remaining {
			info, ok := s.registry.Get(agentID)
			settled := ok
			for _, dep := range info.Dependencies {
				if _, done := ec.Result(dep); !done {
					settled = false
					break
				}
			}
			if settled {
				wave = append(wave, agentID)
			} else {
				deferred = append(deferred, agentID)
			}
		}
		if len(wave) == 0 {
			// Unreachable with a valid topological order; guard against
			// livelock anyway.
			wave, deferred = deferred, nil
		}

		results := make([]domain.Result, len(wave))
		g := new(errgroup.Group)
		g.SetLimit(s.maxConcurrency)
		for i, agentID := range wave {
			g.Go(func() error {
				results[i] = s.executeAgent(ctx, agentID, ec, run.ID)
				return nil
			})
		}
		_ = g.Wait()

		for _, result := range results {
			s.record(run, ec, result)
		}
		remaining = deferred
	}
}

// record stores a finished agent result into the run and the shared
// context and updates the run's counters.
func (s *Scheduler) record(run *domain.PipelineRun, ec *domain.ExecutionContext, result domain.Result) {
	ec.AddResult(result)
	run.Results[result.AgentID] = result
	run.Executed++
	if result.Success {
		run.Succeeded++
	} else {
		run.Failed++
		run.Errors = append(run.Errors, result.AgentID+": "+result.Error)
	}
}

// ExecuteSingle runs one agent against an existing execution context
// with full retry/fallback handling. Useful for manual reruns and tests.
func (s *Scheduler) ExecuteSingle(ctx context.Context, agentID string, ec *domain.ExecutionContext) domain.Result {
	result := s.executeAgent(ctx, agentID, ec, "")
	ec.AddResult(result)
	return result
}

// executeAgent runs the full lifecycle for one agent: dependency gate,
// retry loop, stats update, hooks, and events. The result is returned
// to the caller for context insertion; it is not stored here so that
// wave-parallel siblings never mutate the shared context concurrently.
func (s *Scheduler) executeAgent(
	ctx context.Context,
	agentID string,
	ec *domain.ExecutionContext,
	correlationID string,
) domain.Result {
	s.runHooks(HookBeforeAgent, HookContext{JobID: ec.JobID, AgentID: agentID, Execution: ec})
	s.publish(events.Event{
		Type:     events.TypeAgentStarted,
		AgentID:  agentID,
		JobID:    ec.JobID,
		Priority: events.PriorityNormal,
	}, correlationID)

	var result domain.Result
	info, found := s.registry.Get(agentID)
	runner, runnable := s.registry.Runner(agentID)

	switch {
	case !found || !runnable:
		result = s.failureResult(agentID, domain.KindValidation,
			fmt.Sprintf("agent %s not found or disabled", agentID))

	case !s.dependenciesSatisfied(info, ec, &result):
		// result populated by the gate; missing dependencies fail
		// immediately without retry or fallback.

	default:
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				result = s.failureResult(agentID, domain.KindTimeout, err.Error())
				break
			}
		}
		result = s.executeWithRetry(ctx, info, runner, ec, correlationID)
	}

	s.registry.UpdateStats(agentID, result.Success, result.Latency)
	s.runHooks(HookAfterAgent, HookContext{
		JobID: ec.JobID, AgentID: agentID, Execution: ec, Result: &result,
	})

	eventType := events.TypeAgentCompleted
	priority := events.PriorityNormal
	status := "success"
	if !result.Success {
		eventType = events.TypeAgentFailed
		priority = events.PriorityHigh
		status = "failure"
		s.runHooks(HookOnError, HookContext{
			JobID: ec.JobID, AgentID: agentID, Execution: ec, Err: result.Error,
		})
		s.logger.Warn("agent failed",
			"agent_id", agentID, "job_id", ec.JobID, "error", result.Error,
			"error_kind", string(result.ErrorKind))
	} else {
		s.logger.Info("agent completed",
			"agent_id", agentID, "job_id", ec.JobID,
			"confidence", result.Confidence, "latency", result.Latency)
	}

	s.publish(events.Event{
		Type:     eventType,
		AgentID:  agentID,
		JobID:    ec.JobID,
		Priority: priority,
		Payload: map[string]any{
			"success":    result.Success,
			"confidence": result.Confidence,
			"latency_ms": result.Latency.Milliseconds(),
			"error":      result.Error,
		},
	}, correlationID)
	s.metrics.RecordCounter("agent_executions_total", 1,
		map[string]string{"agent": agentID, "status": status})
	s.metrics.RecordLatency("agent_execution", result.Latency,
		map[string]string{"agent": agentID, "status": status})

	return result
}

// dependenciesSatisfied verifies that every declared dependency has a
// successful result in the context. On the first violation it fills
// result with an immediate missing-dependency failure and returns false.
func (s *Scheduler) dependenciesSatisfied(
	info domain.AgentInfo,
	ec *domain.ExecutionContext,
	result *domain.Result,
) bool {
	for _, dep := range info.Dependencies {
		res, ok := ec.Result(dep)
		if ok && res.Success {
			continue
		}
		*result = s.failureResult(info.ID, domain.KindMissingDependency,
			"missing dependency: "+dep)
		return false
	}
	return true
}

// executeWithRetry attempts an agent up to MaxRetries+1 times with
// exponential backoff, stopping early for non-retryable failures, and
// falls back to the agent's degraded path when every attempt fails.
func (s *Scheduler) executeWithRetry(
	ctx context.Context,
	info domain.AgentInfo,
	runner ports.Agent,
	ec *domain.ExecutionContext,
	correlationID string,
) domain.Result {
	start := time.Now()
	var last domain.Result

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		res, err := runner.Execute(ctx, ec)
		if err != nil {
			res = s.failureResult(info.ID, domain.KindOf(err), err.Error())
		}
		s.normalize(&res, info.ID)

		if res.Success {
			res.Latency = time.Since(start)
			return res
		}
		last = res

		if !res.ErrorKind.Retryable() || ctx.Err() != nil || attempt == s.retry.MaxRetries {
			break
		}

		delay := s.retry.DelayFor(attempt)
		s.logger.Debug("retrying agent",
			"agent_id", info.ID, "attempt", attempt+1, "delay", delay, "error", res.Error)
		s.publish(events.Event{
			Type:     events.TypeAgentRetry,
			AgentID:  info.ID,
			JobID:    ec.JobID,
			Priority: events.PriorityNormal,
			Payload:  map[string]any{"attempt": attempt + 1, "delay_ms": delay.Milliseconds()},
		}, correlationID)
		s.metrics.RecordCounter("agent_retries_total", 1,
			map[string]string{"agent": info.ID})

		select {
		case <-ctx.Done():
			res = s.failureResult(info.ID, domain.KindTimeout, ctx.Err().Error())
			res.Latency = time.Since(start)
			return res
		case <-time.After(delay):
		}
	}

	// All attempts failed; try the agent's degraded path if it has one.
	if fb, ok := runner.(ports.FallbackAgent); ok {
		res, err := fb.Fallback(ctx, ec)
		if err == nil && res.Success {
			s.normalize(&res, info.ID)
			res.Metadata["used_fallback"] = true
			res.Latency = time.Since(start)
			s.metrics.RecordCounter("agent_fallbacks_total", 1,
				map[string]string{"agent": info.ID})
			s.logger.Info("agent fallback succeeded", "agent_id", info.ID, "job_id", ec.JobID)
			return res
		}
	}

	if last.AgentID == "" {
		last = s.failureResult(info.ID, domain.KindInternal, "unknown error after retries")
	}
	if last.Metadata == nil {
		last.Metadata = make(map[string]any)
	}
	last.Metadata["retries_attempted"] = s.retry.MaxRetries
	last.Latency = time.Since(start)
	return last
}

// normalize enforces result invariants at the boundary: agent identity,
// clamped confidence, a timestamp, and a non-nil metadata map.
func (s *Scheduler) normalize(res *domain.Result, agentID string) {
	res.AgentID = agentID
	res.Confidence = domain.Clamp01(res.Confidence)
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	if res.Metadata == nil {
		res.Metadata = make(map[string]any)
	}
	if !res.Success && res.ErrorKind == "" {
		res.ErrorKind = domain.KindTransient
	}
}

// failureResult builds an immediate failure result for an agent.
func (s *Scheduler) failureResult(agentID string, kind domain.ErrorKind, msg string) domain.Result {
	return domain.Result{
		AgentID:   agentID,
		Success:   false,
		Error:     msg,
		ErrorKind: kind,
		Metadata:  make(map[string]any),
		Timestamp: time.Now(),
	}
}

// publish sends a lifecycle event, stamping the run correlation ID.
func (s *Scheduler) publish(event events.Event, correlationID string) {
	if s.bus == nil {
		return
	}
	event.CorrelationID = correlationID
	s.bus.Publish(event)
}
