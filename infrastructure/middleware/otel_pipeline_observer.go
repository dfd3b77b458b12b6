package middleware

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairfound/agentcore/internal/application"
	"github.com/fairfound/agentcore/internal/domain"
)

// OTelPipelineObserver implements observability for pipeline runs using
// OpenTelemetry tracing. It creates a span per pipeline run and a child
// span per agent execution, recording outcomes, confidences, and
// fallback usage as span attributes and events.
type OTelPipelineObserver struct {
	tracer trace.Tracer

	// mu guards the span maps; agent hooks may fire concurrently in
	// wave-parallel mode.
	mu            sync.Mutex
	pipelineSpans map[string]trace.Span
	agentSpans    map[string]trace.Span
}

// NewOTelPipelineObserver creates a pipeline observer using the global
// tracer provider.
func NewOTelPipelineObserver() *OTelPipelineObserver {
	return &OTelPipelineObserver{
		tracer:        otel.Tracer("agent-pipeline"),
		pipelineSpans: make(map[string]trace.Span),
		agentSpans:    make(map[string]trace.Span),
	}
}

// Attach registers the observer's callbacks on a scheduler's lifecycle
// hooks.
func (o *OTelPipelineObserver) Attach(s *application.Scheduler) {
	s.RegisterHook(application.HookBeforePipeline, o.beforePipeline)
	s.RegisterHook(application.HookAfterPipeline, o.afterPipeline)
	s.RegisterHook(application.HookBeforeAgent, o.beforeAgent)
	s.RegisterHook(application.HookAfterAgent, o.afterAgent)
}

// beforePipeline opens the root span for a pipeline run.
func (o *OTelPipelineObserver) beforePipeline(hc application.HookContext) {
	_, span := o.tracer.Start(context.Background(), "Pipeline.Execute",
		trace.WithAttributes(attribute.String("pipeline.job_id", hc.JobID)))

	o.mu.Lock()
	o.pipelineSpans[hc.JobID] = span
	o.mu.Unlock()
}

// afterPipeline records the run outcome and closes the root span.
func (o *OTelPipelineObserver) afterPipeline(hc application.HookContext) {
	o.mu.Lock()
	span, ok := o.pipelineSpans[hc.JobID]
	delete(o.pipelineSpans, hc.JobID)
	o.mu.Unlock()
	if !ok {
		return
	}
	defer span.End()

	if hc.Run == nil {
		return
	}
	span.SetAttributes(
		attribute.String("pipeline.status", string(hc.Run.Status)),
		attribute.Int("pipeline.agents_executed", hc.Run.Executed),
		attribute.Int("pipeline.agents_succeeded", hc.Run.Succeeded),
		attribute.Int("pipeline.agents_failed", hc.Run.Failed),
		attribute.Float64("pipeline.total_time_seconds", hc.Run.TotalTime.Seconds()),
	)
	if hc.Run.Status == domain.StatusFailed {
		span.SetStatus(codes.Error, "all agents failed")
		return
	}
	span.SetStatus(codes.Ok, "pipeline completed")
}

// beforeAgent opens an agent span as a child of the run's root span.
func (o *OTelPipelineObserver) beforeAgent(hc application.HookContext) {
	ctx := context.Background()

	o.mu.Lock()
	if parent, ok := o.pipelineSpans[hc.JobID]; ok {
		ctx = trace.ContextWithSpan(ctx, parent)
	}
	o.mu.Unlock()

	_, span := o.tracer.Start(ctx, "Agent.Execute",
		trace.WithAttributes(
			attribute.String("agent.id", hc.AgentID),
			attribute.String("pipeline.job_id", hc.JobID),
		))

	o.mu.Lock()
	o.agentSpans[hc.JobID+"/"+hc.AgentID] = span
	o.mu.Unlock()
}

// afterAgent records the execution result and closes the agent span.
func (o *OTelPipelineObserver) afterAgent(hc application.HookContext) {
	o.mu.Lock()
	span, ok := o.agentSpans[hc.JobID+"/"+hc.AgentID]
	delete(o.agentSpans, hc.JobID+"/"+hc.AgentID)
	o.mu.Unlock()
	if !ok {
		return
	}
	defer span.End()

	if hc.Result == nil {
		return
	}
	span.SetAttributes(
		attribute.Bool("agent.success", hc.Result.Success),
		attribute.Float64("agent.confidence", hc.Result.Confidence),
		attribute.Int64("agent.latency_ms", hc.Result.Latency.Milliseconds()),
	)
	if fallback, ok := hc.Result.Metadata["used_fallback"].(bool); ok && fallback {
		span.AddEvent("agent.fallback_used")
	}

	if !hc.Result.Success {
		span.AddEvent("agent.failed", trace.WithAttributes(
			attribute.String("error", hc.Result.Error),
			attribute.String("error_kind", string(hc.Result.ErrorKind)),
		))
		span.SetStatus(codes.Error, hc.Result.Error)
		return
	}
	span.SetStatus(codes.Ok, "agent completed")
}
