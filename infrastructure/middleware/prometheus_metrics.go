// Package middleware provides cross-cutting concerns for the agent
// pipeline: metrics collection and distributed tracing.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fairfound/agentcore/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks pipeline runs, per-agent executions, retries,
// fallbacks, and execution latency.
type PrometheusMetrics struct {
	pipelineRuns    *prometheus.CounterVec
	agentExecutions *prometheus.CounterVec
	agentRetries    *prometheus.CounterVec
	agentFallbacks  *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	counters        *prometheus.CounterVec
	gauges          *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// all metrics with the given registerer. Pass nil to use the default
// global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		pipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline runs by final status.",
			},
			[]string{"status"},
		),
		agentExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_executions_total",
				Help: "Total number of agent executions by agent and outcome.",
			},
			[]string{"agent", "status"},
		),
		agentRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_retries_total",
				Help: "Total number of agent retry attempts.",
			},
			[]string{"agent"},
		),
		agentFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_fallbacks_total",
				Help: "Total number of successful agent fallback executions.",
			},
			[]string{"agent"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_operation_duration_seconds",
				Help:    "Execution time of pipeline operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "agent", "status"},
		),
		counters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_events_total",
				Help: "Miscellaneous pipeline counter events.",
			},
			[]string{"metric", "agent", "status"},
		),
		gauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_system_state",
				Help: "Current pipeline state values.",
			},
			[]string{"metric", "agent"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// operation latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.latency.WithLabelValues(
		operation, labels["agent"], labels["status"],
	).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by routing the
// scheduler's counter metrics to their dedicated Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "pipeline_runs_total":
		pm.pipelineRuns.WithLabelValues(labels["status"]).Add(value)
	case "agent_executions_total":
		pm.agentExecutions.WithLabelValues(labels["agent"], labels["status"]).Add(value)
	case "agent_retries_total":
		pm.agentRetries.WithLabelValues(labels["agent"]).Add(value)
	case "agent_fallbacks_total":
		pm.agentFallbacks.WithLabelValues(labels["agent"]).Add(value)
	default:
		pm.counters.WithLabelValues(metric, labels["agent"], labels["status"]).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.gauges.WithLabelValues(metric, labels["agent"]).Set(value)
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
