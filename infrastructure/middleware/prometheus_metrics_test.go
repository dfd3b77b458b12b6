package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *PrometheusMetrics {
	// A fresh registry per test avoids duplicate registration panics.
	return NewPrometheusMetrics(prometheus.NewRegistry())
}

func TestPrometheusMetricsRecordCounterRouting(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("pipeline_runs_total", 1, map[string]string{"status": "completed"})
	pm.RecordCounter("pipeline_runs_total", 1, map[string]string{"status": "completed"})
	pm.RecordCounter("pipeline_runs_total", 1, map[string]string{"status": "partial"})

	assert.InDelta(t, 2.0, testutil.ToFloat64(
		pm.pipelineRuns.WithLabelValues("completed")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		pm.pipelineRuns.WithLabelValues("partial")), 1e-9)
}

func TestPrometheusMetricsAgentCounters(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("agent_executions_total", 1, map[string]string{"agent": "scorer", "status": "success"})
	pm.RecordCounter("agent_retries_total", 3, map[string]string{"agent": "scorer"})
	pm.RecordCounter("agent_fallbacks_total", 1, map[string]string{"agent": "scorer"})

	assert.InDelta(t, 1.0, testutil.ToFloat64(
		pm.agentExecutions.WithLabelValues("scorer", "success")), 1e-9)
	assert.InDelta(t, 3.0, testutil.ToFloat64(
		pm.agentRetries.WithLabelValues("scorer")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		pm.agentFallbacks.WithLabelValues("scorer")), 1e-9)
}

func TestPrometheusMetricsUnknownCounterFallsThrough(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("custom_metric", 2, map[string]string{"agent": "probe", "status": "ok"})

	assert.InDelta(t, 2.0, testutil.ToFloat64(
		pm.counters.WithLabelValues("custom_metric", "probe", "ok")), 1e-9)
}

func TestPrometheusMetricsRecordLatencyAndGauge(t *testing.T) {
	pm := newTestMetrics()

	assert.NotPanics(t, func() {
		pm.RecordLatency("agent_execution", 150*time.Millisecond,
			map[string]string{"agent": "scorer", "status": "success"})
		pm.RecordLatency("pipeline_execution", time.Second,
			map[string]string{"status": "completed"})
	})

	pm.RecordGauge("queue_depth", 42, map[string]string{"agent": "bus"})
	assert.InDelta(t, 42.0, testutil.ToFloat64(
		pm.gauges.WithLabelValues("queue_depth", "bus")), 1e-9)
}

func TestPrometheusMetricsMissingLabelsDoNotPanic(t *testing.T) {
	pm := newTestMetrics()

	assert.NotPanics(t, func() {
		pm.RecordCounter("agent_executions_total", 1, map[string]string{})
		pm.RecordLatency("agent_execution", time.Millisecond, nil)
		pm.RecordGauge("queue_depth", 1, nil)
	})
}
