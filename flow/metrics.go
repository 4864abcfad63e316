package flow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// session execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "reviewflow_"):
//
// 1. step_latency_ms (histogram): Step handler duration in milliseconds.
// Labels: step_id, status (success/absorbed/failed).
// Use: P50/P95/P99 latency analysis per pipeline step.
//
// 2. steps_total (counter): Cumulative step executions.
// Labels: step_id, status.
// Use: Throughput and failure-rate tracking per step.
//
// 3. absorbed_failures_total (counter): Step failures converted into
// degraded state instead of halting the session.
// Labels: step_id.
// Use: Spot enrichment steps that silently degrade reviews.
//
// 4. session_outcomes_total (counter): Sessions reaching a settled status.
// Labels: status (paused/completed/failed).
// Use: Pipeline health overview.
//
// 5. checkpoint_write_ms (histogram): Checkpoint persistence latency.
// Use: Detect a slow or degrading store before it fails advances.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := flow.NewPrometheusMetrics(registry)
//	engine, err := flow.New(graph, reducer, store, emitter, flow.WithMetrics(metrics))
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: all methods delegate to prometheus primitives.
type PrometheusMetrics struct {
	stepLatency      *prometheus.HistogramVec
	steps            *prometheus.CounterVec
	absorbedFailures *prometheus.CounterVec
	sessionOutcomes  *prometheus.CounterVec
	checkpointWrite  prometheus.Histogram

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all session execution metrics
// with the provided Prometheus registry.
//
// Parameters:
//   - registry: Prometheus registry (nil uses prometheus.DefaultRegisterer).
//
// Histograms use buckets sized for typical step durations: local steps in
// the low milliseconds, LLM and scanner steps in the seconds.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Name:      "step_latency_ms",
		Help:      "Step handler duration in milliseconds (from dispatch to completion)",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"step_id", "status"}) // status: success, absorbed, failed

	pm.steps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "steps_total",
		Help:      "Cumulative count of step executions across all sessions",
	}, []string{"step_id", "status"})

	pm.absorbedFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "absorbed_failures_total",
		Help:      "Step failures absorbed into state as degraded results",
	}, []string{"step_id"})

	pm.sessionOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "session_outcomes_total",
		Help:      "Sessions reaching a settled status per advance call",
	}, []string{"status"}) // status: paused, completed, failed

	pm.checkpointWrite = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Name:      "checkpoint_write_ms",
		Help:      "Checkpoint persistence latency in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	return pm
}

// RecordStep records one step execution with its duration and outcome.
//
// Updates both the step_latency_ms histogram and the steps_total counter.
//
// Parameters:
//   - stepID: Pipeline step that executed.
//   - latency: Handler duration.
//   - status: Execution outcome ("success", "absorbed", "failed").
func (pm *PrometheusMetrics) RecordStep(stepID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}

	pm.stepLatency.WithLabelValues(stepID, status).Observe(float64(latency.Milliseconds()))
	pm.steps.WithLabelValues(stepID, status).Inc()
}

// IncrementAbsorbedFailures counts a step failure that was absorbed into
// state instead of halting the session.
func (pm *PrometheusMetrics) IncrementAbsorbedFailures(stepID string) {
	if !pm.isEnabled() {
		return
	}

	pm.absorbedFailures.WithLabelValues(stepID).Inc()
}

// RecordSessionOutcome counts the settled status a session reached at the
// end of one advance call ("paused", "completed", "failed").
func (pm *PrometheusMetrics) RecordSessionOutcome(status string) {
	if !pm.isEnabled() {
		return
	}

	pm.sessionOutcomes.WithLabelValues(status).Inc()
}

// RecordCheckpointWrite records the latency of one checkpoint Put.
func (pm *PrometheusMetrics) RecordCheckpointWrite(latency time.Duration) {
	if !pm.isEnabled() {
		return
	}

	pm.checkpointWrite.Observe(float64(latency.Milliseconds()))
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
