package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// graph execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "agentgraph_"):
//
// 1. inflight_branches (gauge): current number of branches executing
// concurrently. Use: monitor parallelism levels and detect bottlenecks.
//
// 2. step_latency_ms (histogram): node execution duration in milliseconds.
// Labels: node_id, status (success/error/timeout).
// Use: P50/P95/P99 latency analysis per node.
//
// 3. route_decisions_total (counter): routing decisions by strategy.
// Labels: strategy, advisor_applied.
// Use: understand which routing paths workflows actually take.
//
// 4. backtracks_total (counter): backtrack operations performed.
// Labels: reason (failure/manual/exhausted).
// Use: detect workflows that repeatedly fall back to alternatives.
//
// 5. checkpoints_total (counter): checkpoints written, by kind.
// Labels: kind (auto/manual/error/branch).
//
// 6. advisor_fallbacks_total (counter): advisor consultations that failed
// and fell back to heuristic-only scoring. Labels: reason (error/timeout).
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine := graph.New(wf, st, graph.WithMetrics(metrics))
//
//	// Expose via HTTP for Prometheus scraping:
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: prometheus collectors handle concurrent updates.
type PrometheusMetrics struct {
	inflightBranches prometheus.Gauge
	stepLatency      *prometheus.HistogramVec
	routeDecisions   *prometheus.CounterVec
	backtracks       *prometheus.CounterVec
	checkpoints      *prometheus.CounterVec
	advisorFallbacks *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all graph execution metrics
// with the provided Prometheus registry.
//
// Pass prometheus.DefaultRegisterer for the global registry, or a custom
// registry for isolation (recommended in tests). A nil registry uses the
// default registerer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightBranches = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentgraph",
		Name:      "inflight_branches",
		Help:      "Current number of branches executing concurrently",
	})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentgraph",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds (from dispatch to completion)",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000}, // 1ms to 10s
	}, []string{"node_id", "status"}) // status: success, error, timeout

	pm.routeDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "route_decisions_total",
		Help:      "Routing decisions made, by edge strategy and whether an advisor influenced the outcome",
	}, []string{"strategy", "advisor_applied"})

	pm.backtracks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "backtracks_total",
		Help:      "Backtrack operations performed",
	}, []string{"reason"}) // reason: failure, manual, exhausted

	pm.checkpoints = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "checkpoints_total",
		Help:      "Checkpoints written, by kind",
	}, []string{"kind"}) // kind: auto, manual, error, branch

	pm.advisorFallbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "advisor_fallbacks_total",
		Help:      "Advisor consultations that failed and fell back to heuristic scoring",
	}, []string{"reason"}) // reason: error, timeout

	return pm
}

// RecordStepLatency records the execution duration of a node in milliseconds.
//
// status is the execution outcome: "success", "error", or "timeout".
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.recording() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// RecordRouteDecision increments the routing decision counter.
func (pm *PrometheusMetrics) RecordRouteDecision(strategy string, advisorApplied bool) {
	if !pm.recording() {
		return
	}
	applied := "false"
	if advisorApplied {
		applied = "true"
	}
	pm.routeDecisions.WithLabelValues(strategy, applied).Inc()
}

// RecordBacktrack increments the backtrack counter.
//
// reason is "failure", "manual", or "exhausted".
func (pm *PrometheusMetrics) RecordBacktrack(reason string) {
	if !pm.recording() {
		return
	}
	pm.backtracks.WithLabelValues(reason).Inc()
}

// RecordCheckpoint increments the checkpoint counter for the given kind.
func (pm *PrometheusMetrics) RecordCheckpoint(kind string) {
	if !pm.recording() {
		return
	}
	pm.checkpoints.WithLabelValues(kind).Inc()
}

// RecordAdvisorFallback increments the advisor fallback counter.
//
// reason is "error" or "timeout".
func (pm *PrometheusMetrics) RecordAdvisorFallback(reason string) {
	if !pm.recording() {
		return
	}
	pm.advisorFallbacks.WithLabelValues(reason).Inc()
}

// UpdateInflightBranches sets the current number of concurrently executing
// branches.
func (pm *PrometheusMetrics) UpdateInflightBranches(count int) {
	if !pm.recording() {
		return
	}
	pm.inflightBranches.Set(float64(count))
}

func (pm *PrometheusMetrics) recording() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
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
