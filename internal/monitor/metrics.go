package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the orchestrator.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal    *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge
	RunningExecutions  prometheus.Gauge
	QueueWaitSeconds   prometheus.Histogram
	TierRejections     *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheEvictions     prometheus.Counter
	DecisionsTotal     *prometheus.CounterVec
	DecisionConfidence prometheus.Histogram
	FindingsTotal      *prometheus.CounterVec
	RequestsInFlight   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recon",
				Name:      "executions_total",
				Help:      "Total tool executions by tool, terminal status, and result origin.",
			},
			[]string{"tool", "status", "origin"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "recon",
				Name:      "execution_duration_seconds",
				Help:      "Duration of tool executions in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"tool"},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "recon",
				Name:      "queue_depth",
				Help:      "Number of execution requests waiting for admission.",
			},
		),

		RunningExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "recon",
				Name:      "running_executions",
				Help:      "Number of currently running tool executions.",
			},
		),

		QueueWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "recon",
				Name:      "queue_wait_seconds",
				Help:      "Time requests spend queued before admission.",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),

		TierRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recon",
				Name:      "tier_rejections_total",
				Help:      "Executions rejected by the tier gate, by plan.",
			},
			[]string{"plan"},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "recon",
				Name:      "cache_hits_total",
				Help:      "Result cache hits.",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "recon",
				Name:      "cache_misses_total",
				Help:      "Result cache misses, expired reads included.",
			},
		),

		CacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "recon",
				Name:      "cache_evictions_total",
				Help:      "Entries purged by the cache sweep.",
			},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recon",
				Name:      "decisions_total",
				Help:      "Decision gate outcomes: auto_execute, requires_approval, clarification.",
			},
			[]string{"outcome"},
		),

		DecisionConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "recon",
				Name:      "decision_confidence",
				Help:      "Overall confidence reported by the reasoning collaborator.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),

		FindingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recon",
				Name:      "findings_total",
				Help:      "Findings extracted from tool results, by severity.",
			},
			[]string{"severity"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "recon",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.QueueDepth,
		m.RunningExecutions,
		m.QueueWaitSeconds,
		m.TierRejections,
		m.CacheHits,
		m.CacheMisses,
		m.CacheEvictions,
		m.DecisionsTotal,
		m.DecisionConfidence,
		m.FindingsTotal,
		m.RequestsInFlight,
	)

	return m
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(tool, status, origin string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(tool, status, origin).Inc()
	m.ExecutionDuration.WithLabelValues(tool).Observe(durationSec)
}

// RecordDecision records a decision gate outcome.
func (m *Metrics) RecordDecision(outcome string, confidence float64) {
	m.DecisionsTotal.WithLabelValues(outcome).Inc()
	m.DecisionConfidence.Observe(confidence)
}

// RecordFindings counts extracted findings by severity.
func (m *Metrics) RecordFindings(severities []string) {
	for _, sev := range severities {
		m.FindingsTotal.WithLabelValues(sev).Inc()
	}
}

// CacheHit implements cache.Metrics.
func (m *Metrics) CacheHit() { m.CacheHits.Inc() }

// CacheMiss implements cache.Metrics.
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

// CacheEviction implements cache.Metrics.
func (m *Metrics) CacheEviction(n int) { m.CacheEvictions.Add(float64(n)) }
