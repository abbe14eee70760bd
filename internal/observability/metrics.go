package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Sandboxed code executions by outcome (evaluated, executed, failed)
//   - LLM request performance for classification and turn completion
//   - Enrichment job throughput per row
//   - Broadcast delivery and backpressure drops
//   - Active session counts
type Metrics struct {
	// ExecutionCounter counts sandbox executions.
	// Labels: outcome (evaluated|executed|failed)
	ExecutionCounter *prometheus.CounterVec

	// ExecutionDuration measures sandbox execution time in seconds.
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s
	ExecutionDuration prometheus.Histogram

	// LLMRequestCounter counts LLM requests.
	// Labels: purpose (turn|classify|summary), status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: purpose
	LLMRequestDuration *prometheus.HistogramVec

	// EnrichmentRows counts processed enrichment rows.
	// Labels: status (ok|skipped|failed)
	EnrichmentRows *prometheus.CounterVec

	// BroadcastEvents counts broadcast deliveries.
	// Labels: channel (transcript|enrichment), result (delivered|dropped)
	BroadcastEvents *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current live sessions.
	ActiveSessions prometheus.Gauge

	// ExportCounter counts spreadsheet exports.
	// Labels: status (success|error)
	ExportCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Pass prometheus.DefaultRegisterer at application startup; tests
// should pass a fresh registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxquery_executions_total",
				Help: "Sandbox code executions by outcome.",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voxquery_execution_duration_seconds",
				Help:    "Sandbox code execution latency.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxquery_llm_requests_total",
				Help: "LLM requests by purpose and status.",
			},
			[]string{"purpose", "status"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxquery_llm_request_duration_seconds",
				Help:    "LLM request latency by purpose.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"purpose"},
		),
		EnrichmentRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxquery_enrichment_rows_total",
				Help: "Enrichment rows processed by status.",
			},
			[]string{"status"},
		),
		BroadcastEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxquery_broadcast_events_total",
				Help: "Broadcast events by channel and delivery result.",
			},
			[]string{"channel", "result"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voxquery_active_sessions",
				Help: "Number of live sessions.",
			},
		),
		ExportCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxquery_exports_total",
				Help: "Spreadsheet exports by status.",
			},
			[]string{"status"},
		),
	}
}
