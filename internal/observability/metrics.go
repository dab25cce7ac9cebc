// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Waker metrics
	PlansEvaluated       prometheus.Counter
	Decisions            *prometheus.CounterVec
	Executions           *prometheus.CounterVec
	ChronologyViolations prometheus.Counter
	WakerRunDuration     prometheus.Histogram
	PlansTracked         prometheus.Gauge

	// Solana metrics
	RPCCallLatency  *prometheus.HistogramVec
	WSNotifications prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_ddca"
	}

	return &Metrics{
		PlansEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "waker",
			Name:      "plans_evaluated_total",
			Help:      "Total number of plan reconciliations",
		}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "waker",
			Name:      "decisions_total",
			Help:      "Reconciliation decisions by kind",
		}, []string{"kind"}),
		Executions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "waker",
			Name:      "executions_total",
			Help:      "Swap execution attempts by outcome",
		}, []string{"outcome"}),
		ChronologyViolations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "waker",
			Name:      "chronology_violations_total",
			Help:      "Plans whose last swap timestamp is not checkpoint-aligned",
		}),
		WakerRunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "waker",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full waker pass over all plans",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		PlansTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "waker",
			Name:      "plans_tracked",
			Help:      "Number of open plans seen in the last pass",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_total",
			Help:      "Program account notifications received",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last completed waker pass",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordDecision counts one reconciliation with its decision kind
// ("due", "waiting", "paused", "exhausted", "invalid_configuration").
func RecordDecision(kind string) {
	DefaultMetrics.PlansEvaluated.Inc()
	DefaultMetrics.Decisions.WithLabelValues(kind).Inc()
}

// RecordExecution counts a swap execution attempt by outcome
// ("executed", "stale", "insufficient", "failed").
func RecordExecution(outcome string) {
	DefaultMetrics.Executions.WithLabelValues(outcome).Inc()
}

// RecordChronologyViolation counts a misaligned plan.
func RecordChronologyViolation() {
	DefaultMetrics.ChronologyViolations.Inc()
}

// RecordWakerRun records a completed pass.
func RecordWakerRun(plans int, seconds float64, finishedAt int64) {
	DefaultMetrics.PlansTracked.Set(float64(plans))
	DefaultMetrics.WakerRunDuration.Observe(seconds)
	DefaultMetrics.LastSuccessfulRun.Set(float64(finishedAt))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSNotification counts a WebSocket notification.
func RecordWSNotification() {
	DefaultMetrics.WSNotifications.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
