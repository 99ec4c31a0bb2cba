package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	CacheReads         *prometheus.CounterVec
	TurnsSaved         *prometheus.CounterVec
	GenerationResults  *prometheus.CounterVec
	GenerationAttempts prometheus.Histogram
	RenderFailures     *prometheus.CounterVec
	ActiveGenerations  prometheus.Gauge
	ReconcileRuns      *prometheus.CounterVec
	ReconcileDuration  prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CacheReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_reads_total",
			Help:      "History cache reads by outcome (hit, miss, error).",
		}, []string{"outcome"}),
		TurnsSaved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_saved_total",
			Help:      "Turns written through to the durable log, by role.",
		}, []string{"role"}),
		GenerationResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_results_total",
			Help:      "Generation pipeline outcomes (success, exhausted).",
		}, []string{"result"}),
		GenerationAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts",
			Help:      "Attempts consumed per generation request.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		RenderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Render-path failures by kind (exec, artifact_missing, validation).",
		}, []string{"kind"}),
		ActiveGenerations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_generations",
			Help:      "Generation requests currently in flight.",
		}),
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation passes by trigger (timer, manual) and outcome.",
		}, []string{"trigger", "outcome"}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_ms",
			Help:      "Duration of a full reconciliation pass in milliseconds.",
			Buckets:   []float64{5, 20, 50, 100, 250, 500, 1000, 5000},
		}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) ObserveCacheRead(outcome string) {
	if m == nil {
		return
	}
	m.CacheReads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReconcile(trigger, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileRuns.WithLabelValues(trigger, outcome).Inc()
	m.ReconcileDuration.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
