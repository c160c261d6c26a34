// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redline_projection_cache_lookups_total",
		Help: "Projection cache lookups by backend and result (hit, miss, error)",
	}, []string{"backend", "result"})

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redline_projection_cache_invalidations_total",
		Help: "Projection cache entries invalidated on decision append",
	}, []string{"backend"})

	CacheStalePuts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redline_projection_cache_stale_puts_total",
		Help: "Projection cache writes dropped because the clause was invalidated meanwhile",
	}, []string{"backend"})

	DecisionsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redline_decisions_appended_total",
		Help: "Decisions appended to clause logs by action type",
	}, []string{"action"})

	DecisionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redline_decisions_rejected_total",
		Help: "Decision submissions rejected before append by reason",
	}, []string{"reason"})

	ConflictWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redline_conflict_warnings_total",
		Help: "Appends where the clause changed after the caller loaded it",
	})

	IntegrityFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redline_decision_log_integrity_faults_total",
		Help: "Projections that failed on undecodable or inconsistent stored decisions",
	})

	ProjectionBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "redline_projection_build_duration_seconds",
		Help:    "Time to load a clause log and build its projection",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redline_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
