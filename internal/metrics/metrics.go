// Package metrics provides Prometheus metrics for the document cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheLookups counts cache lookups by format and result (hit, miss, stale, error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vergeside",
			Name:      "cache_lookups_total",
			Help:      "Total number of document cache lookups",
		},
		[]string{"format", "result"},
	)

	// BuildDuration measures document builds on cache misses.
	BuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vergeside",
			Name:      "document_build_duration_seconds",
			Help:      "Duration of document builds in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"format", "status"},
	)

	// CoalescedBuilds counts callers that shared an in-flight build.
	CoalescedBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vergeside",
			Name:      "coalesced_builds_total",
			Help:      "Total number of requests served by another request's build",
		},
		[]string{"format"},
	)

	// CacheWriteRaces counts unique violations recovered by updating.
	CacheWriteRaces = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vergeside",
			Name:      "cache_write_races_total",
			Help:      "Total number of concurrent cache inserts recovered by update",
		},
	)

	// ErrorsTotal counts errors by operation.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vergeside",
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"operation"},
	)

	// BreakerState tracks circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vergeside",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"breaker"},
	)

	// SkippedPolygons counts polygons dropped for invalid geometry.
	SkippedPolygons = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vergeside",
			Name:      "skipped_polygons_total",
			Help:      "Total number of polygons skipped for invalid geometry",
		},
	)
)

// RecordLookup records the outcome of a cache lookup.
func RecordLookup(format, result string) {
	CacheLookups.WithLabelValues(format, result).Inc()
}

// RecordBuild records a document build.
func RecordBuild(format, status string, seconds float64) {
	BuildDuration.WithLabelValues(format, status).Observe(seconds)
}

// SetBreakerState records the state of a named circuit breaker.
func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordError records an error.
func RecordError(operation string) {
	ErrorsTotal.WithLabelValues(operation).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
