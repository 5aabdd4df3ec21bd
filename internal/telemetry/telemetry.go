// Package telemetry defines the Prometheus metrics exposed by the pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourcesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_sources_total",
			Help: "Sources processed, labeled by terminal status.",
		},
		[]string{"status"},
	)

	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_fetch_attempts_total",
			Help: "Fetch attempts, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_fetch_bytes_total",
			Help: "Raw bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_fetch_duration_seconds",
			Help:    "Histogram of fetch latencies, labeled by site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"site"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "research_active_workers",
			Help: "Workers currently processing a source.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_rate_limit_delay_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"target"},
	)

	cacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_cache_events_total",
			Help: "Content cache events: hit, miss, eviction.",
		},
		[]string{"event"},
	)
)

// ObserveSources records n sources reaching a terminal status.
func ObserveSources(status string, n int) {
	if n > 0 {
		sourcesTotal.WithLabelValues(status).Add(float64(n))
	}
}

// ObserveFetchAttempt records one fetch attempt and its payload size.
func ObserveFetchAttempt(site, outcome string, bytes int, duration time.Duration) {
	fetchAttemptsTotal.WithLabelValues(site, outcome).Inc()
	if bytes > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytes))
	}
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active worker count.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active worker count.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(target string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(target).Observe(duration.Seconds())
}

// ObserveCacheEvent records a cache hit, miss, or eviction.
func ObserveCacheEvent(event string) {
	cacheEventsTotal.WithLabelValues(event).Inc()
}

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewRouter builds the chi router serving the metrics endpoint.
func NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", Handler())
	return r
}
