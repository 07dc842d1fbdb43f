package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "appgallery",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appgallery",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "appgallery",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	tierReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appgallery",
			Subsystem: "storage",
			Name:      "tier_reads_total",
			Help:      "Reads attempted per storage tier, by outcome (hit, miss, error).",
		},
		[]string{"tier", "outcome"},
	)

	saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appgallery",
			Subsystem: "storage",
			Name:      "saves_total",
			Help:      "Collection saves by the tier that accepted the write.",
		},
		[]string{"key", "storage"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appgallery",
			Subsystem: "storage",
			Name:      "write_retries_total",
			Help:      "Write attempts beyond the first, per tier.",
		},
		[]string{"tier"},
	)

	dirtyEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "appgallery",
			Subsystem: "storage",
			Name:      "dirty_entries",
			Help:      "Collections held only in memory after a failed persistent write.",
		},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appgallery",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Reconciliation runs by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		tierReads,
		saves,
		retries,
		dirtyEntries,
		syncRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RequestStarted marks a request as in flight
func RequestStarted() { httpInFlight.Inc() }

// RequestFinished records a completed request. path should be the route
// template so label cardinality stays bounded.
func RequestFinished(method, path, status string, duration time.Duration) {
	httpInFlight.Dec()
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TierRead records the outcome of a read against one storage tier
func TierRead(tier, outcome string) {
	tierReads.WithLabelValues(tier, outcome).Inc()
}

// Saved records which tier accepted a collection write
func Saved(key, storage string) {
	saves.WithLabelValues(key, storage).Inc()
}

// Retried records a write retry against a tier
func Retried(tier string) {
	retries.WithLabelValues(tier).Inc()
}

// SetDirty reports the number of memory-only collections
func SetDirty(n int) {
	dirtyEntries.Set(float64(n))
}

// SyncRun records a reconciliation run
func SyncRun(outcome string) {
	syncRuns.WithLabelValues(outcome).Inc()
}
