// Package metrics defines Prometheus metrics for dawn.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dawn"

// Roblox API metrics.
var (
	APICallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "roblox_api_calls_total",
		Help:      "Total physical HTTP calls issued to the Roblox API.",
	})

	APIRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "roblox_api_retries_total",
		Help:      "Total retried Roblox API calls (transport failures, 5xx, 429).",
	})

	RetriesExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "roblox_api_retries_exhausted_total",
		Help:      "Total logical calls that failed after the retry ceiling.",
	})

	CSRFRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "roblox_csrf_refreshes_total",
		Help:      "Total CSRF token bootstraps and rotations picked up.",
	})

	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "roblox_request_duration_seconds",
		Help:      "Duration of individual Roblox API requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Inventory cache metrics.
var (
	InventoryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_cache_hits_total",
		Help:      "Self-inventory reads served from the in-memory cache.",
	})

	InventoryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_cache_misses_total",
		Help:      "Self-inventory reads that triggered an upstream fetch.",
	})
)

// Valuation cache metrics.
var (
	CollectiblesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "collectibles_tracked",
		Help:      "Number of collectibles present in the valuation cache.",
	})

	ValuationSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "valuation_sync_duration_seconds",
		Help:      "Duration of valuation sync cycles in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	ValuationSyncErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "valuation_sync_errors_total",
		Help:      "Total valuation sync cycles that ended in error.",
	})
)

// Ops server metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests served by the ops server.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the ops server.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HealthzUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "healthz_up",
		Help:      "Whether the last liveness probe succeeded.",
	})

	ReadyzUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "readyz_up",
		Help:      "Whether the last readiness probe succeeded.",
	})
)
