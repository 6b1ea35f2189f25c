// Package metrics exposes Prometheus instrumentation for opsdec's HTTP
// surface, reconciliation cycles, circuit breakers, image cache, and push
// hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdec_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdec_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsdec_http_active_requests",
			Help: "Number of HTTP requests currently in flight.",
		},
	)

	HTTPRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdec_http_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiting.",
		},
		[]string{"route"},
	)

	// SessionEngine reconciliation

	ReconcileCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdec_reconcile_cycle_duration_seconds",
			Help:    "Duration of a full SessionEngine reconciliation cycle.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	AdapterFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdec_adapter_fetch_duration_seconds",
			Help:    "Duration of a single Adapter upstream fetch.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server_kind", "outcome"},
	)

	AdapterFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdec_adapter_fetch_errors_total",
			Help: "Total number of failed Adapter upstream fetches.",
		},
		[]string{"server_kind"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsdec_sessions_active",
			Help: "Number of sessions currently tracked as playing or paused.",
		},
	)

	HistoryRecordsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsdec_history_records_written_total",
			Help: "Total number of history records written.",
		},
	)

	// Circuit breakers

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opsdec_circuit_breaker_state",
			Help: "Circuit breaker state per server (0=closed, 1=half-open, 2=open).",
		},
		[]string{"server_id"},
	)

	// ImageCache

	ImageCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsdec_image_cache_hits_total",
			Help: "Total number of image cache hits.",
		},
	)

	ImageCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsdec_image_cache_misses_total",
			Help: "Total number of image cache misses.",
		},
	)

	ImageCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsdec_image_cache_evictions_total",
			Help: "Total number of image cache entries evicted.",
		},
	)

	ImageCacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsdec_image_cache_size_bytes",
			Help: "Current on-disk size of the image cache.",
		},
	)

	// PushHub

	PushHubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsdec_pushhub_clients",
			Help: "Number of currently connected PushHub websocket clients.",
		},
	)

	PushHubBroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsdec_pushhub_broadcasts_dropped_total",
			Help: "Total number of broadcasts dropped due to a client's full send buffer.",
		},
	)
)
