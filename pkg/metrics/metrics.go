// Package metrics centralizes the Prometheus collectors used across the
// service. Collectors are registered on the default registry at init time
// via promauto; the admin server exposes them with Handler().
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP surface
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "venuerails_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by handler, method and status code.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method", "code"},
	)

	// Slot extraction
	ParseRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_parse_requests_total",
			Help: "Parse requests by cache outcome and fallback usage.",
		},
		[]string{"cache", "fallback"},
	)
	ParseSlots = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "venuerails_parse_slots",
			Help:    "Number of slots extracted per parse.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	// Caches (parse, rails)
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_cache_events_total",
			Help: "Cache events (hit, miss, evict) by cache name.",
		},
		[]string{"cache", "event"},
	)

	// Retrieval + composition
	SearchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_search_queries_total",
			Help: "Derived-view searches by kind (slot, text, editorial).",
		},
		[]string{"kind"},
	)
	RailsComposed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_rails_composed_total",
			Help: "Rail compositions by mode.",
		},
		[]string{"mode"},
	)
	RailTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venuerails_rail_timeouts_total",
			Help: "Per-rail retrieval calls that were cut off by deadline.",
		},
	)

	// Ingestion pipeline
	PipelineJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_pipeline_jobs_total",
			Help: "Pipeline step executions by agent and outcome.",
		},
		[]string{"agent", "outcome"},
	)
	PipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "venuerails_pipeline_step_duration_seconds",
			Help:    "Duration of one pipeline step by agent.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"agent"},
	)
	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_llm_tokens_total",
			Help: "LLM tokens spent by kind (prompt, completion).",
		},
		[]string{"kind"},
	)
	GeocodeCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_geocode_calls_total",
			Help: "Geocoding provider calls by outcome.",
		},
		[]string{"outcome"},
	)

	// Derived view refresh
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_view_refresh_runs_total",
			Help: "Derived view refresh iterations by outcome.",
		},
		[]string{"outcome"},
	)
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "venuerails_view_refresh_duration_seconds",
			Help:    "Duration of a full derived view rebuild and swap.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)
	ViewRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "venuerails_search_view_rows",
			Help: "Row count of the live derived search view.",
		},
	)
	ViewLastRefresh = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "venuerails_search_view_last_refresh_timestamp_seconds",
			Help: "Unix timestamp of the last successful view refresh.",
		},
	)

	// Sessions & feedback
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "venuerails_sessions_active",
			Help: "Session profiles currently held in memory.",
		},
	)
	FeedbackSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_feedback_signals_total",
			Help: "Feedback signals recorded by action.",
		},
		[]string{"action"},
	)

	// External provider circuit breakers
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "venuerails_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		},
		[]string{"name"},
	)
	BreakerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuerails_circuit_calls_total",
			Help: "Calls through circuit breakers by name and outcome.",
		},
		[]string{"name", "outcome"},
	)
	BreakerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "venuerails_circuit_call_duration_seconds",
			Help:    "Latency of calls made through circuit breakers.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		},
		[]string{"name"},
	)

	// Config hot reload
	ConfigReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venuerails_config_reload_total",
			Help: "Config reload attempts that produced a new snapshot.",
		},
	)
	ConfigReloadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venuerails_config_reload_failures_total",
			Help: "Config reloads rejected by validation.",
		},
	)
)

// Handler exposes the default registry in Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }

// ObserveHTTP records one served request.
func ObserveHTTP(handler, method string, code int, d time.Duration) {
	httpRequestDuration.WithLabelValues(handler, method, strconv.Itoa(code)).Observe(d.Seconds())
}
