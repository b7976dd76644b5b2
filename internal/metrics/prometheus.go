package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ingestion worker

var (
	// API call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animerank_api_calls_total",
			Help: "Total number of catalog API calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animerank_api_call_duration_seconds",
			Help:    "Duration of catalog API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animerank_rate_limit_hits_total",
			Help: "Total number of 429 responses that triggered backoff",
		},
	)

	// Sync metrics
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animerank_sync_operations_total",
			Help: "Total number of season sync operations",
		},
		[]string{"season", "status"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animerank_sync_duration_seconds",
			Help:    "Duration of season sync operations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	EpisodesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animerank_episodes_upserted_total",
			Help: "Total number of episode rows written",
		},
		[]string{"outcome"}, // inserted | updated | failed
	)

	TitlesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animerank_titles_processed_total",
			Help: "Total number of titles whose episodes were ingested",
		},
	)

	WeeksRanked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animerank_weeks_ranked_total",
			Help: "Total number of week buckets recomputed",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animerank_cache_hits_total",
			Help: "Total number of catalog page cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animerank_cache_misses_total",
			Help: "Total number of catalog page cache misses",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animerank_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animerank_system_uptime_seconds",
			Help: "Worker uptime in seconds",
		},
	)

	LastSuccessfulSync = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animerank_last_successful_sync_timestamp",
			Help: "Timestamp of last successful season sync",
		},
	)
)

// RecordAPICall records a catalog API call outcome.
func RecordAPICall(endpoint, status string) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
}

// ObserveAPICallDuration records an API call duration.
func ObserveAPICallDuration(seconds float64) {
	APICallDuration.Observe(seconds)
}

// RecordRateLimit records a 429-triggered backoff.
func RecordRateLimit() {
	RateLimitHits.Inc()
}

// RecordSync records a season sync operation.
func RecordSync(seasonName, status string, seconds float64) {
	SyncOperationsTotal.WithLabelValues(seasonName, status).Inc()
	SyncDuration.Observe(seconds)

	if status == "success" {
		LastSuccessfulSync.SetToCurrentTime()
	}
}

// RecordUpserts records write outcomes for a batch.
func RecordUpserts(inserted, updated, failed int) {
	EpisodesUpserted.WithLabelValues("inserted").Add(float64(inserted))
	EpisodesUpserted.WithLabelValues("updated").Add(float64(updated))
	EpisodesUpserted.WithLabelValues("failed").Add(float64(failed))
}

// RecordError records an error by component.
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordCacheHit records a catalog page cache hit.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a catalog page cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}
