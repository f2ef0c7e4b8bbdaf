package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "superschedules"

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RetrievalRequestsTotal    metric.Int64Counter
	RetrievalDurationSeconds  metric.Float64Histogram
	FallbackSearchesTotal     metric.Int64Counter
	EmbeddingCacheHitsTotal   metric.Int64Counter
	EmbeddingCacheMissesTotal metric.Int64Counter
	EmbeddingDurationSeconds  metric.Float64Histogram
	LocationResolutionsTotal  metric.Int64Counter
	CorpusEvents              metric.Int64Gauge
	DbQueryDurationSeconds    metric.Float64Histogram
	DbQueryErrorsTotal        metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics creates the instruments once, from the global MeterProvider.
// Call it after the provider is installed so the instruments are exported.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter(meterName)
		m := &AppMetrics{}

		m.RetrievalRequestsTotal = int64Counter(meter, "retrieval_requests_total",
			"Total number of tiered retrieval requests", "{request}")
		m.RetrievalDurationSeconds = float64Histogram(meter, "retrieval_duration_seconds",
			"Duration of tiered retrieval requests in seconds")
		m.FallbackSearchesTotal = int64Counter(meter, "fallback_searches_total",
			"Total number of retrievals served by the deterministic fallback search", "{search}")
		m.EmbeddingCacheHitsTotal = int64Counter(meter, "embedding_cache_hits_total",
			"Total number of query embedding cache hits", "{hit}")
		m.EmbeddingCacheMissesTotal = int64Counter(meter, "embedding_cache_misses_total",
			"Total number of query embedding cache misses", "{miss}")
		m.EmbeddingDurationSeconds = float64Histogram(meter, "embedding_duration_seconds",
			"Duration of embedding provider calls in seconds")
		m.LocationResolutionsTotal = int64Counter(meter, "location_resolutions_total",
			"Total number of location resolutions by method", "{resolution}")
		m.DbQueryDurationSeconds = float64Histogram(meter, "db_query_duration_seconds",
			"Duration of database queries in seconds")
		m.DbQueryErrorsTotal = int64Counter(meter, "db_query_errors_total",
			"Total number of database query errors", "{error}")

		var err error
		m.CorpusEvents, err = meter.Int64Gauge("corpus_events",
			metric.WithDescription("Number of searchable events in the in-memory corpus"),
			metric.WithUnit("{event}"))
		if err != nil {
			log.Fatalf("Metrics: Failed to create corpus_events: %v", err)
		}

		appMetrics = m
	})
}

func int64Counter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return c
}

func float64Histogram(meter metric.Meter, name, desc string) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return h
}

// Get returns the application instruments. If InitAppMetrics has not run yet
// the instruments are bound to whatever global provider is installed, which
// is a no-op provider in tests and CLI commands.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
