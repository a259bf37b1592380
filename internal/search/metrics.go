package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexingDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_indexing_resources_dispatched_total",
		Help: "Resources handed to indexing workers",
	}, []string{"index"})

	indexingReturned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_indexing_resources_returned_total",
		Help: "Indexing workers that returned",
	}, []string{"index"})

	indexingAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_indexing_resources_abandoned_total",
		Help: "Indexing workers abandoned after the timeout",
	}, []string{"index"})

	indexingSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_indexing_resources_skipped_total",
		Help: "Resources skipped for lack of a matching document factory",
	}, []string{"index"})

	indexingFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_indexing_resources_failed_total",
		Help: "Resources whose document could not be built or written",
	}, []string{"index"})

	indexUpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lumen_index_update_duration_seconds",
		Help:    "Duration of index rebuilds and incremental updates",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"index", "mode"})

	searchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_search_requests_total",
		Help: "Searches executed against an index",
	}, []string{"index", "status"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lumen_search_duration_seconds",
		Help:    "Search latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"index"})

	resultCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumen_result_cache_hits_total",
		Help: "Searches answered from the result cache",
	})

	resultCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumen_result_cache_misses_total",
		Help: "Searches not found in the result cache",
	})

	resultCachePurges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumen_result_cache_purges_total",
		Help: "Result cache purges",
	})
)
