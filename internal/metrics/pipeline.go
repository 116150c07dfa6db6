package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search, vector cache and aggregation metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdex",
			Name:      "search_requests_total",
			Help:      "Search requests by outcome",
		},
		[]string{"outcome"}, // cached / ranked / browse / empty / rejected / error
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsdex",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	SearchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "newsdex",
			Name:      "search_candidates",
			Help:      "Candidates returned by storage per ranked search",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdex",
			Name:      "vector_cache_lookups_total",
			Help:      "Vector cache lookups by result",
		},
		[]string{"result"}, // hit / miss / error
	)

	CacheStoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdex",
			Name:      "vector_cache_stores_total",
			Help:      "Vector cache stores by action",
		},
		[]string{"action"}, // insert / replace / skipped
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsdex",
			Name:      "vector_cache_evictions_total",
			Help:      "Expired vector cache entries removed",
		},
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "newsdex",
			Name:      "vector_cache_entries",
			Help:      "Live vector cache entries",
		},
	)

	AggregatedDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdex",
			Name:      "aggregated_documents_total",
			Help:      "Aggregated documents by outcome",
		},
		[]string{"outcome"}, // created / updated / failed
	)

	RectifiedEntitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdex",
			Name:      "rectified_entities_total",
			Help:      "Entities kept or dropped by rectification",
		},
		[]string{"result"}, // kept / dropped
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers search, cache and aggregation metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchCandidates)
	prometheus.MustRegister(CacheLookupsTotal)
	prometheus.MustRegister(CacheStoresTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(AggregatedDocumentsTotal)
	prometheus.MustRegister(RectifiedEntitiesTotal)
	pipelineMetricsRegistered = true
}
