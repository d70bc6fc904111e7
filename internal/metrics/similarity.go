package metrics

import "github.com/prometheus/client_golang/prometheus"

// Similarity lookup and vector store metrics.
var (
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_lookups_total",
			Help:      "Similarity lookups by outcome",
		},
		[]string{"outcome"}, // ok, invalid_query, invalid_argument, dimension_mismatch, provider_unavailable, ...
	)

	LookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similarity_stage_duration_seconds",
			Help:      "Duration of each similarity lookup stage",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"}, // embed, query, total
	)

	LookupResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similarity_results",
			Help:      "Number of documents returned per lookup",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	VectorQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vector_query_duration_seconds",
			Help:      "Nearest-neighbour query duration by backend",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"backend", "status"},
	)
)
