package metrics

import "github.com/prometheus/client_golang/prometheus"

// Engine Prometheus metrics covering search, scoring, and ingestion.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relevar",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"mode", "status"},
	)

	SearchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relevar",
			Name:      "search_request_duration_seconds",
			Help:      "Search request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	SearchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relevar",
			Name:      "search_candidates",
			Help:      "Candidate set size after resolution",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	ScoreRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relevar",
			Name:      "score_requests_total",
			Help:      "Total number of contextual scoring requests",
		},
		[]string{"status"},
	)

	IngestItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relevar",
			Name:      "ingest_items_total",
			Help:      "Items processed by the ingestion path",
		},
		[]string{"outcome"}, // "indexed" / "failed" / "deleted"
	)

	UsageEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relevar",
			Name:      "usage_events_total",
			Help:      "Usage and relationship events recorded",
		},
		[]string{"kind"}, // "use" / "relationship"
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers engine metrics. Must be called once from
// main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchRequestDuration)
	prometheus.MustRegister(SearchCandidates)
	prometheus.MustRegister(ScoreRequestsTotal)
	prometheus.MustRegister(IngestItemsTotal)
	prometheus.MustRegister(UsageEventsTotal)
	engineMetricsRegistered = true
}
