package metrics

import "github.com/prometheus/client_golang/prometheus"

// Engine Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaseek",
			Name:      "search_requests_total",
			Help:      "Total search requests by routing path",
		},
		[]string{"path", "status"},
	)

	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "metaseek",
			Name:      "search_stage_duration_seconds",
			Help:      "Search stage duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaseek",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaseek",
			Name:      "embedding_cache_total",
			Help:      "Dual-embedding and query-embedding cache hits and misses",
		},
		[]string{"cache", "result"}, // cache: "dual" / "query"; result: "hit" / "miss"
	)

	GraphRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "metaseek",
			Name:      "graph_rebuild_duration_seconds",
			Help:      "Lineage graph rebuild duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	GraphNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "metaseek",
			Name:      "graph_nodes",
			Help:      "Node count of the current lineage graph snapshot",
		},
	)

	GraphEdges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "metaseek",
			Name:      "graph_edges",
			Help:      "Edge count of the current lineage graph snapshot",
		},
	)

	LearningInteractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaseek",
			Name:      "learning_interactions_total",
			Help:      "Recorded learning interactions by type",
		},
		[]string{"type"},
	)

	LearningUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaseek",
			Name:      "learning_updates_total",
			Help:      "Learning batch updates by trigger",
		},
		[]string{"trigger", "status"}, // trigger: "threshold" / "manual"
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers Prometheus engine metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchStageDuration)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(GraphRebuildDuration)
	prometheus.MustRegister(GraphNodes)
	prometheus.MustRegister(GraphEdges)
	prometheus.MustRegister(LearningInteractionsTotal)
	prometheus.MustRegister(LearningUpdatesTotal)
	engineMetricsRegistered = true
}
