package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concept_graph_system_memory_bytes",
		Help: "Current system memory usage",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concept_graph_system_goroutines",
		Help: "Number of goroutines",
	})

	// Pipeline metrics
	PipelineInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concept_graph_uploads_in_flight",
		Help: "Number of uploads currently being processed",
	})

	DocumentProcessingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_document_processing_errors_total",
			Help: "Total number of document processing errors",
		},
		[]string{"stage", "error_type"},
	)

	ExtractedNodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concept_graph_extracted_nodes_total",
		Help: "Total number of candidate nodes produced by extraction",
	})

	// Graph metrics
	SimilarityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concept_graph_similarity_duration_seconds",
			Help:    "Time spent computing a batch similarity matrix",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	EdgesSelected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concept_graph_edges_selected_total",
		Help: "Total number of node pairs accepted by the similarity band",
	})

	ReconciledNodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_reconciled_nodes_total",
			Help: "Nodes handled by the reconciler, by outcome",
		},
		[]string{"outcome"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_cache_hits_total",
			Help: "Number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_cache_misses_total",
			Help: "Number of cache misses",
		},
		[]string{"cache_type"},
	)
)

// UpdateSystemMetrics updates system-level metrics
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SystemMemoryUsage.Set(float64(m.Alloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}
