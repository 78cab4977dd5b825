package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracklens_ingest_requests_total",
		Help: "Total track requests received, labelled by outcome.",
	}, []string{"status"})

	JobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracklens_jobs_processed_total",
		Help: "Total tracking jobs completed successfully.",
	})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracklens_jobs_failed_total",
		Help: "Total tracking jobs that failed, labelled by pipeline stage.",
	}, []string{"stage"})

	ClassificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracklens_classification_duration_seconds",
		Help:    "Latency of the language-model classification call.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	})

	TaxonomyEntriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracklens_taxonomy_entries_created_total",
		Help: "Taxonomy rows created from model proposals, labelled by kind.",
	}, []string{"kind"})

	InteractionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracklens_interactions_recorded_total",
		Help: "Total interactions durably persisted.",
	})
)
