// Package metrics exposes the process-wide Prometheus collectors used by
// every binary in this module: job throughput counters for
// engine/orchestrator and engine/retry, phase-duration and search-latency
// histograms, and gauges for queue depth and DLQ size.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PhaseBuckets covers the ingest pipeline's phase durations, which range
// from sub-second chunking to multi-minute transcription.
var PhaseBuckets = []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60, 120, 300, 600}

// SearchBuckets covers §4.5's query-latency range.
var SearchBuckets = prometheus.DefBuckets

var (
	// JobsProcessedTotal counts jobs that reached a terminal success state,
	// labeled by the pipeline phase that last handled them.
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasearch_jobs_processed_total",
			Help: "Total jobs that completed a pipeline phase successfully",
		},
		[]string{"phase"},
	)

	// JobsFailedTotal counts jobs that failed a phase, labeled by phase and
	// the domain.ErrorKind that classified the failure.
	JobsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasearch_jobs_failed_total",
			Help: "Total jobs that failed a pipeline phase",
		},
		[]string{"phase", "error_kind"},
	)

	// JobsRetriedTotal counts retry attempts issued by engine/retry.
	JobsRetriedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasearch_jobs_retried_total",
			Help: "Total retry attempts issued for a job",
		},
		[]string{"phase"},
	)

	// JobsQuarantinedTotal counts jobs moved to the DLQ.
	JobsQuarantinedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasearch_jobs_quarantined_total",
			Help: "Total jobs moved to the dead-letter queue",
		},
		[]string{"phase"},
	)

	// PhaseDuration measures how long each pipeline phase takes.
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediasearch_phase_duration_seconds",
			Help:    "Duration of a single pipeline phase",
			Buckets: PhaseBuckets,
		},
		[]string{"phase"},
	)

	// SearchDuration measures §4.5 query latency by search mode.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediasearch_search_duration_seconds",
			Help:    "Duration of a search request",
			Buckets: SearchBuckets,
		},
		[]string{"mode"},
	)

	// SearchRequestsTotal counts search requests by mode and outcome.
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasearch_search_requests_total",
			Help: "Total search requests",
		},
		[]string{"mode", "outcome"},
	)

	// QueueDepth tracks the number of jobs waiting in a queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediasearch_queue_depth",
			Help: "Current number of jobs queued",
		},
		[]string{"queue"},
	)

	// DLQSize tracks the number of items currently quarantined.
	DLQSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediasearch_dlq_size",
			Help: "Current number of items in the dead-letter queue",
		},
	)
)

// Handler returns the standard Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
