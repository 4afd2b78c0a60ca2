// Package metrics exposes the Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LyricsCacheHits counts cache lookups by result: hit, negative_hit, miss.
	LyricsCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hymnsift_lyrics_cache_lookups_total",
		Help: "Lyrics cache lookups by result.",
	}, []string{"result"})

	// LyricsProviderRequests counts provider calls by provider and outcome:
	// success, miss, error.
	LyricsProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hymnsift_lyrics_provider_requests_total",
		Help: "Lyrics provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	// QueuePending tracks the number of queued jobs per priority class.
	QueuePending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hymnsift_queue_pending_jobs",
		Help: "Pending jobs in the priority queue per priority class.",
	}, []string{"priority"})

	// JobsFinalized counts worker job outcomes by job type and status.
	JobsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hymnsift_jobs_finalized_total",
		Help: "Jobs finalized by the worker, by type and terminal status.",
	}, []string{"job_type", "status"})

	// JobDuration observes wall-clock job durations per job type.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hymnsift_job_duration_seconds",
		Help:    "Wall-clock duration of processed jobs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"job_type"})

	// QualityGrades counts quality-gate outcomes.
	QualityGrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hymnsift_quality_grades_total",
		Help: "Quality validator grades per analyzer result.",
	}, []string{"grade"})
)
