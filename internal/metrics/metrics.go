// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sincro_cache_lookups_total",
			Help: "Spreadsheet snapshot cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sincro_upstream_requests_total",
			Help: "Upstream document store reads by outcome",
		},
		[]string{"outcome"}, // ok, error, retried
	)

	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sincro_rate_limit_waits_total",
			Help: "Upstream rate limiter decisions",
		},
		[]string{"decision"}, // permitted, deferred, exhausted
	)

	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sincro_rows_processed_total",
			Help: "Generation rows processed by outcome",
		},
		[]string{"outcome"}, // ok, failed
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sincro_jobs_finished_total",
			Help: "Generation jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	JobInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sincro_job_invocation_duration_seconds",
			Help:    "Wall-clock time of one runner invocation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	SyncTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sincro_sync_triggers_total",
			Help: "Per-configuration outcomes of source-changed triggers",
		},
		[]string{"source", "result"}, // source: webhook, schedule
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sincro_notifications_total",
			Help: "Job notifications sent per channel kind",
		},
		[]string{"channel", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sincro_http_requests_total",
			Help: "HTTP requests by method and status code",
		},
		[]string{"method", "status"},
	)
)
