package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkboard_links_created_total",
		Help: "Total number of tracking links created",
	})

	LinkCreateFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkboard_link_create_failures_total",
		Help: "Total number of tracking link creations that failed",
	})

	BatchTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkboard_batch_tasks_total",
		Help: "Total number of batch tasks attempted, by outcome",
	}, []string{"outcome"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkboard_batch_duration_seconds",
		Help:    "Time taken to run a bulk batch in seconds",
		Buckets: prometheus.DefBuckets,
	})

	ActiveBatchWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkboard_active_batch_workers",
		Help: "Current number of running batch workers",
	})

	ReportPollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkboard_report_poll_attempts",
		Help:    "Number of status requests issued per report poll",
		Buckets: []float64{1, 2, 3, 5, 10, 15, 20},
	})

	ReportCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkboard_report_cache_hits_total",
		Help: "Total number of report summaries served from cache",
	})

	ReportCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkboard_report_cache_misses_total",
		Help: "Total number of report summaries fetched from Airbridge",
	})

	MartsSyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkboard_marts_synced_total",
		Help: "Total number of mart rows upserted from the spreadsheet",
	})
)

var (
	AsyncBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkboard_async_batches_total",
		Help: "Total number of queued bulk batches processed by the worker, by status",
	}, []string{"status"})

	ActiveQueueWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkboard_active_queue_workers",
		Help: "Current number of workers consuming queued bulk batches",
	})
)
