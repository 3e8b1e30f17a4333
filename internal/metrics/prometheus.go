// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the review quality service.
var (
	// Counters.
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_enqueued_total",
			Help: "Total number of analysis jobs enqueued",
		},
		[]string{"job_type"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_processed_total",
			Help: "Total number of analysis jobs processed",
		},
		[]string{"job_type", "status"},
	)

	JobRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_job_retries_total",
			Help: "Total number of analysis job retries scheduled",
		},
		[]string{"job_type"},
	)

	ReportsScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_reports_scored_total",
			Help: "Total number of quality reports scored",
		},
		[]string{"status"},
	)

	ReportsFlaggedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_reports_flagged_total",
			Help: "Total number of quality reports flagged for human review",
		},
		[]string{"flag"},
	)

	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total notifications attempted per channel and outcome",
		},
		[]string{"channel", "status"},
	)

	RemindersFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_reminders_fired_total",
			Help: "Total invitation reminders fired or suppressed",
		},
		[]string{"outcome"},
	)

	// Gauges.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analysis_queue_depth",
			Help: "Current number of jobs by status",
		},
		[]string{"status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of the last run per scheduled job",
		},
		[]string{"job"},
	)

	// Histograms.
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_job_duration_seconds",
			Help:    "Time taken to process an analysis job",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"job_type"},
	)

	QualityScoreObserved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quality_score_observed",
			Help:    "Distribution of computed quality scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		},
	)
)

// RecordJobEnqueued increments the enqueue counter.
func RecordJobEnqueued(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

// RecordJobProcessed increments the processed counter for an outcome.
func RecordJobProcessed(jobType, status string) {
	JobsProcessedTotal.WithLabelValues(jobType, status).Inc()
}

// RecordJobRetry increments the retry counter.
func RecordJobRetry(jobType string) {
	JobRetriesTotal.WithLabelValues(jobType).Inc()
}

// ObserveJobDuration records how long a job took to process.
func ObserveJobDuration(jobType string, seconds float64) {
	JobDurationSeconds.WithLabelValues(jobType).Observe(seconds)
}

// RecordReportScored increments the scored-report counter.
func RecordReportScored(status string) {
	ReportsScoredTotal.WithLabelValues(status).Inc()
}

// RecordReportFlagged increments the flagged-report counter.
func RecordReportFlagged(flag string) {
	ReportsFlaggedTotal.WithLabelValues(flag).Inc()
}

// ObserveQualityScore records a computed quality score.
func ObserveQualityScore(score float64) {
	QualityScoreObserved.Observe(score)
}

// RecordNotificationSent increments the per-channel notification counter.
func RecordNotificationSent(channel, status string) {
	NotificationsSentTotal.WithLabelValues(channel, status).Inc()
}

// RecordReminderFired increments the reminder counter for an outcome.
func RecordReminderFired(outcome string) {
	RemindersFiredTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth updates the queue depth gauge for a status.
func SetQueueDepth(status string, depth int) {
	QueueDepth.WithLabelValues(status).Set(float64(depth))
}

// SetSchedulerLastRun updates the last-run timestamp for a scheduled job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).Set(float64(time.Now().Unix()))
}
