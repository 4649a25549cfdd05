package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Whole pipeline runs, labelled by result (ok, failed) and mode (live, simulate).
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ganttmailer_run_duration_seconds",
			Help:    "Duration of a mailing run in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
		},
		[]string{"result", "mode"},
	)

	// Final state reached by each account.
	AccountOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ganttmailer_account_outcomes_total",
			Help: "Total number of accounts processed, by final state",
		},
		[]string{"outcome"},
	)

	// PDF export latency
	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ganttmailer_export_duration_seconds",
			Help:    "TeamGantt PDF export duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		},
		[]string{"status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func RecordRun(result, mode string, duration time.Duration) {
	RunDuration.WithLabelValues(result, mode).Observe(duration.Seconds())
}

func IncrementAccountOutcome(outcome string) {
	AccountOutcomeCount.WithLabelValues(outcome).Inc()
}

func RecordExport(status string, duration time.Duration) {
	ExportDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
