// Package metrics exposes Prometheus collectors for run orchestration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testrun"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_started_total",
		Help:      "Count of accepted run requests",
	}, []string{
		"suite",
	})

	runsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_finished_total",
		Help:      "Count of runs that reached a terminal state",
	}, []string{
		"suite",
		"status",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of test runs",
		Buckets:   prometheus.ExponentialBuckets(15, 2, 10),
	}, []string{
		"suite",
	})

	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "start_conflicts_total",
		Help:      "Count of start requests rejected because a run was active",
	})

	artifactRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "artifact_rejections_total",
		Help:      "Count of artifact requests rejected as unsafe",
	}, []string{
		"reason",
	})

	staleRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stale_runs_total",
		Help:      "Count of non-terminal runs marked failed by the watchdog",
	}, []string{
		"reason",
	})
)

func RecordError(label string) {
	errorsTotal.WithLabelValues(label).Inc()
}

func RecordRunStarted(suite string) {
	runsStartedTotal.WithLabelValues(suite).Inc()
}

func RecordRunFinished(suite string, status string, duration time.Duration) {
	runsFinishedTotal.WithLabelValues(suite, status).Inc()
	if duration > 0 {
		runDuration.WithLabelValues(suite).Observe(duration.Seconds())
	}
}

func RecordConflict() {
	conflictsTotal.Inc()
}

func RecordArtifactRejection(reason string) {
	artifactRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordStaleRun(reason string) {
	staleRunsTotal.WithLabelValues(reason).Inc()
}
