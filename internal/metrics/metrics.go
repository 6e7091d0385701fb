// Package metrics exposes Prometheus metrics for sync pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all pipeline metrics.
	MetricsNamespace = "tribsync"

	// MetricsSubsystem is the subsystem for sync metrics.
	MetricsSubsystem = "sync"
)

// Metrics holds all Prometheus metrics for the sync pipeline.
type Metrics struct {
	// Run metrics
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds prometheus.Histogram
	RunsActive         prometheus.Gauge

	// Document metrics
	DocumentsFound     prometheus.Counter
	DocumentsProcessed prometheus.Counter
	DocumentsFailed    prometheus.Counter

	// Stage metrics
	PDFFetchFailures   prometheus.Counter
	SummariesGenerated prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
}

// New creates and registers all sync pipeline metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "runs_total",
				Help:      "Total number of sync runs by terminal status",
			},
			[]string{"status"},
		),
		RunDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of sync runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
			},
		),
		RunsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "runs_active",
				Help:      "Number of sync runs currently executing",
			},
		),
		DocumentsFound: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "documents_found_total",
				Help:      "Total number of new documents discovered past the watermark",
			},
		),
		DocumentsProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "documents_processed_total",
				Help:      "Total number of documents that completed the pipeline",
			},
		),
		DocumentsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "documents_failed_total",
				Help:      "Total number of documents that hit a stage error",
			},
		),
		PDFFetchFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "pdf_fetch_failures_total",
				Help:      "Total number of failed PDF retrievals",
			},
		),
		SummariesGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "summaries_generated_total",
				Help:      "Total number of AI summaries generated",
			},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "notifications_total",
				Help:      "Total number of notification attempts by delivery status",
			},
			[]string{"status"},
		),
	}
}

// RecordRun records a completed sync run.
func (m *Metrics) RecordRun(status string, durationSeconds float64) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(durationSeconds)
}

// RecordRunStarted increments the active run count.
func (m *Metrics) RecordRunStarted() {
	m.RunsActive.Inc()
}

// RecordRunFinished decrements the active run count.
func (m *Metrics) RecordRunFinished() {
	m.RunsActive.Dec()
}

// RecordDocuments records per-run document counts.
func (m *Metrics) RecordDocuments(found, processed, failed int) {
	m.DocumentsFound.Add(float64(found))
	m.DocumentsProcessed.Add(float64(processed))
	m.DocumentsFailed.Add(float64(failed))
}

// RecordPDFFetchFailure records a failed PDF retrieval.
func (m *Metrics) RecordPDFFetchFailure() {
	m.PDFFetchFailures.Inc()
}

// RecordSummary records a generated summary.
func (m *Metrics) RecordSummary() {
	m.SummariesGenerated.Inc()
}

// RecordNotification records a notification attempt outcome.
func (m *Metrics) RecordNotification(status string) {
	m.NotificationsTotal.WithLabelValues(status).Inc()
}
