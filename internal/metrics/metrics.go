// Package metrics exposes prometheus instrumentation for the inspection
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service collectors. Construct it once per registry.
type Metrics struct {
	// Operations counts registry operations by operation and result code.
	Operations *prometheus.CounterVec
	// OperationDuration tracks registry operation latency.
	OperationDuration *prometheus.HistogramVec
	// Submissions counts criterion results by outcome.
	Submissions *prometheus.CounterVec
	// StatusTransitions counts overall status changes.
	StatusTransitions *prometheus.CounterVec
	// QualityScore observes scores of inspections that reach a terminal status.
	QualityScore prometheus.Histogram
	// DispatchQueueDepth reports events waiting for publication.
	DispatchQueueDepth prometheus.Gauge
	// DispatchDropped counts events dropped because the queue was full.
	DispatchDropped prometheus.Counter
	// DispatchFailures counts publish errors.
	DispatchFailures prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qc_inspection_operations_total",
			Help: "Registry operations by operation and result",
		}, []string{"operation", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qc_inspection_operation_duration_seconds",
			Help:    "Registry operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"operation"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qc_criterion_submissions_total",
			Help: "Criterion results recorded by outcome",
		}, []string{"outcome"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qc_inspection_status_transitions_total",
			Help: "Overall status transitions by target status",
		}, []string{"status"}),
		QualityScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "qc_inspection_quality_score",
			Help:    "Quality score of inspections reaching a terminal status",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		DispatchQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "qc_event_dispatch_queue_depth",
			Help: "Events waiting to be published",
		}),
		DispatchDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "qc_event_dispatch_dropped_total",
			Help: "Events dropped because the dispatch queue was full",
		}),
		DispatchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "qc_event_dispatch_failures_total",
			Help: "Events that failed to publish",
		}),
	}
}
