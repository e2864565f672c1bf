package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Classification metrics
	ClassificationRequests prometheus.Counter
	ClassificationLatency  prometheus.Histogram
	ClassificationErrors   *prometheus.CounterVec
	SkippedRecords         prometheus.Counter

	// Lifecycle metrics
	ProposalsTotal      *prometheus.CounterVec
	ActivationsTotal    *prometheus.CounterVec
	ActivationConflicts prometheus.Counter
	MirrorRepairs       prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		ClassificationRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxotree_classification_requests_total",
			Help: "Total number of conversations submitted for classification",
		}),

		ClassificationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxotree_classification_duration_seconds",
			Help:    "Classification latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, // model round trips can be slow
		}),

		ClassificationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taxotree_classification_errors_total",
			Help: "Total number of classification errors by type",
		}, []string{"error_type"}),

		SkippedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxotree_aggregation_skipped_records_total",
			Help: "Records excluded from hierarchy aggregation for missing a subcategory",
		}),

		ProposalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taxotree_hierarchy_proposals_total",
			Help: "Total number of hierarchy versions proposed, by tenant",
		}, []string{"tenant"}),

		ActivationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taxotree_hierarchy_activations_total",
			Help: "Total number of hierarchy version activations, by tenant",
		}, []string{"tenant"}),

		ActivationConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxotree_hierarchy_activation_conflicts_total",
			Help: "Activations rejected because another activation won the race",
		}),

		MirrorRepairs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxotree_mirror_repairs_total",
			Help: "Active hierarchy mirror documents rewritten by the reconciler",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordClassification records one classification attempt.
func (m *Metrics) RecordClassification(seconds float64) {
	m.ClassificationRequests.Inc()
	m.ClassificationLatency.Observe(seconds)
}

// RecordClassificationError records a classification failure by type.
func (m *Metrics) RecordClassificationError(errorType string) {
	m.ClassificationErrors.WithLabelValues(errorType).Inc()
}

// RecordProposal records a proposed hierarchy version.
func (m *Metrics) RecordProposal(tenant string, skipped int) {
	m.ProposalsTotal.WithLabelValues(tenant).Inc()
	m.SkippedRecords.Add(float64(skipped))
}

// RecordActivation records a successful activation.
func (m *Metrics) RecordActivation(tenant string) {
	m.ActivationsTotal.WithLabelValues(tenant).Inc()
}

// RecordActivationConflict records a lost activation race.
func (m *Metrics) RecordActivationConflict() {
	m.ActivationConflicts.Inc()
}

// RecordMirrorRepair records one reconciler repair.
func (m *Metrics) RecordMirrorRepair() {
	m.MirrorRepairs.Inc()
}
