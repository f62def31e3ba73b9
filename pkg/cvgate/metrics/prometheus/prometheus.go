package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

// Metrics implements cvgate.Metrics using Prometheus.
type Metrics struct {
	admissionsTotal    *prometheus.CounterVec
	admissionDuration  *prometheus.HistogramVec
	editChecksTotal    *prometheus.CounterVec
	storageOpsDuration *prometheus.HistogramVec
	storageOpsErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		admissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_admissions_total",
			Help:      "Total number of metered-call admission decisions.",
		}, []string{"category", "plan", "allowed"}),

		admissionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_admission_duration_seconds",
			Help:      "Latency of call admission checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),

		editChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_edit_checks_total",
			Help:      "Total number of document-edit permission decisions.",
		}, []string{"plan", "allowed"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) RecordAdmission(category cvgate.Category, plan string, allowed bool) {
	m.admissionsTotal.WithLabelValues(string(category), plan, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) RecordAdmissionDuration(category cvgate.Category, duration time.Duration) {
	m.admissionDuration.WithLabelValues(string(category)).Observe(duration.Seconds())
}

func (m *Metrics) RecordEditCheck(plan string, allowed bool) {
	m.editChecksTotal.WithLabelValues(plan, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}
