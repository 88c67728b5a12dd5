package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	OperationsTotal        *prometheus.CounterVec
	OperationDuration      *prometheus.HistogramVec
	UpstreamErrors         *prometheus.CounterVec
	PendingReconciliations *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_operations_total",
				Help: "Total number of shipment operations by operation, carrier, and status",
			},
			[]string{"operation", "carrier", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_operation_duration_seconds",
				Help:    "Shipment operation duration in seconds by operation and carrier",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "carrier"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_upstream_errors_total",
				Help: "Total carrier and platform errors by system and error kind",
			},
			[]string{"system", "kind"},
		),
		PendingReconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_pending_reconciliations_total",
				Help: "Operations that left platform state needing manual reconciliation",
			},
			[]string{"operation"},
		),
	}
}

// ObserveOperation records an operation outcome and its duration.
func (m *Metrics) ObserveOperation(operation, carrier, status string, d time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, carrier, status).Inc()
	m.OperationDuration.WithLabelValues(operation, carrier).Observe(d.Seconds())
}

// UpstreamError records a carrier or platform error.
func (m *Metrics) UpstreamError(system, kind string) {
	m.UpstreamErrors.WithLabelValues(system, kind).Inc()
}

// PendingReconciliation records an operation that finished with platform
// fulfillments still to be cancelled.
func (m *Metrics) PendingReconciliation(operation string) {
	m.PendingReconciliations.WithLabelValues(operation).Inc()
}
