// Package metrics provides performance tracking for tsbridge using
// Prometheus metrics. It offers collectors for operation throughput,
// latency, and failure rates across the backend variants.
//
// # Basic Usage
//
//	// Record a completed operation
//	metrics.OperationsTotal.WithLabelValues("execute_query", "core", "success").Inc()
//
//	// Track operation latency
//	timer := metrics.NewTimer()
//	rows, err := dispatcher.ExecuteQuery(ctx, q, db, opts)
//	metrics.OperationLatency.WithLabelValues("execute_query", "core").Observe(timer.Stop().Seconds())
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., operations performed)
// Histogram: Distribution of values (e.g., latency percentiles)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts dispatcher operations by outcome.
	// Labels: operation (execute_query, write_line_protocol, ...),
	// variant (core, enterprise, cloud-dedicated), status (success/failure)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsbridge_operations_total",
			Help: "Total number of dispatcher operations",
		},
		[]string{"operation", "variant", "status"},
	)

	// OperationLatency tracks the distribution of operation latencies in seconds.
	// Labels: operation, variant
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tsbridge_operation_latency_seconds",
			Help:    "Dispatcher operation latency distribution",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"operation", "variant"},
	)

	// OperationFailures counts failures by taxonomy kind.
	// Labels: operation, variant, kind (not_found, conflict, transport, ...)
	OperationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsbridge_operation_failures_total",
			Help: "Dispatcher operation failures by error kind",
		},
		[]string{"operation", "variant", "kind"},
	)

	// HTTPRequestsTotal counts backend HTTP requests.
	// Labels: method, host, status (success/failure)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsbridge_http_requests_total",
			Help: "Total number of backend HTTP requests",
		},
		[]string{"method", "host", "status"},
	)
)

// Timer measures elapsed time for latency observations.
type Timer struct {
	start time.Time
}

// NewTimer creates a started timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer was created.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// RecordOperation records the outcome and latency of a dispatcher operation
// in one call. kind is empty on success.
func RecordOperation(operation, variant string, d time.Duration, kind string) {
	status := "success"
	if kind != "" {
		status = "failure"
		OperationFailures.WithLabelValues(operation, variant, kind).Inc()
	}
	OperationsTotal.WithLabelValues(operation, variant, status).Inc()
	OperationLatency.WithLabelValues(operation, variant).Observe(d.Seconds())
}
