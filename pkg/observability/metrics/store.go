package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// StoreMetricPrefix prefixes every metric name created by NewStoreMetrics.
const StoreMetricPrefix = "querykit_store_"

// IsStoreMetric reports whether name belongs to the store collectors.
func IsStoreMetric(name string) bool {
	return strings.HasPrefix(name, StoreMetricPrefix)
}

// StoreMetrics records latency and outcome of document store operations.
// Labels: collection, operation, status.
type StoreMetrics struct {
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
}

// NewStoreMetrics creates store collectors and registers them on reg.
func NewStoreMetrics(reg *Registry) (*StoreMetrics, error) {
	m := &StoreMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "querykit",
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of document store operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collection", "operation", "status"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "querykit",
				Name:      "store_operations_total",
				Help:      "Total number of document store operations",
			},
			[]string{"collection", "operation", "status"},
		),
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}
	if err := reg.Register(m.operations); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe records one operation that started at start and finished with err.
// A nil receiver is a no-op.
func (m *StoreMetrics) Observe(collection, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.duration.WithLabelValues(collection, operation, status).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(collection, operation, status).Inc()
}
