// Package metrics exposes prometheus metrics of the store. A nil
// [*Collector] records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation statuses.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Collector holds the metrics of one store.
type Collector struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	TTLExpiredTotal    *prometheus.CounterVec
	CursorBatchesTotal prometheus.Counter
}

// NewCollector creates the metrics of a store under namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of store operations",
			},
			[]string{"collection", "op", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Store operation duration in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"collection", "op"},
		),
		TTLExpiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ttl_expired_documents_total",
				Help:      "Total documents deleted by the TTL sweeper",
			},
			[]string{"collection"},
		),
		CursorBatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cursor_batches_total",
				Help:      "Total batches fetched by cursors",
			},
		),
	}
}

// Register registers every metric on reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, m := range []prometheus.Collector{
		c.OperationsTotal,
		c.OperationDuration,
		c.TTLExpiredTotal,
		c.CursorBatchesTotal,
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// ObserveOperation records one operation started at start.
func (c *Collector) ObserveOperation(collection, op, status string, start time.Time) {
	if c == nil {
		return
	}
	c.OperationsTotal.WithLabelValues(collection, op, status).Inc()
	c.OperationDuration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
}

// TTLExpired records n documents deleted from collection by a sweep.
func (c *Collector) TTLExpired(collection string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.TTLExpiredTotal.WithLabelValues(collection).Add(float64(n))
}

// CursorBatch records one batch fetched by a cursor.
func (c *Collector) CursorBatch() {
	if c == nil {
		return
	}
	c.CursorBatchesTotal.Inc()
}
