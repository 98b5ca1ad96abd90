package vectorstore

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for an index. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	partitions    *prometheus.GaugeVec
	vectors       *prometheus.GaugeVec
	queryDuration *prometheus.HistogramVec
	queryHits     *prometheus.HistogramVec
	operations    *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// NewMetrics creates index collectors and registers them with reg. A nil
// reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: backend
		partitions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ragserve",
			Subsystem: "index",
			Name:      "partitions",
			Help:      "Number of tag partitions",
		}, []string{"backend"}),

		// Labels: backend
		vectors: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ragserve",
			Subsystem: "index",
			Name:      "vectors",
			Help:      "Number of stored vectors across all partitions",
		}, []string{"backend"}),

		// Labels: backend
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragserve",
			Subsystem: "index",
			Name:      "query_duration_seconds",
			Help:      "Duration of multi-tag index queries in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"backend"}),

		// Labels: backend
		queryHits: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragserve",
			Subsystem: "index",
			Name:      "query_hits",
			Help:      "Number of hits returned per query",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"backend"}),

		// Labels: backend, operation (upsert, remove, query)
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "index",
			Name:      "operations_total",
			Help:      "Total number of index operations",
		}, []string{"backend", "operation"}),

		// Labels: backend, operation, kind
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "index",
			Name:      "operation_errors_total",
			Help:      "Total number of failed index operations",
		}, []string{"backend", "operation", "kind"}),
	}
}

func (m *Metrics) observeOperation(backend, operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(backend, operation).Inc()
	if err != nil {
		m.errors.WithLabelValues(backend, operation, errorKind(err)).Inc()
	}
}

func (m *Metrics) observeQuery(backend string, start time.Time, hits int, err error) {
	if m == nil {
		return
	}
	m.observeOperation(backend, "query", err)
	if err != nil {
		return
	}
	m.queryDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	m.queryHits.WithLabelValues(backend).Observe(float64(hits))
}

func (m *Metrics) setSize(backend string, s Stats) {
	if m == nil {
		return
	}
	m.partitions.WithLabelValues(backend).Set(float64(s.Partitions))
	m.vectors.WithLabelValues(backend).Set(float64(s.Vectors))
}

func errorKind(err error) string {
	if errors.Is(err, ErrClosed) {
		return "closed"
	}
	return ragerr.KindOf(err).String()
}
