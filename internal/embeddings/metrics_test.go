package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), logging.NewTestLogger().Logger)

	ctx := context.Background()
	m.RecordGeneration(ctx, "bge-small", "embed_documents", 100*time.Millisecond, 10, nil)
	m.RecordGeneration(ctx, "bge-small", "embed_queries", 50*time.Millisecond, 1, nil)
	m.RecordGeneration(ctx, "bge-small", "embed_documents", 25*time.Millisecond, 5, errors.New("boom"))

	got := collect(t, reader)

	duration, ok := got["ragserve.embedding.duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "duration histogram missing")
	var count uint64
	for _, dp := range duration.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
	assert.Len(t, duration.DataPoints, 2, "one point per operation")

	batch, ok := got["ragserve.embedding.batch_size"].Data.(metricdata.Histogram[int64])
	require.True(t, ok, "batch size histogram missing")
	var batches uint64
	for _, dp := range batch.DataPoints {
		batches += dp.Count
	}
	assert.Equal(t, uint64(3), batches)

	errs, ok := got["ragserve.embedding.errors_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "errors counter missing")
	var total int64
	for _, dp := range errs.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(1), total)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGeneration(context.Background(), "m", "op", time.Millisecond, 1, nil)
	})
}
