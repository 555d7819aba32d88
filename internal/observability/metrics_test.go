package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
)

func newTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() { require.NoError(t, mp.Shutdown(context.Background())) })

	return mp, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64] data")

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	mp, reader := newTestMeter(t)
	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "transform", observability.StatusOK, 3*time.Millisecond)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "estrela.requests.total")))
	require.NotNil(t, findMetric(rm, "estrela.request.duration.seconds"))
	assert.Nil(t, findMetric(rm, "estrela.errors.total"))
}

func TestREDMetrics_RecordRequestError(t *testing.T) {
	t.Parallel()

	mp, reader := newTestMeter(t)
	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "transform", observability.StatusError, time.Millisecond)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "estrela.errors.total")))
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	mp, reader := newTestMeter(t)
	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	done := red.TrackInflight(context.Background(), "compile")
	assert.Equal(t, int64(1), sumOf(t, findMetric(collectMetrics(t, reader), "estrela.inflight.requests")))

	done()
	assert.Equal(t, int64(0), sumOf(t, findMetric(collectMetrics(t, reader), "estrela.inflight.requests")))
}

func TestREDMetrics_HistogramBuckets(t *testing.T) {
	t.Parallel()

	mp, reader := newTestMeter(t)
	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "compile", observability.StatusOK, time.Millisecond)

	m := findMetric(collectMetrics(t, reader), "estrela.request.duration.seconds")
	require.NotNil(t, m)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.NotEmpty(t, hist.DataPoints)
	assert.InDelta(t, 0.0001, hist.DataPoints[0].Bounds[0], 1e-12)
}

func TestCompileMetrics_RecordFile(t *testing.T) {
	t.Parallel()

	mp, reader := newTestMeter(t)
	cm, err := observability.NewCompileMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	cm.RecordFile(ctx, observability.CompileStats{Shape: "template", SourceBytes: 10, OutputBytes: 40, Warnings: 1})
	cm.RecordFile(ctx, observability.CompileStats{Shape: "template", SourceBytes: 10, OutputBytes: 40, Cached: true})

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "estrela.compile.files.total")))
	assert.Equal(t, int64(20), sumOf(t, findMetric(rm, "estrela.compile.source.bytes")))
	assert.Equal(t, int64(80), sumOf(t, findMetric(rm, "estrela.compile.output.bytes")))
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "estrela.compile.warnings.total")))
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "estrela.cache.hits.total")))
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "estrela.cache.misses.total")))
}

func TestCompileMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var cm *observability.CompileMetrics

	assert.NotPanics(t, func() {
		cm.RecordFile(context.Background(), observability.CompileStats{Shape: "script"})
	})
}
