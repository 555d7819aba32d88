package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesTotal       = "estrela.compile.files.total"
	metricSourceBytes      = "estrela.compile.source.bytes"
	metricOutputBytes      = "estrela.compile.output.bytes"
	metricWarningsTotal    = "estrela.compile.warnings.total"
	metricCacheHitsTotal   = "estrela.cache.hits.total"
	metricCacheMissesTotal = "estrela.cache.misses.total"

	attrShape = "shape"
)

// CompileMetrics counts compiled files, their sizes and cache behavior.
type CompileMetrics struct {
	filesTotal    metric.Int64Counter
	sourceBytes   metric.Int64Counter
	outputBytes   metric.Int64Counter
	warningsTotal metric.Int64Counter
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
}

// CompileStats describes one compiled file.
type CompileStats struct {
	Shape       string
	SourceBytes int
	OutputBytes int
	Warnings    int
	Cached      bool
}

// NewCompileMetrics creates compile instruments from the given meter.
func NewCompileMetrics(mt metric.Meter) (*CompileMetrics, error) {
	b := newMetricBuilder(mt)

	cm := &CompileMetrics{
		filesTotal:    b.counter(metricFilesTotal, "Component files compiled", "{file}"),
		sourceBytes:   b.counter(metricSourceBytes, "Component source bytes read", "By"),
		outputBytes:   b.counter(metricOutputBytes, "JavaScript bytes generated", "By"),
		warningsTotal: b.counter(metricWarningsTotal, "Compile warnings reported", "{warning}"),
		cacheHits:     b.counter(metricCacheHitsTotal, "Compile cache hits", "{hit}"),
		cacheMisses:   b.counter(metricCacheMissesTotal, "Compile cache misses", "{miss}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return cm, nil
}

// RecordFile records one compiled file. Safe on a nil receiver.
func (cm *CompileMetrics) RecordFile(ctx context.Context, stats CompileStats) {
	if cm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrShape, stats.Shape))

	cm.filesTotal.Add(ctx, 1, attrs)
	cm.sourceBytes.Add(ctx, int64(stats.SourceBytes))
	cm.outputBytes.Add(ctx, int64(stats.OutputBytes))
	cm.warningsTotal.Add(ctx, int64(stats.Warnings))

	if stats.Cached {
		cm.cacheHits.Add(ctx, 1)
	} else {
		cm.cacheMisses.Add(ctx, 1)
	}
}
