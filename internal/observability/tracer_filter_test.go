package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
)

func newTestProvider() (*tracetest.InMemoryExporter, trace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return exporter, tp
}

func TestFilteringProvider_SuppressedTracer(t *testing.T) {
	t.Parallel()

	exporter, base := newTestProvider()
	fp := observability.NewFilteringTracerProvider(base)

	_, span := fp.Tracer("estrela.lsp").Start(context.Background(), "estrela.lsp.didChange")
	span.End()

	assert.Empty(t, exporter.GetSpans())
}

func TestFilteringProvider_SuppressedSpan(t *testing.T) {
	t.Parallel()

	exporter, base := newTestProvider()
	tracer := observability.NewFilteringTracerProvider(base).Tracer("estrela.build")

	_, build := tracer.Start(context.Background(), "estrela.build.run")
	build.End()

	_, event := tracer.Start(context.Background(), "estrela.build.watch.event")
	event.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "estrela.build.run", spans[0].Name)
}

func TestFilteringProvider_CompilerSpansPass(t *testing.T) {
	t.Parallel()

	exporter, base := newTestProvider()

	_, span := observability.NewFilteringTracerProvider(base).Tracer("estrela.compiler").
		Start(context.Background(), "estrela.compile")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "estrela.compile", spans[0].Name)
}

func TestFilteringProvider_NoopSpanIsValid(t *testing.T) {
	t.Parallel()

	fp := observability.NewFilteringTracerProvider(nooptrace.NewTracerProvider())

	ctx, span := fp.Tracer("estrela.lsp").Start(context.Background(), "estrela.lsp.hover")
	span.SetName("renamed")
	span.End()

	assert.NotNil(t, ctx)
}
