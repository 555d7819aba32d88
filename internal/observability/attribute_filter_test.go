package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
)

func filteredAttributes(t *testing.T, logger *slog.Logger, attrs ...attribute.KeyValue) []attribute.KeyValue {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)),
	)

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	_, span := tp.Tracer("test").Start(context.Background(), "estrela.compile")
	span.SetAttributes(attrs...)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	return spans[0].Attributes
}

func TestAttributeFilter_AllowsKnownPrefixes(t *testing.T) {
	t.Parallel()

	got := filteredAttributes(t, nil,
		attribute.String("estrela.path", "a.estrela"),
		attribute.String("http.target", "/api/transform"),
		attribute.String("error.type", "compile"),
	)

	assert.Len(t, got, 3)
}

func TestAttributeFilter_DropsSourceAndUnknownKeys(t *testing.T) {
	t.Parallel()

	got := filteredAttributes(t, nil,
		attribute.String("estrela.path", "a.estrela"),
		attribute.String("estrela.source", "<div></div>"),
		attribute.String("user.email", "x@example.com"),
	)

	require.Len(t, got, 1)
	assert.Equal(t, "estrela.path", string(got[0].Key))
}

func TestAttributeFilter_WarnsWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	filteredAttributes(t, logger, attribute.String("request.body", "{}"))

	assert.Contains(t, buf.String(), "attribute blocked by filter")
	assert.Contains(t, buf.String(), "key=request.body")
}
