package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error classification values for the error.type span attribute.
const (
	ErrTypeValidation  = "validation"
	ErrTypeCompile     = "compile"
	ErrTypeIO          = "io"
	ErrTypePanic       = "panic"
	ErrTypeUnavailable = "unavailable"
)

// Error origin values for the error.source span attribute.
const (
	ErrSourceClient   = "client"
	ErrSourceServer   = "server"
	ErrSourceCompiler = "compiler"
)

// RecordSpanError marks span as failed and classifies the error. An empty
// source leaves error.source unset.
func RecordSpanError(span trace.Span, err error, errType, source string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attrs := []attribute.KeyValue{attribute.String("error.type", errType)}
	if source != "" {
		attrs = append(attrs, attribute.String("error.source", source))
	}

	span.SetAttributes(attrs...)
}
