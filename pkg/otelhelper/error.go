package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed. attrs are attached to the recorded exception event.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// RecordOutcome closes the status of a job execution span.
func RecordOutcome(span trace.Span, output string, err error) {
	if err != nil {
		SetError(span, err)

		return
	}

	span.SetAttributes(attribute.Int(OutputSizeKey, len(output)))
	span.SetStatus(codes.Ok, "")
}
