// Package telemetry provides small helpers for annotating OpenTelemetry
// spans from data-access code.
package telemetry

import (
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandleSpanError sets the status of the span to error and records the error.
// Nil spans and nil errors are ignored.
func HandleSpanError(span trace.Span, message string, err error) {
	if span == nil || err == nil {
		return
	}

	span.SetStatus(codes.Error, message+": "+err.Error())
	span.RecordError(err)
}

// AddSpanEvent adds an event with the given attributes to the span.
func AddSpanEvent(span trace.Span, eventName string, attributes ...attribute.KeyValue) {
	if span == nil {
		return
	}

	span.AddEvent(eventName, trace.WithAttributes(attributes...))
}

// SetSpanAttributeFromStruct marshals a value to JSON and sets it as a
// string attribute on the span.
func SetSpanAttributeFromStruct(span trace.Span, key string, value any) error {
	if span == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String(key, string(raw)))

	return nil
}
