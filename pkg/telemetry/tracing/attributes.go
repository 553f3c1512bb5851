package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. HTTP keys follow the OpenTelemetry semantic conventions;
// domain keys use the "warden." namespace.
const (
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"

	AttrRequestID = "warden.request_id"
	AttrSource    = "warden.source"
	AttrCost      = "warden.cost"
	AttrDecision  = "warden.decision"
	AttrLimit     = "warden.limit"
	AttrLoop      = "warden.loop"
)

// Decisions recorded under AttrDecision.
const (
	DecisionAllowed  = "allowed"
	DecisionRejected = "rejected"
)

// AnnotateDecision adds a governor admission decision to the span in ctx.
// limit is the rejecting limit type and is omitted when empty.
func AnnotateDecision(ctx context.Context, source, cost, decision, limit string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrSource, source),
		attribute.String(AttrCost, cost),
		attribute.String(AttrDecision, decision),
	}
	if limit != "" {
		attrs = append(attrs, attribute.String(AttrLimit, limit))
	}
	span.SetAttributes(attrs...)
}
