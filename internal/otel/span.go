// Package otel provides OpenTelemetry instrumentation utilities for the roster sync server.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by the sync, webhook and registration spans
const (
	AttrJob            = attribute.Key("sync.job")
	AttrTrigger        = attribute.Key("sync.trigger")
	AttrTeamName       = attribute.Key("team.name")
	AttrExternalTeamID = attribute.Key("team.external_id")
	AttrLocalTeamID    = attribute.Key("team.local_id")
	AttrWebhookEvent   = attribute.Key("webhook.event")
	AttrResultCount    = attribute.Key("result.count")
)

// StartSpan starts a child span on tracer. With a nil tracer it returns ctx unchanged
// together with whatever span ctx already carries.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError adds err as an exception event and marks the span failed. The status
// description stays generic; store and client errors can carry SQL or credentials.
// Nil span or nil err is a no-op.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
