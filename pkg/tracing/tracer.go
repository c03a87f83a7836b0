// Package tracing provides a shared OTel tracer helper for all domain packages.
//
// When no TracerProvider is registered (tests, local runs without OTel) the
// global no-op provider is used and every call is inert. Domain packages call
// tracing.Start rather than using the OTel API directly.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "subtickets"

// Start creates a new span as a child of the span in ctx. The caller must
// call span.End().
//
//	ctx, span := tracing.Start(ctx, "hierarchy.link",
//	    attribute.Int64("ticket.child_id", childID),
//	)
//	defer span.End()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it as errored. nil is a no-op.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
