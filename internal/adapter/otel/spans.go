package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "reviewmesh"

// StartRunSpan starts a span covering one review run.
func StartRunSpan(ctx context.Context, runID, branch, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "review.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.branch", branch),
			attribute.String("run.event_type", eventType),
		),
	)
}
