package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "quill"

// StartRunSpan opens the root span for a pipeline run.
func StartRunSpan(ctx context.Context, requestID, contentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("request.content_type", contentType),
		))
}

// StartStageSpan opens a child span for a single pipeline stage.
func StartStageSpan(ctx context.Context, requestID, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline.stage."+stage,
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("stage.name", stage),
		))
}
