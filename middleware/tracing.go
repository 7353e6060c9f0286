package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for claim tracing.
const tracerName = "github.com/xraph/claim"

// Tracing returns middleware that wraps each run in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through.
//
// Span attributes: claim.kind, claim.id, claim.name, claim.worker_id,
// claim.attempt. On error, the span status is set to codes.Error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, it Item, next Handler) error {
		ctx, span := tracer.Start(ctx, "claim."+string(it.Kind)+".work",
			trace.WithAttributes(
				attribute.String("claim.kind", string(it.Kind)),
				attribute.String("claim.id", it.ID.String()),
				attribute.String("claim.name", it.Name),
				attribute.String("claim.worker_id", it.WorkerID),
				attribute.Int("claim.attempt", it.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
