package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for claim metrics.
const meterName = "github.com/xraph/claim"

// Metrics returns middleware that records per-run metrics using the global
// OTel MeterProvider. If no MeterProvider is configured, noop instruments
// are used and this middleware becomes a pass-through.
//
// Instruments:
//   - claim.work.duration (Float64Histogram): run time in seconds
//   - claim.work.runs (Int64Counter): total runs
//
// Both carry the attributes kind, name and outcome (see [Outcome]).
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"claim.work.duration",
		metric.WithDescription("Duration of work done under a claim in seconds"),
		metric.WithUnit("s"),
	)
	runs, _ := meter.Int64Counter(
		"claim.work.runs",
		metric.WithDescription("Total number of runs done under a claim"),
		metric.WithUnit("{run}"),
	)

	return func(ctx context.Context, it Item, next Handler) error {
		start := time.Now()
		err := next(ctx)

		attrs := metric.WithAttributes(
			attribute.String("kind", string(it.Kind)),
			attribute.String("name", it.Name),
			attribute.String("outcome", Outcome(err)),
		)
		// Record with a context that survives the work's cancellation.
		rctx := context.WithoutCancel(ctx)
		duration.Record(rctx, time.Since(start).Seconds(), attrs)
		runs.Add(rctx, 1, attrs)

		return err
	}
}
