package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs the start and outcome of each run.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, it Item, next Handler) error {
		attrs := []any{
			slog.String("kind", string(it.Kind)),
			slog.String("id", it.ID.String()),
			slog.String("name", it.Name),
			slog.String("worker_id", it.WorkerID),
		}
		logger.Debug("work started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		switch outcome := Outcome(err); outcome {
		case "ok":
			logger.Info("work completed", attrs...)
		case "canceled":
			logger.Warn("work canceled", attrs...)
		default:
			logger.Error("work failed", append(attrs,
				slog.String("outcome", outcome),
				slog.String("error", err.Error()),
			)...)
		}

		return err
	}
}
