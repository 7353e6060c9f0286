package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, it Item, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("work panicked",
					slog.String("kind", string(it.Kind)),
					slog.String("id", it.ID.String()),
					slog.String("name", it.Name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in %s %s: %v", it.Kind, it.Name, r)
			}
		}()
		return next(ctx)
	}
}
