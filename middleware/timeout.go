package middleware

import (
	"context"
	"time"
)

// Timeout returns middleware that cancels the work context after d.
// A non-positive d disables the deadline. Work should keep d well below
// the lock TTL or the sweeper may release the lock mid-run.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ Item, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
