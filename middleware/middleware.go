package middleware

import (
	"context"
	"errors"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
)

// Handler is the terminal function that performs the work.
type Handler func(ctx context.Context) error

// Item describes the claimed record a Handler is working on.
type Item struct {
	Kind lock.Kind
	ID   id.ID
	// Name is the job title or the transaction type.
	Name     string
	WorkerID string
	// Attempt is the job's attempt count after the claim. Zero for
	// transactions.
	Attempt int
}

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the item being worked on, and the
// next handler to call.
type Middleware func(ctx context.Context, it Item, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tracing) executes as:
//
//	logging → recover → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, it Item, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, it, prev)
			}
		}
		return h(ctx)
	}
}

// Outcome labels the result of a run: "ok", "timeout" when the work
// context hit its deadline, "canceled" when it was cancelled (for example
// by a pool shutdown) and "error" otherwise.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
