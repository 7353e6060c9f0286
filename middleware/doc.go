// Package middleware provides composable middleware around the work done
// while a record is claimed.
//
// A [Middleware] wraps the call that runs a claimed job's handler or a
// claimed transaction's work function. The [Item] it receives describes the
// claimed record without tying the middleware to either record type.
// Middleware are composed with [Chain] and applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → work
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs the item, duration and outcome of each run
//   - [Recover] converts panics into errors
//   - [Timeout] cancels the work context after a fixed duration
//   - [Tracing] wraps the run in an OpenTelemetry span
//   - [Metrics] records run duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, it middleware.Item, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
