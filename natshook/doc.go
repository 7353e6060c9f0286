// Package natshook publishes claim lifecycle events to NATS. When
// registered as an extension, it emits a JSON message on the subject
// claim.<kind>.<event> (claim.job.lock_acquired,
// claim.transaction.transitioned, etc.) at every lifecycle point.
//
// Usage:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	hook := natshook.New(nc)
//	runner, _ := engine.Build(r, claim.WithExtension(hook))
//
// To restrict which events are published:
//
//	hook := natshook.New(nc,
//	    natshook.WithEvents(
//	        natshook.EventLocksExpired,
//	        natshook.EventTransitioned,
//	    ),
//	)
package natshook
