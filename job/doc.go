// Package job defines the job entity, its state machine, the store contract
// and the Service that selects and transitions jobs on top of lock.Manager.
//
// # Job Entity
//
// A [Job] embeds [claim.Entity] for timestamps and [lock.Lease] for claim
// ownership, and moves through:
//
//	pending → running → completed
//	pending → running → failed
//
// A job is claimed while still pending; the holder then moves it to
// running, which increments Attempts. Completing or failing a job clears
// its lock in the same update. MaxAttempts is recorded but nothing
// re-queues failed jobs.
//
// # Claiming
//
// [Service.ClaimNext] reads a bounded window of pending candidates ordered
// by priority (highest first) then age (oldest first) and tries to acquire
// each in turn. It returns nil when none of the window could be claimed,
// even if more pending jobs exist beyond it.
//
// # Handlers
//
// [Registry] maps job titles to type-erased [HandlerFunc] values for the
// worker pool. Register typed definitions at startup:
//
//	job.RegisterDefinition(registry, job.NewDefinition("send-invoice",
//	    func(ctx context.Context, in InvoiceInput) error { ... }))
package job
