// Package claim lets independent worker processes take exclusive, time-bounded
// ownership of jobs and financial transactions stored in a shared database.
//
// There is no coordinator and no in-process mutex. Ownership is recorded on
// the row itself (locked_by / locked_at) and changed only through conditional
// updates that the backing store applies atomically. A worker that crashes
// while holding a claim is recovered by lock expiry: once a lock is older than
// the configured TTL any other worker may take it, and a periodic sweeper
// clears stale lock fields in bulk.
//
// # Quick Start
//
//	r, err := claim.New(
//	    claim.WithStore(pgStore),
//	    claim.WithLockTTL(30*time.Second),
//	)
//	eng, err := engine.Build(r)
//	j, err := eng.SubmitJob(ctx, "send-invoice", job.WithPriority(5))
//	claimed, err := eng.ClaimNextJob(ctx, "worker-1")
//
// # Architecture
//
// Each subsystem (lock, job, transaction) defines its own store interface and
// every backend (memory, postgres, bun, redis, mongo) implements all of them.
// The lock package implements claim arbitration once for every kind of work
// item; job and transaction layer their state machines on top of it.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based.
package claim
