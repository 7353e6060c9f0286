package ext

import (
	"context"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Lock hooks
// ──────────────────────────────────────────────────

// LockAcquired is called after a worker claims an item.
type LockAcquired interface {
	OnLockAcquired(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string) error
}

// LockContended is called when a claim attempt changes nothing because the
// item is validly locked by someone else or is no longer pending.
type LockContended interface {
	OnLockContended(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string) error
}

// LockReleased is called after an explicit release. released is false when
// the worker no longer held the lock.
type LockReleased interface {
	OnLockReleased(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string, released bool) error
}

// LocksExpired is called after every sweep of one kind, including sweeps
// that cleared nothing.
type LocksExpired interface {
	OnLocksExpired(ctx context.Context, kind lock.Kind, count int64) error
}

// ──────────────────────────────────────────────────
// Job hooks
// ──────────────────────────────────────────────────

// JobSubmitted is called after a job is persisted.
type JobSubmitted interface {
	OnJobSubmitted(ctx context.Context, j *job.Job) error
}

// JobClaimed is called when ClaimNext hands a job to a worker.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, j *job.Job, workerID string) error
}

// JobTransitioned is called after a status change request. ok reports
// whether the job changed.
type JobTransitioned interface {
	OnJobTransitioned(ctx context.Context, jobID id.JobID, to job.Status, workerID string, ok bool) error
}

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// TransactionSubmitted is called after a transaction is persisted.
type TransactionSubmitted interface {
	OnTransactionSubmitted(ctx context.Context, t *transaction.Transaction) error
}

// TransactionTransitioned is called after a status change request. ok
// reports whether the transaction changed.
type TransactionTransitioned interface {
	OnTransactionTransitioned(ctx context.Context, txnID id.TransactionID, to transaction.Status, workerID string, ok bool) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
