package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

var (
	_ lock.Emitter        = (*Registry)(nil)
	_ job.Emitter         = (*Registry)(nil)
	_ transaction.Emitter = (*Registry)(nil)
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type lockAcquiredEntry struct {
	name string
	hook LockAcquired
}

type lockContendedEntry struct {
	name string
	hook LockContended
}

type lockReleasedEntry struct {
	name string
	hook LockReleased
}

type locksExpiredEntry struct {
	name string
	hook LocksExpired
}

type jobSubmittedEntry struct {
	name string
	hook JobSubmitted
}

type jobClaimedEntry struct {
	name string
	hook JobClaimed
}

type jobTransitionedEntry struct {
	name string
	hook JobTransitioned
}

type txnSubmittedEntry struct {
	name string
	hook TransactionSubmitted
}

type txnTransitionedEntry struct {
	name string
	hook TransactionTransitioned
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register all extensions before the Registry is handed to the services;
// registration is not synchronised with emission.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	lockAcquired    []lockAcquiredEntry
	lockContended   []lockContendedEntry
	lockReleased    []lockReleasedEntry
	locksExpired    []locksExpiredEntry
	jobSubmitted    []jobSubmittedEntry
	jobClaimed      []jobClaimedEntry
	jobTransitioned []jobTransitionedEntry
	txnSubmitted    []txnSubmittedEntry
	txnTransitioned []txnTransitionedEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(LockAcquired); ok {
		r.lockAcquired = append(r.lockAcquired, lockAcquiredEntry{name, h})
	}
	if h, ok := e.(LockContended); ok {
		r.lockContended = append(r.lockContended, lockContendedEntry{name, h})
	}
	if h, ok := e.(LockReleased); ok {
		r.lockReleased = append(r.lockReleased, lockReleasedEntry{name, h})
	}
	if h, ok := e.(LocksExpired); ok {
		r.locksExpired = append(r.locksExpired, locksExpiredEntry{name, h})
	}
	if h, ok := e.(JobSubmitted); ok {
		r.jobSubmitted = append(r.jobSubmitted, jobSubmittedEntry{name, h})
	}
	if h, ok := e.(JobClaimed); ok {
		r.jobClaimed = append(r.jobClaimed, jobClaimedEntry{name, h})
	}
	if h, ok := e.(JobTransitioned); ok {
		r.jobTransitioned = append(r.jobTransitioned, jobTransitionedEntry{name, h})
	}
	if h, ok := e.(TransactionSubmitted); ok {
		r.txnSubmitted = append(r.txnSubmitted, txnSubmittedEntry{name, h})
	}
	if h, ok := e.(TransactionTransitioned); ok {
		r.txnTransitioned = append(r.txnTransitioned, txnTransitionedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Lock event emitters
// ──────────────────────────────────────────────────

// EmitLockAcquired notifies all extensions that implement LockAcquired.
func (r *Registry) EmitLockAcquired(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string) {
	for _, e := range r.lockAcquired {
		if err := e.hook.OnLockAcquired(ctx, kind, recordID, workerID); err != nil {
			r.logHookError("OnLockAcquired", e.name, err)
		}
	}
}

// EmitLockContended notifies all extensions that implement LockContended.
func (r *Registry) EmitLockContended(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string) {
	for _, e := range r.lockContended {
		if err := e.hook.OnLockContended(ctx, kind, recordID, workerID); err != nil {
			r.logHookError("OnLockContended", e.name, err)
		}
	}
}

// EmitLockReleased notifies all extensions that implement LockReleased.
func (r *Registry) EmitLockReleased(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string, released bool) {
	for _, e := range r.lockReleased {
		if err := e.hook.OnLockReleased(ctx, kind, recordID, workerID, released); err != nil {
			r.logHookError("OnLockReleased", e.name, err)
		}
	}
}

// EmitLocksExpired notifies all extensions that implement LocksExpired.
func (r *Registry) EmitLocksExpired(ctx context.Context, kind lock.Kind, count int64) {
	for _, e := range r.locksExpired {
		if err := e.hook.OnLocksExpired(ctx, kind, count); err != nil {
			r.logHookError("OnLocksExpired", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobSubmitted notifies all extensions that implement JobSubmitted.
func (r *Registry) EmitJobSubmitted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobSubmitted {
		if err := e.hook.OnJobSubmitted(ctx, j); err != nil {
			r.logHookError("OnJobSubmitted", e.name, err)
		}
	}
}

// EmitJobClaimed notifies all extensions that implement JobClaimed.
func (r *Registry) EmitJobClaimed(ctx context.Context, j *job.Job, workerID string) {
	for _, e := range r.jobClaimed {
		if err := e.hook.OnJobClaimed(ctx, j, workerID); err != nil {
			r.logHookError("OnJobClaimed", e.name, err)
		}
	}
}

// EmitJobTransitioned notifies all extensions that implement JobTransitioned.
func (r *Registry) EmitJobTransitioned(ctx context.Context, jobID id.JobID, to job.Status, workerID string, ok bool) {
	for _, e := range r.jobTransitioned {
		if err := e.hook.OnJobTransitioned(ctx, jobID, to, workerID, ok); err != nil {
			r.logHookError("OnJobTransitioned", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Transaction event emitters
// ──────────────────────────────────────────────────

// EmitTransactionSubmitted notifies all extensions that implement
// TransactionSubmitted.
func (r *Registry) EmitTransactionSubmitted(ctx context.Context, t *transaction.Transaction) {
	for _, e := range r.txnSubmitted {
		if err := e.hook.OnTransactionSubmitted(ctx, t); err != nil {
			r.logHookError("OnTransactionSubmitted", e.name, err)
		}
	}
}

// EmitTransactionTransitioned notifies all extensions that implement
// TransactionTransitioned.
func (r *Registry) EmitTransactionTransitioned(ctx context.Context, txnID id.TransactionID, to transaction.Status, workerID string, ok bool) {
	for _, e := range r.txnTransitioned {
		if err := e.hook.OnTransactionTransitioned(ctx, txnID, to, workerID, ok); err != nil {
			r.logHookError("OnTransactionTransitioned", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block a claim.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
