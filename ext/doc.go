// Package ext defines the extension system for claim.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, publishing to a message bus, writing logs, and so on.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnLockContended(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string) error {
//	    log.Printf("%s lost the race for %s %s", workerID, kind, recordID)
//	    return nil
//	}
//
// # Lock Hooks
//
//   - [LockAcquired]: a worker claimed an item
//   - [LockContended]: a claim attempt found the item locked or not pending
//   - [LockReleased]: a worker released, or failed to release, its claim
//   - [LocksExpired]: a sweep cleared stale locks of one kind
//
// # Job Hooks
//
//   - [JobSubmitted]: a job was persisted as pending
//   - [JobClaimed]: ClaimNext returned a job to a worker
//   - [JobTransitioned]: the lock holder requested a status change
//
// # Transaction Hooks
//
//   - [TransactionSubmitted]: a transaction was persisted as pending
//   - [TransactionTransitioned]: a processor or canceller requested a status change
//
// # Other Hooks
//
//   - [Shutdown]: the runner is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. It satisfies the Emitter
// interfaces of the lock, job and transaction packages.
package ext
