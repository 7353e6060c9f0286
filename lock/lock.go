// Package lock implements claim arbitration over lockable work items.
//
// Ownership of an item is recorded on the item itself as a Lease
// (locked_by, locked_at). The Manager changes a lease only through the
// conditional updates defined by Store, which every backend applies as one
// atomic operation, so any number of processes can compete for the same
// rows without sharing memory.
package lock

import (
	"fmt"
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
)

// Kind names a type of lockable work item.
type Kind string

const (
	// KindJob is a background job.
	KindJob Kind = "job"
	// KindTransaction is a financial transaction.
	KindTransaction Kind = "transaction"
)

// Kinds lists every lockable kind in sweep order.
var Kinds = []Kind{KindJob, KindTransaction}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindJob || k == KindTransaction
}

// NotFound returns the sentinel error for a missing item of this kind.
func (k Kind) NotFound() error {
	switch k {
	case KindJob:
		return claim.ErrJobNotFound
	case KindTransaction:
		return claim.ErrTransactionNotFound
	default:
		return fmt.Errorf("%w: %q", claim.ErrUnknownKind, string(k))
	}
}

// Lease is the lock state stored on a work item. LockedBy is non-empty
// exactly when LockedAt is non-nil.
type Lease struct {
	LockedBy string     `json:"locked_by,omitempty"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
}

// Held reports whether the lease records an owner, valid or not.
func (l Lease) Held() bool { return l.LockedAt != nil && l.LockedBy != "" }

// HeldBy reports whether workerID is the recorded owner.
func (l Lease) HeldBy(workerID string) bool { return l.Held() && l.LockedBy == workerID }

// Expired reports whether a held lease is older than ttl at now.
// An unheld lease is never expired.
func (l Lease) Expired(now time.Time, ttl time.Duration) bool {
	if !l.Held() {
		return false
	}
	return now.Sub(*l.LockedAt) >= ttl
}

// Age returns how long the lease has been held at now, zero when unheld.
func (l Lease) Age(now time.Time) time.Duration {
	if !l.Held() {
		return 0
	}
	return now.Sub(*l.LockedAt)
}

// Lockable is the capability shared by every item the Manager arbitrates.
type Lockable interface {
	LockKind() Kind
	LockID() id.ID
	LockStatus() string
	LockLease() Lease
}
