package lock

import (
	"context"
	"time"

	"github.com/xraph/claim/id"
)

// Store is the conditional-update contract a backend must honour. Each
// method is a single atomic operation in the backend: the filter and the
// write are never split into a read followed by a write.
type Store interface {
	// AcquireLock sets locked_by = workerID and locked_at = now on the item
	// if, in one conditional update, its status is pending and it is either
	// unlocked or locked_at <= staleBefore. It reports whether a row
	// changed. When nothing changed because the item does not exist the
	// kind's not-found error is returned.
	AcquireLock(ctx context.Context, kind Kind, recordID id.ID, workerID string, now, staleBefore time.Time) (bool, error)

	// ReleaseLock clears both lock fields if locked_by = workerID and
	// reports whether a row changed.
	ReleaseLock(ctx context.Context, kind Kind, recordID id.ID, workerID string, now time.Time) (bool, error)

	// SweepExpiredLocks clears the lock fields of every item of the kind
	// whose locked_at < staleBefore, leaving status untouched, and returns
	// the number of items changed.
	SweepExpiredLocks(ctx context.Context, kind Kind, staleBefore, now time.Time) (int64, error)
}
