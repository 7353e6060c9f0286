package redis

import (
	"context"
	"time"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
)

// AcquireLock claims the record with acquireScript.
func (s *Store) AcquireLock(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string, now, staleBefore time.Time) (bool, error) {
	ks, err := keysFor(kind)
	if err != nil {
		return false, err
	}

	rid := recordID.String()
	res, err := acquireScript.Run(ctx, s.client,
		[]string{ks.item(rid), ks.locked()},
		workerID, formatTime(now), micros(now), micros(staleBefore), rid,
	).Int()
	if err != nil {
		return false, wrap("acquire "+string(kind)+" lock", err)
	}

	switch res {
	case 1:
		return true, nil
	case -1:
		return false, kind.NotFound()
	default:
		return false, nil
	}
}

// ReleaseLock clears the lock only if workerID holds it.
func (s *Store) ReleaseLock(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string, now time.Time) (bool, error) {
	ks, err := keysFor(kind)
	if err != nil {
		return false, err
	}

	rid := recordID.String()
	res, err := releaseScript.Run(ctx, s.client,
		[]string{ks.item(rid), ks.locked()},
		workerID, formatTime(now), rid,
	).Int()
	if err != nil {
		return false, wrap("release "+string(kind)+" lock", err)
	}
	return res == 1, nil
}

// SweepExpiredLocks clears every lock older than staleBefore. Status is
// left untouched.
func (s *Store) SweepExpiredLocks(ctx context.Context, kind lock.Kind, staleBefore, now time.Time) (int64, error) {
	ks, err := keysFor(kind)
	if err != nil {
		return 0, err
	}

	n, err := sweepScript.Run(ctx, s.client,
		[]string{ks.locked()},
		micros(staleBefore), formatTime(now), ks.itemPrefix(),
	).Int64()
	if err != nil {
		return 0, wrap("sweep "+string(kind)+" locks", err)
	}
	return n, nil
}

// transition runs transitionScript and maps its result.
func (s *Store) transition(ctx context.Context, ks keyspace, recordID, workerID, sources, target string, clearLock, bumpAttempts bool, fields ...string) (bool, error) {
	args := []any{workerID, recordID, sources, target, ks.statusPrefix(), flag(clearLock), flag(bumpAttempts)}
	for _, f := range fields {
		args = append(args, f)
	}

	res, err := transitionScript.Run(ctx, s.client,
		[]string{ks.item(recordID), ks.locked(), ks.candidates(), ks.scheduled()}, args...).Int()
	if err != nil {
		return false, wrap("transition "+string(ks.kind), err)
	}
	switch res {
	case 1:
		return true, nil
	case -1:
		return false, ks.kind.NotFound()
	default:
		return false, nil
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
