package bunstore

import (
	"context"
	"time"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
)

// AcquireLock claims the row in one conditional UPDATE. When nothing
// matches, an existence check separates contention from a missing row.
func (s *Store) AcquireLock(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string, now, staleBefore time.Time) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	now = now.UTC()
	res, err := s.db.NewUpdate().
		TableExpr(table).
		Set("locked_by = ?", workerID).
		Set("locked_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", recordID.String()).
		Where("status = 'pending'").
		Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore.UTC()).
		Exec(ctx)
	if err != nil {
		return false, wrap("acquire "+string(kind)+" lock", err)
	}
	if affected(res) == 1 {
		return true, nil
	}

	exists, err := s.exists(ctx, table, recordID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, kind.NotFound()
	}
	return false, nil
}

// ReleaseLock clears the lock only if workerID holds it.
func (s *Store) ReleaseLock(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string, now time.Time) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	res, err := s.db.NewUpdate().
		TableExpr(table).
		Set("locked_by = NULL").
		Set("locked_at = NULL").
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", recordID.String()).
		Where("locked_by = ?", workerID).
		Exec(ctx)
	if err != nil {
		return false, wrap("release "+string(kind)+" lock", err)
	}
	return affected(res) == 1, nil
}

// SweepExpiredLocks clears every lock older than staleBefore. Status is
// left untouched.
func (s *Store) SweepExpiredLocks(ctx context.Context, kind lock.Kind, staleBefore, now time.Time) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	res, err := s.db.NewUpdate().
		TableExpr(table).
		Set("locked_by = NULL").
		Set("locked_at = NULL").
		Set("updated_at = ?", now.UTC()).
		Where("locked_at IS NOT NULL").
		Where("locked_at < ?", staleBefore.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, wrap("sweep "+string(kind)+" locks", err)
	}
	return affected(res), nil
}

func (s *Store) exists(ctx context.Context, table string, recordID id.ID) (bool, error) {
	ok, err := s.db.NewSelect().
		TableExpr(table).
		Where("id = ?", recordID.String()).
		Exists(ctx)
	if err != nil {
		return false, wrap("check "+table, err)
	}
	return ok, nil
}
