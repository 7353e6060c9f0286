package postgres

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

	tag, err := s.pool.Exec(ctx, `
		UPDATE `+table+`
		SET locked_by = $2, locked_at = $3, updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		  AND (locked_at IS NULL OR locked_at <= $4)`,
		recordID.String(), workerID, now.UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return false, wrap("acquire "+string(kind)+" lock", err)
	}
	if tag.RowsAffected() == 1 {
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

	tag, err := s.pool.Exec(ctx, `
		UPDATE `+table+`
		SET locked_by = NULL, locked_at = NULL, updated_at = $3
		WHERE id = $1 AND locked_by = $2`,
		recordID.String(), workerID, now.UTC(),
	)
	if err != nil {
		return false, wrap("release "+string(kind)+" lock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SweepExpiredLocks clears every lock older than staleBefore. Status is
// left untouched.
func (s *Store) SweepExpiredLocks(ctx context.Context, kind lock.Kind, staleBefore, now time.Time) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE `+table+`
		SET locked_by = NULL, locked_at = NULL, updated_at = $2
		WHERE locked_at IS NOT NULL AND locked_at < $1`,
		staleBefore.UTC(), now.UTC(),
	)
	if err != nil {
		return 0, wrap("sweep "+string(kind)+" locks", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) exists(ctx context.Context, table string, recordID id.ID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`,
		recordID.String(),
	).Scan(&ok)
	if err != nil {
		return false, wrap("check "+table, err)
	}
	return ok, nil
}
