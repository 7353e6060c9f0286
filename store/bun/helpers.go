package bunstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/claim/lock"
)

const (
	jobsTable         = "claim_jobs"
	transactionsTable = "claim_transactions"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// tableFor maps a lock kind to the table holding its rows.
func tableFor(kind lock.Kind) (string, error) {
	switch kind {
	case lock.KindJob:
		return jobsTable, nil
	case lock.KindTransaction:
		return transactionsTable, nil
	default:
		return "", kind.NotFound()
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func affected(res sql.Result) int64 {
	n, _ := res.RowsAffected() //nolint:errcheck // drivers used here always report it
	return n
}

func wrap(op string, err error) error {
	return fmt.Errorf("claim/bun: %s: %w", op, err)
}
