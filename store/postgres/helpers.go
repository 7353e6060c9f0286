package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/claim/lock"
)

const (
	jobsTable         = "claim_jobs"
	transactionsTable = "claim_transactions"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
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

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// utcPtr normalizes a scanned nullable timestamp to UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// nullLimit maps a zero limit to NULL so LIMIT returns every row.
func nullLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func wrap(op string, err error) error {
	return fmt.Errorf("claim/postgres: %s: %w", op, err)
}
