package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/transaction"
)

const transactionColumns = `id, type, amount, currency, description, reference,
	from_account, to_account, metadata, status, locked_by, locked_at,
	processed_at, failed_at, error_message, created_at, updated_at`

// InsertTransaction persists a new transaction.
func (s *Store) InsertTransaction(ctx context.Context, t *transaction.Transaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO claim_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID.String(), string(t.Type), t.Amount, t.Currency, t.Description, t.Reference,
		t.FromAccount, t.ToAccount, t.Metadata, string(t.Status), nullString(t.LockedBy), t.LockedAt,
		t.ProcessedAt, t.FailedAt, t.ErrorMessage, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return claim.ErrTransactionAlreadyExists
		}
		return wrap("insert transaction", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM claim_transactions WHERE id = $1`,
		txnID.String(),
	)
	t, err := scanTransaction(row)
	if err != nil {
		if isNoRows(err) {
			return nil, claim.ErrTransactionNotFound
		}
		return nil, wrap("get transaction", err)
	}
	return t, nil
}

// ListTransactions returns transactions with the given status, newest
// first unless opts.Oldest is set.
func (s *Store) ListTransactions(ctx context.Context, status transaction.Status, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	order := `created_at DESC, id DESC`
	if opts.Oldest {
		order = `created_at ASC, id ASC`
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM claim_transactions
		WHERE ($1 = '' OR status = $1)
		ORDER BY `+order+`
		LIMIT $2 OFFSET $3`,
		string(status), nullLimit(opts.Limit), max(opts.Offset, 0),
	)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListLockedTransactions returns every transaction with a recorded lock
// holder, oldest lock first.
func (s *Store) ListLockedTransactions(ctx context.Context) ([]*transaction.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM claim_transactions
		WHERE locked_at IS NOT NULL
		ORDER BY locked_at ASC`,
	)
	if err != nil {
		return nil, wrap("list locked transactions", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// CountTransactions returns the number of transactions with the given
// status.
func (s *Store) CountTransactions(ctx context.Context, status transaction.Status) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM claim_transactions WHERE ($1 = '' OR status = $1)`,
		string(status),
	).Scan(&n)
	if err != nil {
		return 0, wrap("count transactions", err)
	}
	return n, nil
}

// TransitionTransaction applies tr as one conditional UPDATE guarded by
// the lock holder and the expected source status.
func (s *Store) TransitionTransaction(ctx context.Context, tr transaction.Transition) (bool, error) {
	args := []any{tr.TransactionID.String(), tr.WorkerID, string(tr.From), string(tr.To), tr.At.UTC()}
	var set string
	switch tr.To {
	case transaction.StatusCompleted:
		set = `, processed_at = $5`
	case transaction.StatusFailed:
		set = `, failed_at = $5, error_message = $6`
		args = append(args, tr.ErrorMessage)
	}
	if tr.To.ClearsLock() {
		set += `, locked_by = NULL, locked_at = NULL`
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE claim_transactions
		SET status = $4, updated_at = $5`+set+`
		WHERE id = $1 AND locked_by = $2 AND status = $3`,
		args...,
	)
	if err != nil {
		return false, wrap("transition transaction", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	exists, err := s.exists(ctx, transactionsTable, tr.TransactionID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, claim.ErrTransactionNotFound
	}
	return false, nil
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var (
		t         transaction.Transaction
		idStr     string
		typeStr   string
		statusStr string
		lockedBy  *string
	)
	err := row.Scan(
		&idStr, &typeStr, &t.Amount, &t.Currency, &t.Description, &t.Reference,
		&t.FromAccount, &t.ToAccount, &t.Metadata, &statusStr, &lockedBy, &t.LockedAt,
		&t.ProcessedAt, &t.FailedAt, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseTransactionID(idStr)
	if err != nil {
		return nil, fmt.Errorf("claim/postgres: parse transaction id %q: %w", idStr, err)
	}
	t.ID = parsedID
	t.Type = transaction.Type(typeStr)
	t.Status = transaction.Status(statusStr)
	t.LockedBy = derefString(lockedBy)
	t.LockedAt = utcPtr(t.LockedAt)
	t.ProcessedAt = utcPtr(t.ProcessedAt)
	t.FailedAt = utcPtr(t.FailedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]*transaction.Transaction, error) {
	var txns []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, wrap("scan transaction row", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate transaction rows", err)
	}
	return txns, nil
}
