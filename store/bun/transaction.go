package bunstore

import (
	"context"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/transaction"
)

// InsertTransaction persists a new transaction.
func (s *Store) InsertTransaction(ctx context.Context, t *transaction.Transaction) error {
	res, err := s.db.NewInsert().
		Model(toTransactionModel(t)).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return wrap("insert transaction", err)
	}
	if affected(res) == 0 {
		return claim.ErrTransactionAlreadyExists
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	m := new(transactionModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", txnID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, claim.ErrTransactionNotFound
		}
		return nil, wrap("get transaction", err)
	}
	return fromTransactionModel(m)
}

// ListTransactions returns transactions with the given status, newest
// first unless opts.Oldest is set.
func (s *Store) ListTransactions(ctx context.Context, status transaction.Status, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var models []transactionModel
	q := s.db.NewSelect().Model(&models)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if opts.Oldest {
		q = q.Order("created_at ASC", "id ASC")
	} else {
		q = q.Order("created_at DESC", "id DESC")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list transactions", err)
	}
	return fromTransactionModels(models)
}

// ListLockedTransactions returns every transaction with a recorded lock
// holder, oldest lock first.
func (s *Store) ListLockedTransactions(ctx context.Context) ([]*transaction.Transaction, error) {
	var models []transactionModel
	err := s.db.NewSelect().Model(&models).
		Where("locked_at IS NOT NULL").
		Order("locked_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list locked transactions", err)
	}
	return fromTransactionModels(models)
}

// CountTransactions returns the number of transactions with the given
// status.
func (s *Store) CountTransactions(ctx context.Context, status transaction.Status) (int64, error) {
	q := s.db.NewSelect().Model((*transactionModel)(nil))
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, wrap("count transactions", err)
	}
	return int64(n), nil
}

// TransitionTransaction applies tr as one conditional UPDATE guarded by
// the lock holder and the expected source status.
func (s *Store) TransitionTransaction(ctx context.Context, tr transaction.Transition) (bool, error) {
	at := tr.At.UTC()
	q := s.db.NewUpdate().
		TableExpr(transactionsTable).
		Set("status = ?", string(tr.To)).
		Set("updated_at = ?", at)

	switch tr.To {
	case transaction.StatusCompleted:
		q = q.Set("processed_at = ?", at)
	case transaction.StatusFailed:
		q = q.Set("failed_at = ?", at).
			Set("error_message = ?", tr.ErrorMessage)
	}
	if tr.To.ClearsLock() {
		q = q.Set("locked_by = NULL").Set("locked_at = NULL")
	}

	res, err := q.
		Where("id = ?", tr.TransactionID.String()).
		Where("locked_by = ?", tr.WorkerID).
		Where("status = ?", string(tr.From)).
		Exec(ctx)
	if err != nil {
		return false, wrap("transition transaction", err)
	}
	if affected(res) == 1 {
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
