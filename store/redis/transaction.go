package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// InsertTransaction stores the transaction as a Hash and indexes it.
func (s *Store) InsertTransaction(ctx context.Context, t *transaction.Transaction) error {
	fields, err := transactionToMap(t)
	if err != nil {
		return err
	}
	ok, err := s.insert(ctx, transactionKeys, t.ID.String(), string(t.Status), t.CreatedAt, fields, t.LockedAt)
	if err != nil {
		return wrap("insert transaction", err)
	}
	if !ok {
		return claim.ErrTransactionAlreadyExists
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	vals, err := s.client.HGetAll(ctx, transactionKeys.item(txnID.String())).Result()
	if err != nil {
		return nil, wrap("get transaction", err)
	}
	if len(vals) == 0 {
		return nil, claim.ErrTransactionNotFound
	}
	return mapToTransaction(vals)
}

// ListTransactions returns transactions with the given status, newest
// first unless opts.Oldest is set.
func (s *Store) ListTransactions(ctx context.Context, status transaction.Status, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	index := transactionKeys.all()
	if status != "" {
		index = transactionKeys.status(string(status))
	}
	ids, err := s.ids(ctx, index, !opts.Oldest, opts.Offset, opts.Limit)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	return s.loadTransactions(ctx, ids)
}

// ListLockedTransactions returns every transaction with a recorded lock
// holder, oldest lock first.
func (s *Store) ListLockedTransactions(ctx context.Context) ([]*transaction.Transaction, error) {
	ids, err := s.ids(ctx, transactionKeys.locked(), false, 0, 0)
	if err != nil {
		return nil, wrap("list locked transactions", err)
	}
	return s.loadTransactions(ctx, ids)
}

// CountTransactions returns the number of transactions with the given
// status.
func (s *Store) CountTransactions(ctx context.Context, status transaction.Status) (int64, error) {
	index := transactionKeys.all()
	if status != "" {
		index = transactionKeys.status(string(status))
	}
	n, err := s.client.ZCard(ctx, index).Result()
	if err != nil {
		return 0, wrap("count transactions", err)
	}
	return n, nil
}

// TransitionTransaction applies tr atomically with transitionScript.
func (s *Store) TransitionTransaction(ctx context.Context, tr transaction.Transition) (bool, error) {
	at := formatTime(tr.At)
	fields := []string{"updated_at", at}
	switch tr.To {
	case transaction.StatusCompleted:
		fields = append(fields, "processed_at", at)
	case transaction.StatusFailed:
		fields = append(fields, "failed_at", at, "error_message", tr.ErrorMessage)
	}

	return s.transition(ctx, transactionKeys, tr.TransactionID.String(), tr.WorkerID, string(tr.From), string(tr.To),
		tr.To.ClearsLock(), false, fields...)
}

func (s *Store) loadTransactions(ctx context.Context, ids []string) ([]*transaction.Transaction, error) {
	keys := make([]string, len(ids))
	for i, tID := range ids {
		keys[i] = transactionKeys.item(tID)
	}
	hashes, err := s.loadHashes(ctx, keys)
	if err != nil {
		return nil, wrap("load transactions", err)
	}

	txns := make([]*transaction.Transaction, 0, len(hashes))
	for _, h := range hashes {
		t, convErr := mapToTransaction(h)
		if convErr != nil {
			return nil, convErr
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func transactionToMap(t *transaction.Transaction) (map[string]any, error) {
	m := map[string]any{
		"id":            t.ID.String(),
		"type":          string(t.Type),
		"amount":        strconv.FormatInt(t.Amount, 10),
		"currency":      t.Currency,
		"description":   t.Description,
		"reference":     t.Reference,
		"from_account":  t.FromAccount,
		"to_account":    t.ToAccount,
		"status":        string(t.Status),
		"error_message": t.ErrorMessage,
		"created_at":    formatTime(t.CreatedAt),
		"updated_at":    formatTime(t.UpdatedAt),
	}
	if len(t.Metadata) > 0 {
		b, err := json.Marshal(t.Metadata)
		if err != nil {
			return nil, fmt.Errorf("claim/redis: marshal metadata: %w", err)
		}
		m["metadata"] = string(b)
	}
	setLease(m, t.LockedBy, t.LockedAt)
	setTime(m, "processed_at", t.ProcessedAt)
	setTime(m, "failed_at", t.FailedAt)
	return m, nil
}

func mapToTransaction(m map[string]string) (*transaction.Transaction, error) {
	tID, err := id.ParseTransactionID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("claim/redis: parse transaction id: %w", err)
	}

	amount, _ := strconv.ParseInt(m["amount"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	t := &transaction.Transaction{
		Entity: claim.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		Lease: lock.Lease{
			LockedBy: m["locked_by"],
			LockedAt: parseTimePtr(m["locked_at"]),
		},
		ID:           tID,
		Type:         transaction.Type(m["type"]),
		Amount:       amount,
		Currency:     m["currency"],
		Description:  m["description"],
		Reference:    m["reference"],
		FromAccount:  m["from_account"],
		ToAccount:    m["to_account"],
		Status:       transaction.Status(m["status"]),
		ProcessedAt:  parseTimePtr(m["processed_at"]),
		FailedAt:     parseTimePtr(m["failed_at"]),
		ErrorMessage: m["error_message"],
	}
	if raw := m["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &t.Metadata); err != nil {
			return nil, fmt.Errorf("claim/redis: parse metadata: %w", err)
		}
	}
	return t, nil
}
