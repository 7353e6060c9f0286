package transaction

import (
	"context"
	"time"

	"github.com/xraph/claim/id"
)

// ListOpts controls pagination for transaction list queries.
type ListOpts struct {
	// Limit is the maximum number of transactions to return. Zero means no limit.
	Limit int
	// Offset is the number of transactions to skip.
	Offset int
	// Oldest orders results by created_at ascending instead of descending.
	Oldest bool
}

// Transition describes a status change requested by a lock holder.
// Backends apply it as one conditional update matching
// id = TransactionID AND locked_by = WorkerID AND status = From, and set in
// the same statement:
//
//   - processing: nothing else
//   - completed: processed_at = At, lock cleared
//   - failed: failed_at = At, error_message = ErrorMessage, lock cleared
//   - cancelled: lock cleared
type Transition struct {
	TransactionID id.TransactionID
	WorkerID      string
	From          Status
	To            Status
	ErrorMessage  string
	At            time.Time
}

// Store defines the persistence contract for transactions.
type Store interface {
	// InsertTransaction persists a new transaction.
	InsertTransaction(ctx context.Context, t *Transaction) error

	// GetTransaction retrieves a transaction by ID.
	GetTransaction(ctx context.Context, txnID id.TransactionID) (*Transaction, error)

	// ListTransactions returns transactions with the given status, newest
	// first unless opts.Oldest is set. An empty status matches all.
	ListTransactions(ctx context.Context, status Status, opts ListOpts) ([]*Transaction, error)

	// ListLockedTransactions returns every transaction that currently
	// records a lock holder.
	ListLockedTransactions(ctx context.Context) ([]*Transaction, error)

	// CountTransactions returns the number of transactions with the given
	// status. An empty status counts every transaction.
	CountTransactions(ctx context.Context, status Status) (int64, error)

	// TransitionTransaction applies t and reports whether a row changed.
	// When nothing changed because the transaction does not exist it
	// returns claim.ErrTransactionNotFound.
	TransitionTransaction(ctx context.Context, t Transition) (bool, error)
}
