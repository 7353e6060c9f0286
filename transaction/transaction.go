// Package transaction defines the transaction entity, its state machine,
// the store contract, and the Processor that processes and cancels
// transactions under a claim.
//
//	pending → processing → completed
//	pending → processing → failed
//	pending → cancelled
//
// Every path out of pending starts with a non-blocking lock acquire. The
// terminal update that sets completed, failed or cancelled clears the lock
// in the same statement.
package transaction

import (
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
)

// Type is the direction of a transaction.
type Type string

const (
	// TypeCredit adds funds to the destination account.
	TypeCredit Type = "credit"
	// TypeDebit removes funds from the source account.
	TypeDebit Type = "debit"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool { return t == TypeCredit || t == TypeDebit }

// Status represents the lifecycle state of a transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every transaction status.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ClearsLock reports whether entering s releases the lock.
func (s Status) ClearsLock() bool { return s.Terminal() }

// DefaultCurrency is applied when Submit is given no currency.
const DefaultCurrency = "USD"

// Transaction is a financial operation processed under a claim.
type Transaction struct {
	claim.Entity
	lock.Lease

	ID           id.TransactionID  `json:"id"`
	Type         Type              `json:"type"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Description  string            `json:"description,omitempty"`
	Reference    string            `json:"reference,omitempty"`
	FromAccount  string            `json:"from_account,omitempty"`
	ToAccount    string            `json:"to_account,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Status       Status            `json:"status"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
	FailedAt     *time.Time        `json:"failed_at,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

var _ lock.Lockable = (*Transaction)(nil)

// LockKind implements lock.Lockable.
func (t *Transaction) LockKind() lock.Kind { return lock.KindTransaction }

// LockID implements lock.Lockable.
func (t *Transaction) LockID() id.ID { return t.ID }

// LockStatus implements lock.Lockable.
func (t *Transaction) LockStatus() string { return string(t.Status) }

// LockLease implements lock.Lockable.
func (t *Transaction) LockLease() lock.Lease { return t.Lease }
