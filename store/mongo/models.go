package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID           string     `bson:"_id"`
	Title        string     `bson:"title"`
	Description  string     `bson:"description"`
	Priority     int        `bson:"priority"`
	Payload      []byte     `bson:"payload,omitempty"`
	Status       string     `bson:"status"`
	Attempts     int        `bson:"attempts"`
	MaxAttempts  int        `bson:"max_attempts"`
	LockedBy     string     `bson:"locked_by,omitempty"`
	LockedAt     *time.Time `bson:"locked_at,omitempty"`
	ScheduledAt  *time.Time `bson:"scheduled_at,omitempty"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty"`
	FailedAt     *time.Time `bson:"failed_at,omitempty"`
	ErrorMessage string     `bson:"error_message"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:           j.ID.String(),
		Title:        j.Title,
		Description:  j.Description,
		Priority:     j.Priority,
		Payload:      j.Payload,
		Status:       string(j.Status),
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		LockedBy:     j.LockedBy,
		LockedAt:     j.LockedAt,
		ScheduledAt:  j.ScheduledAt,
		CompletedAt:  j.CompletedAt,
		FailedAt:     j.FailedAt,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("claim/mongo: parse job id %q: %w", m.ID, err)
	}

	return &job.Job{
		Entity: claim.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		Lease: lock.Lease{
			LockedBy: m.LockedBy,
			LockedAt: utcPtr(m.LockedAt),
		},
		ID:           parsedID,
		Title:        m.Title,
		Description:  m.Description,
		Priority:     m.Priority,
		Payload:      m.Payload,
		Status:       job.Status(m.Status),
		Attempts:     m.Attempts,
		MaxAttempts:  m.MaxAttempts,
		ScheduledAt:  utcPtr(m.ScheduledAt),
		CompletedAt:  utcPtr(m.CompletedAt),
		FailedAt:     utcPtr(m.FailedAt),
		ErrorMessage: m.ErrorMessage,
	}, nil
}

// ── Transaction model ─────────────────────────────────────────────

type transactionModel struct {
	ID           string            `bson:"_id"`
	Type         string            `bson:"type"`
	Amount       int64             `bson:"amount"`
	Currency     string            `bson:"currency"`
	Description  string            `bson:"description"`
	Reference    string            `bson:"reference"`
	FromAccount  string            `bson:"from_account"`
	ToAccount    string            `bson:"to_account"`
	Metadata     map[string]string `bson:"metadata,omitempty"`
	Status       string            `bson:"status"`
	LockedBy     string            `bson:"locked_by,omitempty"`
	LockedAt     *time.Time        `bson:"locked_at,omitempty"`
	ProcessedAt  *time.Time        `bson:"processed_at,omitempty"`
	FailedAt     *time.Time        `bson:"failed_at,omitempty"`
	ErrorMessage string            `bson:"error_message"`
	CreatedAt    time.Time         `bson:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	return &transactionModel{
		ID:           t.ID.String(),
		Type:         string(t.Type),
		Amount:       t.Amount,
		Currency:     t.Currency,
		Description:  t.Description,
		Reference:    t.Reference,
		FromAccount:  t.FromAccount,
		ToAccount:    t.ToAccount,
		Metadata:     t.Metadata,
		Status:       string(t.Status),
		LockedBy:     t.LockedBy,
		LockedAt:     t.LockedAt,
		ProcessedAt:  t.ProcessedAt,
		FailedAt:     t.FailedAt,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	parsedID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("claim/mongo: parse transaction id %q: %w", m.ID, err)
	}

	return &transaction.Transaction{
		Entity: claim.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		Lease: lock.Lease{
			LockedBy: m.LockedBy,
			LockedAt: utcPtr(m.LockedAt),
		},
		ID:           parsedID,
		Type:         transaction.Type(m.Type),
		Amount:       m.Amount,
		Currency:     m.Currency,
		Description:  m.Description,
		Reference:    m.Reference,
		FromAccount:  m.FromAccount,
		ToAccount:    m.ToAccount,
		Metadata:     m.Metadata,
		Status:       transaction.Status(m.Status),
		ProcessedAt:  utcPtr(m.ProcessedAt),
		FailedAt:     utcPtr(m.FailedAt),
		ErrorMessage: m.ErrorMessage,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
