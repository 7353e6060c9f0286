package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:claim_jobs"`

	ID           string     `bun:"id,pk"`
	Title        string     `bun:"title,notnull"`
	Description  string     `bun:"description,notnull,default:''"`
	Priority     int        `bun:"priority,notnull,default:0"`
	Payload      []byte     `bun:"payload"`
	Status       string     `bun:"status,notnull,default:'pending'"`
	Attempts     int        `bun:"attempts,notnull,default:0"`
	MaxAttempts  int        `bun:"max_attempts,notnull,default:0"`
	LockedBy     string     `bun:"locked_by,nullzero"`
	LockedAt     *time.Time `bun:"locked_at"`
	ScheduledAt  *time.Time `bun:"scheduled_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
	FailedAt     *time.Time `bun:"failed_at"`
	ErrorMessage string     `bun:"error_message,notnull,default:''"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
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
		LockedAt:     utcPtr(j.LockedAt),
		ScheduledAt:  utcPtr(j.ScheduledAt),
		CompletedAt:  utcPtr(j.CompletedAt),
		FailedAt:     utcPtr(j.FailedAt),
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt.UTC(),
		UpdatedAt:    j.UpdatedAt.UTC(),
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("claim/bun: parse job id %q: %w", m.ID, err)
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

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ── Transaction model ─────────────────────────────────────────────

type transactionModel struct {
	bun.BaseModel `bun:"table:claim_transactions"`

	ID           string            `bun:"id,pk"`
	Type         string            `bun:"type,notnull"`
	Amount       int64             `bun:"amount,notnull"`
	Currency     string            `bun:"currency,notnull,default:'USD'"`
	Description  string            `bun:"description,notnull,default:''"`
	Reference    string            `bun:"reference,notnull,default:''"`
	FromAccount  string            `bun:"from_account,notnull,default:''"`
	ToAccount    string            `bun:"to_account,notnull,default:''"`
	Metadata     map[string]string `bun:"metadata"`
	Status       string            `bun:"status,notnull,default:'pending'"`
	LockedBy     string            `bun:"locked_by,nullzero"`
	LockedAt     *time.Time        `bun:"locked_at"`
	ProcessedAt  *time.Time        `bun:"processed_at"`
	FailedAt     *time.Time        `bun:"failed_at"`
	ErrorMessage string            `bun:"error_message,notnull,default:''"`
	CreatedAt    time.Time         `bun:"created_at,notnull"`
	UpdatedAt    time.Time         `bun:"updated_at,notnull"`
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
		LockedAt:     utcPtr(t.LockedAt),
		ProcessedAt:  utcPtr(t.ProcessedAt),
		FailedAt:     utcPtr(t.FailedAt),
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	parsedID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("claim/bun: parse transaction id %q: %w", m.ID, err)
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

func fromTransactionModels(models []transactionModel) ([]*transaction.Transaction, error) {
	txns := make([]*transaction.Transaction, 0, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}
