package job

import (
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to be claimed.
	StatusPending Status = "pending"
	// StatusRunning means the lock holder is executing the job.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed. It is not retried.
	StatusFailed Status = "failed"
)

// Statuses lists every job status.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SourcesFor returns the statuses a job may hold when the lock holder
// moves it to target. It returns nil for targets that cannot be set through
// a transition.
func SourcesFor(target Status) []Status {
	switch target {
	case StatusRunning:
		return []Status{StatusPending}
	case StatusCompleted, StatusFailed:
		return []Status{StatusPending, StatusRunning}
	default:
		return nil
	}
}

// Job is a unit of background work.
type Job struct {
	claim.Entity
	lock.Lease

	ID           id.JobID   `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Priority     int        `json:"priority"`
	Payload      []byte     `json:"payload,omitempty"`
	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

var _ lock.Lockable = (*Job)(nil)

// LockKind implements lock.Lockable.
func (j *Job) LockKind() lock.Kind { return lock.KindJob }

// LockID implements lock.Lockable.
func (j *Job) LockID() id.ID { return j.ID }

// LockStatus implements lock.Lockable.
func (j *Job) LockStatus() string { return string(j.Status) }

// LockLease implements lock.Lockable.
func (j *Job) LockLease() lock.Lease { return j.Lease }

// Due reports whether the job may be claimed at now.
func (j *Job) Due(now time.Time) bool {
	return j.ScheduledAt == nil || !j.ScheduledAt.After(now)
}
