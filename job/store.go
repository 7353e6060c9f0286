package job

import (
	"context"
	"time"

	"github.com/xraph/claim/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Transition describes a status change requested by a lock holder.
// Backends apply it as one conditional update matching
// id = JobID AND locked_by = WorkerID AND status IN SourcesFor(To), and
// apply the side effects of the target status in the same statement:
//
//   - running: attempts = attempts + 1
//   - completed: completed_at = At, lock cleared
//   - failed: failed_at = At, error_message = ErrorMessage, lock cleared
type Transition struct {
	JobID        id.JobID
	WorkerID     string
	To           Status
	ErrorMessage string
	At           time.Time
}

// Store defines the persistence contract for jobs.
type Store interface {
	// InsertJob persists a new job.
	InsertJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns jobs with the given status, newest first. An empty
	// status matches every job.
	ListJobs(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// ListClaimCandidates returns up to limit pending jobs that are due at
	// now, ordered by priority descending then created_at ascending.
	ListClaimCandidates(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// ListLockedJobs returns every job that currently records a lock holder.
	ListLockedJobs(ctx context.Context) ([]*Job, error)

	// CountJobs returns the number of jobs with the given status. An empty
	// status counts every job.
	CountJobs(ctx context.Context, status Status) (int64, error)

	// TransitionJob applies t and reports whether a row changed. When
	// nothing changed because the job does not exist it returns
	// claim.ErrJobNotFound.
	TransitionJob(ctx context.Context, t Transition) (bool, error)
}
