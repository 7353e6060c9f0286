package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
)

const jobColumns = `id, title, description, priority, payload, status,
	attempts, max_attempts, locked_by, locked_at, scheduled_at,
	completed_at, failed_at, error_message, created_at, updated_at`

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO claim_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		j.ID.String(), j.Title, j.Description, j.Priority, j.Payload, string(j.Status),
		j.Attempts, j.MaxAttempts, nullString(j.LockedBy), j.LockedAt, j.ScheduledAt,
		j.CompletedAt, j.FailedAt, j.ErrorMessage, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return claim.ErrJobAlreadyExists
		}
		return wrap("insert job", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM claim_jobs WHERE id = $1`,
		jobID.String(),
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, claim.ErrJobNotFound
		}
		return nil, wrap("get job", err)
	}
	return j, nil
}

// ListJobs returns jobs with the given status, newest first. An empty
// status lists every job.
func (s *Store) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM claim_jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		string(status), nullLimit(opts.Limit), max(opts.Offset, 0),
	)
	if err != nil {
		return nil, wrap("list jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListClaimCandidates returns up to limit pending jobs that are due at
// now, highest priority first and oldest first within a priority. Locked
// rows are included; the acquire decides whether their lock is stale.
func (s *Store) ListClaimCandidates(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM claim_jobs
		WHERE status = 'pending'
		  AND (scheduled_at IS NULL OR scheduled_at <= $1)
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT $2`,
		now.UTC(), nullLimit(limit),
	)
	if err != nil {
		return nil, wrap("list claim candidates", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListLockedJobs returns every job with a recorded lock holder, oldest
// lock first.
func (s *Store) ListLockedJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM claim_jobs
		WHERE locked_at IS NOT NULL
		ORDER BY locked_at ASC`,
	)
	if err != nil {
		return nil, wrap("list locked jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs with the given status.
func (s *Store) CountJobs(ctx context.Context, status job.Status) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM claim_jobs WHERE ($1 = '' OR status = $1)`,
		string(status),
	).Scan(&n)
	if err != nil {
		return 0, wrap("count jobs", err)
	}
	return n, nil
}

// TransitionJob applies t as one conditional UPDATE guarded by the lock
// holder and the allowed source statuses.
func (s *Store) TransitionJob(ctx context.Context, t job.Transition) (bool, error) {
	sources := job.SourcesFor(t.To)
	if sources == nil {
		return false, fmt.Errorf("%w: cannot move a job to %q", claim.ErrInvalidStatus, string(t.To))
	}
	from := make([]string, len(sources))
	for i, st := range sources {
		from[i] = string(st)
	}

	args := []any{t.JobID.String(), t.WorkerID, string(t.To), t.At.UTC(), from}
	var set string
	switch t.To {
	case job.StatusRunning:
		set = `attempts = attempts + 1`
	case job.StatusCompleted:
		set = `completed_at = $4, locked_by = NULL, locked_at = NULL`
	case job.StatusFailed:
		set = `failed_at = $4, error_message = $6, locked_by = NULL, locked_at = NULL`
		args = append(args, t.ErrorMessage)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE claim_jobs
		SET status = $3, updated_at = $4, `+set+`
		WHERE id = $1 AND locked_by = $2 AND status = ANY($5::text[])`,
		args...,
	)
	if err != nil {
		return false, wrap("transition job", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	exists, err := s.exists(ctx, jobsTable, t.JobID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, claim.ErrJobNotFound
	}
	return false, nil
}

// scanJob scans a single row into a job.Job.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		statusStr string
		lockedBy  *string
	)
	err := row.Scan(
		&idStr, &j.Title, &j.Description, &j.Priority, &j.Payload, &statusStr,
		&j.Attempts, &j.MaxAttempts, &lockedBy, &j.LockedAt, &j.ScheduledAt,
		&j.CompletedAt, &j.FailedAt, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("claim/postgres: parse job id %q: %w", idStr, err)
	}
	j.ID = parsedID
	j.Status = job.Status(statusStr)
	j.LockedBy = derefString(lockedBy)
	j.LockedAt = utcPtr(j.LockedAt)
	j.ScheduledAt = utcPtr(j.ScheduledAt)
	j.CompletedAt = utcPtr(j.CompletedAt)
	j.FailedAt = utcPtr(j.FailedAt)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, wrap("scan job row", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate job rows", err)
	}
	return jobs, nil
}
