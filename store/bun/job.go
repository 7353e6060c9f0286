package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
)

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	res, err := s.db.NewInsert().
		Model(toJobModel(j)).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return wrap("insert job", err)
	}
	if affected(res) == 0 {
		return claim.ErrJobAlreadyExists
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, claim.ErrJobNotFound
		}
		return nil, wrap("get job", err)
	}
	return fromJobModel(m)
}

// ListJobs returns jobs with the given status, newest first. An empty
// status lists every job.
func (s *Store) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	q = q.Order("created_at DESC", "id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list jobs", err)
	}
	return fromJobModels(models)
}

// ListClaimCandidates returns up to limit pending jobs due at now,
// highest priority first and oldest first within a priority.
func (s *Store) ListClaimCandidates(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(job.StatusPending)).
		Where("(scheduled_at IS NULL OR scheduled_at <= ?)", now.UTC()).
		Order("priority DESC", "created_at ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list claim candidates", err)
	}
	return fromJobModels(models)
}

// ListLockedJobs returns every job with a recorded lock holder, oldest
// lock first.
func (s *Store) ListLockedJobs(ctx context.Context) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("locked_at IS NOT NULL").
		Order("locked_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list locked jobs", err)
	}
	return fromJobModels(models)
}

// CountJobs returns the number of jobs with the given status.
func (s *Store) CountJobs(ctx context.Context, status job.Status) (int64, error) {
	q := s.db.NewSelect().Model((*jobModel)(nil))
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, wrap("count jobs", err)
	}
	return int64(n), nil
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

	at := t.At.UTC()
	q := s.db.NewUpdate().
		TableExpr(jobsTable).
		Set("status = ?", string(t.To)).
		Set("updated_at = ?", at)

	switch t.To {
	case job.StatusRunning:
		q = q.Set("attempts = attempts + 1")
	case job.StatusCompleted:
		q = q.Set("completed_at = ?", at).
			Set("locked_by = NULL").
			Set("locked_at = NULL")
	case job.StatusFailed:
		q = q.Set("failed_at = ?", at).
			Set("error_message = ?", t.ErrorMessage).
			Set("locked_by = NULL").
			Set("locked_at = NULL")
	}

	res, err := q.
		Where("id = ?", t.JobID.String()).
		Where("locked_by = ?", t.WorkerID).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, wrap("transition job", err)
	}
	if affected(res) == 1 {
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
