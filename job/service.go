package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
)

// Locker is the subset of lock.Manager the Service depends on.
type Locker interface {
	Acquire(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string) (bool, error)
	Now() time.Time
}

// Emitter receives job lifecycle events.
// ext.Registry satisfies this interface.
type Emitter interface {
	EmitJobSubmitted(ctx context.Context, j *Job)
	EmitJobClaimed(ctx context.Context, j *Job, workerID string)
	EmitJobTransitioned(ctx context.Context, jobID id.JobID, to Status, workerID string, ok bool)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWindow sets how many candidates ClaimNext scans. Non-positive values
// are ignored.
func WithWindow(k int) ServiceOption {
	return func(s *Service) {
		if k > 0 {
			s.window = k
		}
	}
}

// WithEmitter sets the lifecycle event sink.
func WithEmitter(e Emitter) ServiceOption {
	return func(s *Service) { s.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// Service selects and transitions jobs. It is safe for concurrent use by
// any number of workers in any number of processes.
type Service struct {
	store   Store
	locks   Locker
	window  int
	emitter Emitter
	logger  *slog.Logger
}

// NewService creates a job Service.
func NewService(store Store, locks Locker, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		locks:  locks,
		window: DefaultWindow,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the candidate window size.
func (s *Service) Window() int { return s.window }

// Submit creates a pending, unlocked job.
func (s *Service) Submit(ctx context.Context, title string, opts ...SubmitOption) (*Job, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", claim.ErrInvalidJob)
	}

	o := DefaultSubmitOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("%w: %w", claim.ErrInvalidJob, err)
		}
	}

	j := &Job{
		Entity:      claim.NewEntityAt(s.locks.Now()),
		ID:          id.NewJobID(),
		Title:       title,
		Description: o.Description,
		Priority:    o.Priority,
		Payload:     o.Payload,
		Status:      StatusPending,
		MaxAttempts: o.MaxAttempts,
		ScheduledAt: o.ScheduledAt,
	}
	if err := s.store.InsertJob(ctx, j); err != nil {
		return nil, err
	}

	if s.emitter != nil {
		s.emitter.EmitJobSubmitted(ctx, j)
	}
	return j, nil
}

// ClaimNext claims the first job it can from the top of the pending
// candidates and returns it with its new lock. It returns nil, nil when
// none of the candidates in the window could be claimed.
func (s *Service) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	if workerID == "" {
		return nil, claim.ErrEmptyWorkerID
	}

	candidates, err := s.store.ListClaimCandidates(ctx, s.locks.Now(), s.window)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		ok, acqErr := s.locks.Acquire(ctx, lock.KindJob, c.ID, workerID)
		if errors.Is(acqErr, claim.ErrJobNotFound) {
			continue
		}
		if acqErr != nil {
			return nil, acqErr
		}
		if !ok {
			continue
		}

		j, getErr := s.store.GetJob(ctx, c.ID)
		if getErr != nil {
			return nil, fmt.Errorf("reload claimed job %s: %w", c.ID, getErr)
		}
		if s.emitter != nil {
			s.emitter.EmitJobClaimed(ctx, j, workerID)
		}
		return j, nil
	}

	return nil, nil //nolint:nilnil // no claimable job is not an error
}

// SetStatus moves a job the caller holds to status. It returns false
// without error when workerID no longer holds the lock or the job is not in
// a status that allows the move; callers must check the result.
func (s *Service) SetStatus(ctx context.Context, jobID id.JobID, status Status, workerID, errMsg string) (bool, error) {
	if workerID == "" {
		return false, claim.ErrEmptyWorkerID
	}
	if SourcesFor(status) == nil {
		return false, fmt.Errorf("%w: cannot move a job to %q", claim.ErrInvalidStatus, string(status))
	}

	ok, err := s.store.TransitionJob(ctx, Transition{
		JobID:        jobID,
		WorkerID:     workerID,
		To:           status,
		ErrorMessage: errMsg,
		At:           s.locks.Now(),
	})
	if err != nil {
		return false, err
	}

	if !ok {
		s.logger.Warn("job transition rejected",
			slog.String("job_id", jobID.String()),
			slog.String("worker_id", workerID),
			slog.String("status", string(status)),
		)
	}
	if s.emitter != nil {
		s.emitter.EmitJobTransitioned(ctx, jobID, status, workerID, ok)
	}
	return ok, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID id.JobID) (*Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// List returns jobs with status, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, status Status, opts ListOpts) ([]*Job, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", claim.ErrInvalidStatus, string(status))
	}
	return s.store.ListJobs(ctx, status, opts)
}

// Count returns the number of jobs with status. An empty status counts all.
func (s *Service) Count(ctx context.Context, status Status) (int64, error) {
	return s.store.CountJobs(ctx, status)
}
