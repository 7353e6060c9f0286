package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
)

// InsertJob stores the job as a Hash and indexes it. Pending jobs also
// enter the candidate index, or the scheduled index when not yet due.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	fields := jobToMap(j)
	var index []func(goredis.Pipeliner)
	if j.Status == job.StatusPending {
		member := candidateMember(j.CreatedAt, jID)
		fields["candidate"] = member
		index = append(index, func(pipe goredis.Pipeliner) {
			if j.ScheduledAt != nil {
				pipe.ZAdd(ctx, jobKeys.scheduled(), goredis.Z{Score: float64(j.ScheduledAt.UTC().UnixMicro()), Member: jID})
				return
			}
			pipe.ZAdd(ctx, jobKeys.candidates(), goredis.Z{Score: float64(-j.Priority), Member: member})
		})
	}

	ok, err := s.insert(ctx, jobKeys, jID, string(j.Status), j.CreatedAt, fields, j.LockedAt, index...)
	if err != nil {
		return wrap("insert job", err)
	}
	if !ok {
		return claim.ErrJobAlreadyExists
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKeys.item(jobID.String())).Result()
	if err != nil {
		return nil, wrap("get job", err)
	}
	if len(vals) == 0 {
		return nil, claim.ErrJobNotFound
	}
	return mapToJob(vals)
}

// ListJobs returns jobs with the given status, newest first.
func (s *Store) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	index := jobKeys.all()
	if status != "" {
		index = jobKeys.status(string(status))
	}
	ids, err := s.ids(ctx, index, true, opts.Offset, opts.Limit)
	if err != nil {
		return nil, wrap("list jobs", err)
	}
	return s.loadJobs(ctx, ids)
}

// ListClaimCandidates returns up to limit pending jobs due at now,
// highest priority first and oldest first within a priority. Scheduled
// jobs that have come due are promoted first, so only the head of the
// candidate index is read.
func (s *Store) ListClaimCandidates(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	err := promoteScript.Run(ctx, s.client,
		[]string{jobKeys.scheduled(), jobKeys.candidates()},
		micros(now), jobKeys.itemPrefix(),
	).Err()
	if err != nil {
		return nil, wrap("promote scheduled jobs", err)
	}

	members, err := s.ids(ctx, jobKeys.candidates(), false, 0, limit)
	if err != nil {
		return nil, wrap("list claim candidates", err)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = candidateID(m)
	}
	candidates, err := s.loadJobs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// A promoted job stays indexed if the clock is moved back.
	due := candidates[:0]
	for _, j := range candidates {
		if j.Status == job.StatusPending && j.Due(now) {
			due = append(due, j)
		}
	}
	return due, nil
}

// ListLockedJobs returns every job with a recorded lock holder, oldest
// lock first.
func (s *Store) ListLockedJobs(ctx context.Context) ([]*job.Job, error) {
	ids, err := s.ids(ctx, jobKeys.locked(), false, 0, 0)
	if err != nil {
		return nil, wrap("list locked jobs", err)
	}
	return s.loadJobs(ctx, ids)
}

// CountJobs returns the number of jobs with the given status.
func (s *Store) CountJobs(ctx context.Context, status job.Status) (int64, error) {
	index := jobKeys.all()
	if status != "" {
		index = jobKeys.status(string(status))
	}
	n, err := s.client.ZCard(ctx, index).Result()
	if err != nil {
		return 0, wrap("count jobs", err)
	}
	return n, nil
}

// TransitionJob applies t atomically with transitionScript.
func (s *Store) TransitionJob(ctx context.Context, t job.Transition) (bool, error) {
	sources := job.SourcesFor(t.To)
	if sources == nil {
		return false, fmt.Errorf("%w: cannot move a job to %q", claim.ErrInvalidStatus, string(t.To))
	}
	from := make([]string, len(sources))
	for i, st := range sources {
		from[i] = string(st)
	}

	at := formatTime(t.At)
	fields := []string{"updated_at", at}
	switch t.To {
	case job.StatusCompleted:
		fields = append(fields, "completed_at", at)
	case job.StatusFailed:
		fields = append(fields, "failed_at", at, "error_message", t.ErrorMessage)
	}

	return s.transition(ctx, jobKeys, t.JobID.String(), t.WorkerID, strings.Join(from, ","), string(t.To),
		t.To.Terminal(), t.To == job.StatusRunning, fields...)
}

func (s *Store) loadJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	keys := make([]string, len(ids))
	for i, jID := range ids {
		keys[i] = jobKeys.item(jID)
	}
	hashes, err := s.loadHashes(ctx, keys)
	if err != nil {
		return nil, wrap("load jobs", err)
	}

	jobs := make([]*job.Job, 0, len(hashes))
	for _, h := range hashes {
		j, convErr := mapToJob(h)
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func jobToMap(j *job.Job) map[string]any {
	m := map[string]any{
		"id":            j.ID.String(),
		"title":         j.Title,
		"description":   j.Description,
		"priority":      strconv.Itoa(j.Priority),
		"payload":       string(j.Payload),
		"status":        string(j.Status),
		"attempts":      strconv.Itoa(j.Attempts),
		"max_attempts":  strconv.Itoa(j.MaxAttempts),
		"error_message": j.ErrorMessage,
		"created_at":    formatTime(j.CreatedAt),
		"updated_at":    formatTime(j.UpdatedAt),
	}
	setLease(m, j.LockedBy, j.LockedAt)
	setTime(m, "scheduled_at", j.ScheduledAt)
	setTime(m, "completed_at", j.CompletedAt)
	setTime(m, "failed_at", j.FailedAt)
	return m
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("claim/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])        //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: claim.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		Lease: lock.Lease{
			LockedBy: m["locked_by"],
			LockedAt: parseTimePtr(m["locked_at"]),
		},
		ID:           jID,
		Title:        m["title"],
		Description:  m["description"],
		Priority:     priority,
		Status:       job.Status(m["status"]),
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		ScheduledAt:  parseTimePtr(m["scheduled_at"]),
		CompletedAt:  parseTimePtr(m["completed_at"]),
		FailedAt:     parseTimePtr(m["failed_at"]),
		ErrorMessage: m["error_message"],
	}
	if p := m["payload"]; p != "" {
		j.Payload = []byte(p)
	}
	return j, nil
}
