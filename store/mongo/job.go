package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
)

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	if _, err := s.db.Collection(colJobs).InsertOne(ctx, toJobModel(j)); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return claim.ErrJobAlreadyExists
		}
		return wrap("insert job", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, claim.ErrJobNotFound
		}
		return nil, wrap("get job", err)
	}
	return fromJobModel(&m)
}

// ListJobs returns jobs with the given status, newest first.
func (s *Store) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	sort := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	return s.findJobs(ctx, "list jobs", statusFilter(string(status)), findOptions(sort, opts.Offset, opts.Limit))
}

// ListClaimCandidates returns up to limit pending jobs due at now,
// highest priority first and oldest first within a priority.
func (s *Store) ListClaimCandidates(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	filter := bson.M{
		"status": string(job.StatusPending),
		"$or": bson.A{
			bson.M{"scheduled_at": nil},
			bson.M{"scheduled_at": bson.M{"$lte": now.UTC()}},
		},
	}
	sort := bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	return s.findJobs(ctx, "list claim candidates", filter, findOptions(sort, 0, limit))
}

// ListLockedJobs returns every job with a recorded lock holder, oldest
// lock first.
func (s *Store) ListLockedJobs(ctx context.Context) ([]*job.Job, error) {
	filter := bson.M{"locked_at": bson.M{"$ne": nil}}
	sort := bson.D{{Key: "locked_at", Value: 1}}
	return s.findJobs(ctx, "list locked jobs", filter, findOptions(sort, 0, 0))
}

// CountJobs returns the number of jobs with the given status.
func (s *Store) CountJobs(ctx context.Context, status job.Status) (int64, error) {
	n, err := s.db.Collection(colJobs).CountDocuments(ctx, statusFilter(string(status)))
	if err != nil {
		return 0, wrap("count jobs", err)
	}
	return n, nil
}

// TransitionJob applies t as one filtered UpdateOne guarded by the lock
// holder and the allowed source statuses.
func (s *Store) TransitionJob(ctx context.Context, t job.Transition) (bool, error) {
	sources := job.SourcesFor(t.To)
	if sources == nil {
		return false, fmt.Errorf("%w: cannot move a job to %q", claim.ErrInvalidStatus, string(t.To))
	}
	from := make(bson.A, len(sources))
	for i, st := range sources {
		from[i] = string(st)
	}

	at := t.At.UTC()
	set := bson.M{"status": string(t.To), "updated_at": at}
	update := bson.M{"$set": set}
	switch t.To {
	case job.StatusRunning:
		update["$inc"] = bson.M{"attempts": 1}
	case job.StatusCompleted:
		set["completed_at"] = at
		update["$unset"] = unlock
	case job.StatusFailed:
		set["failed_at"] = at
		set["error_message"] = t.ErrorMessage
		update["$unset"] = unlock
	}

	res, err := s.db.Collection(colJobs).UpdateOne(ctx,
		bson.M{"_id": t.JobID.String(), "locked_by": t.WorkerID, "status": bson.M{"$in": from}},
		update,
	)
	if err != nil {
		return false, wrap("transition job", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	exists, err := s.exists(ctx, colJobs, t.JobID.String())
	if err != nil {
		return false, err
	}
	if !exists {
		return false, claim.ErrJobNotFound
	}
	return false, nil
}

func (s *Store) findJobs(ctx context.Context, op string, filter bson.M, opts *options.FindOptionsBuilder) ([]*job.Job, error) {
	cursor, err := s.db.Collection(colJobs).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap(op, err)
	}

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, wrap(op, err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
