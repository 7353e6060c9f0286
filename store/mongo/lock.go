package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
)

// AcquireLock claims the document with one filtered UpdateOne. When
// nothing matches, an existence check separates contention from a missing
// document.
func (s *Store) AcquireLock(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string, now, staleBefore time.Time) (bool, error) {
	col, err := collectionFor(kind)
	if err != nil {
		return false, err
	}

	now = now.UTC()
	rid := recordID.String()
	filter := bson.M{
		"_id":    rid,
		"status": "pending",
		"$or": bson.A{
			bson.M{"locked_at": nil},
			bson.M{"locked_at": bson.M{"$lte": staleBefore.UTC()}},
		},
	}
	update := bson.M{"$set": bson.M{
		"locked_by":  workerID,
		"locked_at":  now,
		"updated_at": now,
	}}

	res, err := s.db.Collection(col).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, wrap("acquire "+string(kind)+" lock", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	exists, err := s.exists(ctx, col, rid)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, kind.NotFound()
	}
	return false, nil
}

// ReleaseLock clears the lock only if workerID holds it.
func (s *Store) ReleaseLock(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string, now time.Time) (bool, error) {
	col, err := collectionFor(kind)
	if err != nil {
		return false, err
	}

	res, err := s.db.Collection(col).UpdateOne(ctx,
		bson.M{"_id": recordID.String(), "locked_by": workerID},
		bson.M{
			"$unset": unlock,
			"$set":   bson.M{"updated_at": now.UTC()},
		},
	)
	if err != nil {
		return false, wrap("release "+string(kind)+" lock", err)
	}
	return res.MatchedCount == 1, nil
}

// SweepExpiredLocks clears every lock older than staleBefore. Status is
// left untouched.
func (s *Store) SweepExpiredLocks(ctx context.Context, kind lock.Kind, staleBefore, now time.Time) (int64, error) {
	col, err := collectionFor(kind)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Collection(col).UpdateMany(ctx,
		bson.M{"locked_at": bson.M{"$lt": staleBefore.UTC()}},
		bson.M{
			"$unset": unlock,
			"$set":   bson.M{"updated_at": now.UTC()},
		},
	)
	if err != nil {
		return 0, wrap("sweep "+string(kind)+" locks", err)
	}
	return res.ModifiedCount, nil
}
