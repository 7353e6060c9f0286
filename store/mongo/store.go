package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/claim"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store"
	"github.com/xraph/claim/transaction"
)

// Collection name constants.
const (
	colJobs         = "claim_jobs"
	colTransactions = "claim_transactions"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ store.Store       = (*Store)(nil)
	_ lock.Store        = (*Store)(nil)
	_ job.Store         = (*Store)(nil)
	_ transaction.Store = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store.
// The caller owns the client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store over db.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates indexes for the claim collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: %s indexes: %w", claim.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func wrap(op string, err error) error {
	return fmt.Errorf("claim/mongo: %s: %w", op, err)
}

// collectionFor maps a lock kind to its collection name.
func collectionFor(kind lock.Kind) (string, error) {
	switch kind {
	case lock.KindJob:
		return colJobs, nil
	case lock.KindTransaction:
		return colTransactions, nil
	default:
		return "", kind.NotFound()
	}
}

func (s *Store) exists(ctx context.Context, col, recordID string) (bool, error) {
	n, err := s.db.Collection(col).CountDocuments(ctx, bson.M{"_id": recordID}, options.Count().SetLimit(1))
	if err != nil {
		return false, wrap("check "+col, err)
	}
	return n > 0, nil
}

// findOptions builds sort, skip and limit options. A zero limit returns
// every document.
func findOptions(sort bson.D, offset, limit int) *options.FindOptionsBuilder {
	o := options.Find().SetSort(sort)
	if offset > 0 {
		o = o.SetSkip(int64(offset))
	}
	if limit > 0 {
		o = o.SetLimit(int64(limit))
	}
	return o
}

func statusFilter(status string) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": status}
}

// unlock is the update fragment that clears a lease.
var unlock = bson.M{"locked_by": "", "locked_at": ""}

// migrationIndexes returns the index definitions for the claim collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	lockedAt := mongod.IndexModel{
		Keys: bson.D{{Key: "locked_at", Value: 1}},
		Options: options.Index().SetPartialFilterExpression(bson.M{
			"locked_at": bson.M{"$exists": true},
		}),
	}
	statusCreated := mongod.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
	}

	return map[string][]mongod.IndexModel{
		colJobs: {
			// Candidate scan: pending jobs by priority then age.
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "created_at", Value: 1},
			}},
			lockedAt,
			statusCreated,
		},
		colTransactions: {
			lockedAt,
			statusCreated,
		},
	}
}
