package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/claim"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store"
	"github.com/xraph/claim/transaction"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ store.Store       = (*Store)(nil)
	_ lock.Store        = (*Store)(nil)
	_ job.Store         = (*Store)(nil)
	_ transaction.Store = (*Store)(nil)
)

// Store is a Bun ORM implementation of store.Store.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
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

// New creates a new Bun store. The Store will not close db on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

type index struct {
	name    string
	columns []string
	where   string
}

// Migrate creates the tables and indexes from the models. Every statement
// is IF NOT EXISTS, so Migrate is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	tables := []struct {
		model   any
		indexes []index
	}{
		{(*jobModel)(nil), []index{
			{"idx_claim_jobs_candidates", []string{"priority DESC", "created_at ASC"}, "status = 'pending'"},
			{"idx_claim_jobs_locked_at", []string{"locked_at"}, "locked_at IS NOT NULL"},
			{"idx_claim_jobs_status", []string{"status", "created_at DESC"}, ""},
		}},
		{(*transactionModel)(nil), []index{
			{"idx_claim_transactions_pending", []string{"created_at ASC"}, "status = 'pending'"},
			{"idx_claim_transactions_locked_at", []string{"locked_at"}, "locked_at IS NOT NULL"},
			{"idx_claim_transactions_status", []string{"status", "created_at DESC"}, ""},
		}},
	}

	for _, tbl := range tables {
		if _, err := s.db.NewCreateTable().Model(tbl.model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("%w: create table: %w", claim.ErrMigrationFailed, err)
		}
		for _, idx := range tbl.indexes {
			q := s.db.NewCreateIndex().Model(tbl.model).Index(idx.name).IfNotExists()
			for _, col := range idx.columns {
				q = q.ColumnExpr(col)
			}
			if idx.where != "" {
				q = q.Where(idx.where)
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("%w: create index %s: %w", claim.ErrMigrationFailed, idx.name, err)
			}
		}
	}

	s.logger.Debug("claim schema ready", slog.String("dialect", s.db.Dialect().Name().String()))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
