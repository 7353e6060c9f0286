package store

import (
	"context"

	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// Store is the aggregate persistence interface.
// A single backend implements all of the subsystem stores.
type Store interface {
	lock.Store
	job.Store
	transaction.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
