// Package redis implements store.Store on Redis. Records are stored as
// Hashes, Sorted Sets index them by status, creation time and lock time,
// and every lock change runs as a Lua script so competing processes see
// one atomic conditional update.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store"
	"github.com/xraph/claim/transaction"
)

// Compile-time interface checks.
var (
	_ store.Store       = (*Store)(nil)
	_ lock.Store        = (*Store)(nil)
	_ job.Store         = (*Store)(nil)
	_ transaction.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate loads the Lua scripts into the server script cache. Redis needs
// no schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, script := range []*goredis.Script{acquireScript, releaseScript, sweepScript, transitionScript, promoteScript} {
		if err := script.Load(ctx, s.client).Err(); err != nil {
			return wrap("load script", err)
		}
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// Close is a no-op; the caller owns the Redis client lifecycle. Once the
// client is closed every call fails with claim.ErrStoreClosed.
func (s *Store) Close() error { return nil }
