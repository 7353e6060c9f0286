package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
)

// DefaultTTL is the lock lifetime used when none is configured.
const DefaultTTL = 30 * time.Second

// Emitter receives lock lifecycle events.
// ext.Registry satisfies this interface.
type Emitter interface {
	EmitLockAcquired(ctx context.Context, kind Kind, recordID id.ID, workerID string)
	EmitLockContended(ctx context.Context, kind Kind, recordID id.ID, workerID string)
	EmitLockReleased(ctx context.Context, kind Kind, recordID id.ID, workerID string, released bool)
	EmitLocksExpired(ctx context.Context, kind Kind, count int64)
}

// SweepResult counts the locks cleared by one sweep, per kind.
type SweepResult struct {
	Jobs         int64
	Transactions int64
}

// Total returns the number of locks cleared across kinds.
func (r SweepResult) Total() int64 { return r.Jobs + r.Transactions }

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets how long a lock stays valid. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithClock sets the time source used for every lock timestamp and expiry
// comparison.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.clock = now
		}
	}
}

// WithEmitter sets the lifecycle event sink.
func WithEmitter(e Emitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager arbitrates claims over every lockable kind. It holds no lock
// state of its own; all state lives in the Store.
//
// An alive but slow worker loses its claim once the TTL elapses, even in
// the middle of an operation. Expiry is the only crash recovery mechanism,
// so the TTL must be longer than the slowest expected operation.
type Manager struct {
	store   Store
	ttl     time.Duration
	clock   func() time.Time
	emitter Emitter
	logger  *slog.Logger
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured lock lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Now returns the current time from the configured clock, in UTC.
func (m *Manager) Now() time.Time { return m.clock().UTC() }

// Acquire claims recordID for workerID. It returns false without error when
// the item is not pending or holds a lock younger than the TTL. It never
// waits for a lock to free.
func (m *Manager) Acquire(ctx context.Context, kind Kind, recordID id.ID, workerID string) (bool, error) {
	if err := validate(kind, workerID); err != nil {
		return false, err
	}

	now := m.Now()
	ok, err := m.store.AcquireLock(ctx, kind, recordID, workerID, now, now.Add(-m.ttl))
	if err != nil {
		return false, err
	}

	if ok {
		m.logger.Debug("lock acquired",
			slog.String("kind", string(kind)),
			slog.String("record_id", recordID.String()),
			slog.String("worker_id", workerID),
		)
		if m.emitter != nil {
			m.emitter.EmitLockAcquired(ctx, kind, recordID, workerID)
		}
		return true, nil
	}

	if m.emitter != nil {
		m.emitter.EmitLockContended(ctx, kind, recordID, workerID)
	}
	return false, nil
}

// Release clears workerID's lock on recordID. Releasing a lock that was
// already reclaimed by another worker, or never held, returns false.
func (m *Manager) Release(ctx context.Context, kind Kind, recordID id.ID, workerID string) (bool, error) {
	if err := validate(kind, workerID); err != nil {
		return false, err
	}

	released, err := m.store.ReleaseLock(ctx, kind, recordID, workerID, m.Now())
	if err != nil {
		return false, err
	}
	if m.emitter != nil {
		m.emitter.EmitLockReleased(ctx, kind, recordID, workerID, released)
	}
	return released, nil
}

// SweepKind clears every expired lock of one kind.
func (m *Manager) SweepKind(ctx context.Context, kind Kind) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", claim.ErrUnknownKind, string(kind))
	}

	now := m.Now()
	n, err := m.store.SweepExpiredLocks(ctx, kind, now.Add(-m.ttl), now)
	if err != nil {
		return 0, fmt.Errorf("sweep %s locks: %w", kind, err)
	}
	if n > 0 {
		m.logger.Info("expired locks cleared",
			slog.String("kind", string(kind)),
			slog.Int64("count", n),
		)
	}
	if m.emitter != nil {
		m.emitter.EmitLocksExpired(ctx, kind, n)
	}
	return n, nil
}

// SweepExpired clears expired locks of every kind. A failure on one kind
// does not prevent the others from being swept; the failures are joined.
func (m *Manager) SweepExpired(ctx context.Context) (SweepResult, error) {
	var (
		res  SweepResult
		errs []error
	)
	for _, kind := range Kinds {
		n, err := m.SweepKind(ctx, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch kind {
		case KindJob:
			res.Jobs = n
		case KindTransaction:
			res.Transactions = n
		}
	}
	return res, errors.Join(errs...)
}

// Stale reports whether lease would be reclaimable now.
func (m *Manager) Stale(lease Lease) bool {
	return lease.Expired(m.Now(), m.ttl)
}

func validate(kind Kind, workerID string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", claim.ErrUnknownKind, string(kind))
	}
	if workerID == "" {
		return claim.ErrEmptyWorkerID
	}
	return nil
}
