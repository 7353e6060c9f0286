package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ lock.Store        = (*Store)(nil)
	_ job.Store         = (*Store)(nil)
	_ transaction.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Every conditional update runs under the
// write lock, which makes it atomic with respect to every other call.
// Intended for unit testing, development and single-process deployments.
type Store struct {
	mu     sync.RWMutex
	closed bool

	jobs map[string]*job.Job
	txns map[string]*transaction.Transaction
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
		txns: make(map[string]*transaction.Transaction),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return claim.ErrStoreClosed
	}
	return nil
}

// Ping succeeds until the store is closed.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return claim.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Later calls fail with
// claim.ErrStoreClosed; the data is kept.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Lock Store
// ──────────────────────────────────────────────────

// record is the lock-relevant view of a stored item.
type record struct {
	lease   *lock.Lease
	pending bool
	updated *time.Time
}

func (m *Store) record(kind lock.Kind, recordID id.ID) (record, error) {
	key := recordID.String()
	switch kind {
	case lock.KindJob:
		j, ok := m.jobs[key]
		if !ok {
			return record{}, claim.ErrJobNotFound
		}
		return record{&j.Lease, j.Status == job.StatusPending, &j.UpdatedAt}, nil
	case lock.KindTransaction:
		t, ok := m.txns[key]
		if !ok {
			return record{}, claim.ErrTransactionNotFound
		}
		return record{&t.Lease, t.Status == transaction.StatusPending, &t.UpdatedAt}, nil
	default:
		return record{}, kind.NotFound()
	}
}

// AcquireLock claims the item if it is pending and unlocked or stale.
func (m *Store) AcquireLock(_ context.Context, kind lock.Kind, recordID id.ID, workerID string, now, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, claim.ErrStoreClosed
	}

	r, err := m.record(kind, recordID)
	if err != nil {
		return false, err
	}
	if !r.pending {
		return false, nil
	}
	if r.lease.LockedAt != nil && r.lease.LockedAt.After(staleBefore) {
		return false, nil
	}

	at := now.UTC()
	r.lease.LockedBy = workerID
	r.lease.LockedAt = &at
	*r.updated = at
	return true, nil
}

// ReleaseLock clears the lock if workerID holds it.
func (m *Store) ReleaseLock(_ context.Context, kind lock.Kind, recordID id.ID, workerID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, claim.ErrStoreClosed
	}

	r, err := m.record(kind, recordID)
	if err != nil {
		if kind.Valid() {
			return false, nil
		}
		return false, err
	}
	if r.lease.LockedBy != workerID {
		return false, nil
	}

	*r.lease = lock.Lease{}
	*r.updated = now.UTC()
	return true, nil
}

// SweepExpiredLocks clears every lock of kind older than staleBefore.
func (m *Store) SweepExpiredLocks(_ context.Context, kind lock.Kind, staleBefore, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, claim.ErrStoreClosed
	}

	var leases []record
	switch kind {
	case lock.KindJob:
		for _, j := range m.jobs {
			leases = append(leases, record{lease: &j.Lease, updated: &j.UpdatedAt})
		}
	case lock.KindTransaction:
		for _, t := range m.txns {
			leases = append(leases, record{lease: &t.Lease, updated: &t.UpdatedAt})
		}
	default:
		return 0, kind.NotFound()
	}

	var n int64
	for _, r := range leases {
		if r.lease.LockedAt == nil || !r.lease.LockedAt.Before(staleBefore) {
			continue
		}
		*r.lease = lock.Lease{}
		*r.updated = now.UTC()
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// InsertJob persists a new job.
func (m *Store) InsertJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return claim.ErrStoreClosed
	}

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return claim.ErrJobAlreadyExists
	}
	m.jobs[key] = copyJob(j)
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, claim.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, claim.ErrJobNotFound
	}
	return copyJob(j), nil
}

// ListJobs returns jobs with the given status, newest first.
func (m *Store) ListJobs(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, claim.ErrStoreClosed
	}

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if status != "" && j.Status != status {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.SliceStable(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ListClaimCandidates returns due pending jobs by priority, oldest first
// within a priority.
func (m *Store) ListClaimCandidates(_ context.Context, now time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, claim.ErrStoreClosed
	}

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != job.StatusPending || !j.Due(now) {
			continue
		}
		candidates = append(candidates, copyJob(j))
	}

	sort.SliceStable(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	return paginate(candidates, 0, limit), nil
}

// ListLockedJobs returns every job with a recorded lock holder.
func (m *Store) ListLockedJobs(_ context.Context) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, claim.ErrStoreClosed
	}

	var result []*job.Job
	for _, j := range m.jobs {
		if j.Held() {
			result = append(result, copyJob(j))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].LockedAt.Before(*result[k].LockedAt)
	})
	return result, nil
}

// CountJobs returns the number of jobs with the given status.
func (m *Store) CountJobs(_ context.Context, status job.Status) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, claim.ErrStoreClosed
	}

	var count int64
	for _, j := range m.jobs {
		if status == "" || j.Status == status {
			count++
		}
	}
	return count, nil
}

// TransitionJob applies a status change if the worker holds the lock and
// the job is in an allowed source status.
func (m *Store) TransitionJob(_ context.Context, t job.Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, claim.ErrStoreClosed
	}

	j, ok := m.jobs[t.JobID.String()]
	if !ok {
		return false, claim.ErrJobNotFound
	}
	if j.LockedBy != t.WorkerID || !slices.Contains(job.SourcesFor(t.To), j.Status) {
		return false, nil
	}

	at := t.At.UTC()
	j.Status = t.To
	j.UpdatedAt = at
	switch t.To {
	case job.StatusRunning:
		j.Attempts++
	case job.StatusCompleted:
		j.CompletedAt = &at
		j.Lease = lock.Lease{}
	case job.StatusFailed:
		j.FailedAt = &at
		j.ErrorMessage = t.ErrorMessage
		j.Lease = lock.Lease{}
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Transaction Store
// ──────────────────────────────────────────────────

// InsertTransaction persists a new transaction.
func (m *Store) InsertTransaction(_ context.Context, t *transaction.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return claim.ErrStoreClosed
	}

	key := t.ID.String()
	if _, exists := m.txns[key]; exists {
		return claim.ErrTransactionAlreadyExists
	}
	m.txns[key] = copyTxn(t)
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (m *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, claim.ErrStoreClosed
	}

	t, ok := m.txns[txnID.String()]
	if !ok {
		return nil, claim.ErrTransactionNotFound
	}
	return copyTxn(t), nil
}

// ListTransactions returns transactions with the given status, newest
// first unless opts.Oldest is set.
func (m *Store) ListTransactions(_ context.Context, status transaction.Status, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, claim.ErrStoreClosed
	}

	result := make([]*transaction.Transaction, 0, len(m.txns))
	for _, t := range m.txns {
		if status != "" && t.Status != status {
			continue
		}
		result = append(result, copyTxn(t))
	}

	sort.SliceStable(result, func(i, k int) bool {
		if opts.Oldest {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ListLockedTransactions returns every transaction with a recorded lock
// holder.
func (m *Store) ListLockedTransactions(_ context.Context) ([]*transaction.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, claim.ErrStoreClosed
	}

	var result []*transaction.Transaction
	for _, t := range m.txns {
		if t.Held() {
			result = append(result, copyTxn(t))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].LockedAt.Before(*result[k].LockedAt)
	})
	return result, nil
}

// CountTransactions returns the number of transactions with the given
// status.
func (m *Store) CountTransactions(_ context.Context, status transaction.Status) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, claim.ErrStoreClosed
	}

	var count int64
	for _, t := range m.txns {
		if status == "" || t.Status == status {
			count++
		}
	}
	return count, nil
}

// TransitionTransaction applies a status change if the worker holds the
// lock and the transaction is in t.From.
func (m *Store) TransitionTransaction(_ context.Context, tr transaction.Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, claim.ErrStoreClosed
	}

	t, ok := m.txns[tr.TransactionID.String()]
	if !ok {
		return false, claim.ErrTransactionNotFound
	}
	if t.LockedBy != tr.WorkerID || t.Status != tr.From {
		return false, nil
	}

	at := tr.At.UTC()
	t.Status = tr.To
	t.UpdatedAt = at
	switch tr.To {
	case transaction.StatusCompleted:
		t.ProcessedAt = &at
	case transaction.StatusFailed:
		t.FailedAt = &at
		t.ErrorMessage = tr.ErrorMessage
	}
	if tr.To.ClearsLock() {
		t.Lease = lock.Lease{}
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// copyJob returns a copy that shares no mutable memory with j.
func copyJob(j *job.Job) *job.Job {
	cp := *j
	cp.Payload = slices.Clone(j.Payload)
	cp.LockedAt = cloneTime(j.LockedAt)
	cp.ScheduledAt = cloneTime(j.ScheduledAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	cp.FailedAt = cloneTime(j.FailedAt)
	return &cp
}

func copyTxn(t *transaction.Transaction) *transaction.Transaction {
	cp := *t
	cp.Metadata = maps.Clone(t.Metadata)
	cp.LockedAt = cloneTime(t.LockedAt)
	cp.ProcessedAt = cloneTime(t.ProcessedAt)
	cp.FailedAt = cloneTime(t.FailedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
