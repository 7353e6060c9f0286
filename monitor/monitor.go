// Package monitor reports the state of the claim system from the store:
// item counts per status, every lock currently recorded and the workers
// holding them. It reads only; nothing here changes a lock.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// Store is the read-only subset of store.Store the monitor needs.
type Store interface {
	CountJobs(ctx context.Context, status job.Status) (int64, error)
	ListLockedJobs(ctx context.Context) ([]*job.Job, error)
	CountTransactions(ctx context.Context, status transaction.Status) (int64, error)
	ListLockedTransactions(ctx context.Context) ([]*transaction.Transaction, error)
}

// Clock is the subset of lock.Manager used to judge lock age.
type Clock interface {
	Now() time.Time
	TTL() time.Duration
}

// Counts holds the number of items of one kind per status.
type Counts struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

// ActiveLock is one item that currently records a lock holder.
type ActiveLock struct {
	Kind     lock.Kind     `json:"kind"`
	ID       id.ID         `json:"id"`
	Label    string        `json:"label"`
	LockedBy string        `json:"locked_by"`
	LockedAt time.Time     `json:"locked_at"`
	Age      time.Duration `json:"age"`
	// Stale is true when any worker may reclaim the item.
	Stale bool `json:"stale"`
}

// Worker aggregates the locks recorded for one worker ID.
type Worker struct {
	WorkerID     string `json:"worker_id"`
	Jobs         int    `json:"jobs"`
	Transactions int    `json:"transactions"`
	Total        int    `json:"total"`
}

// Snapshot is the system status at one instant.
type Snapshot struct {
	Timestamp    time.Time    `json:"timestamp"`
	Jobs         Counts       `json:"jobs"`
	Transactions Counts       `json:"transactions"`
	Locks        []ActiveLock `json:"locks"`
	Workers      []Worker     `json:"workers"`
}

// StaleLocks returns how many recorded locks are reclaimable.
func (s *Snapshot) StaleLocks() int {
	n := 0
	for _, l := range s.Locks {
		if l.Stale {
			n++
		}
	}
	return n
}

// Recorder receives gauge values from a snapshot.
// observability.PrometheusExtension satisfies this interface.
type Recorder interface {
	SetItems(kind lock.Kind, status string, n int64)
	SetActiveLocks(kind lock.Kind, fresh, stale int)
}

// Record pushes the snapshot's counts into r.
func (s *Snapshot) Record(r Recorder) {
	for status, n := range s.Jobs.ByStatus {
		r.SetItems(lock.KindJob, status, n)
	}
	for status, n := range s.Transactions.ByStatus {
		r.SetItems(lock.KindTransaction, status, n)
	}

	fresh := make(map[lock.Kind]int, len(lock.Kinds))
	stale := make(map[lock.Kind]int, len(lock.Kinds))
	for _, l := range s.Locks {
		if l.Stale {
			stale[l.Kind]++
		} else {
			fresh[l.Kind]++
		}
	}
	for _, kind := range lock.Kinds {
		r.SetActiveLocks(kind, fresh[kind], stale[kind])
	}
}

// Monitor builds snapshots from a store.
type Monitor struct {
	store Store
	clock Clock
}

// New creates a Monitor.
func New(store Store, clock Clock) *Monitor {
	return &Monitor{store: store, clock: clock}
}

// Snapshot reads the full system status.
func (m *Monitor) Snapshot(ctx context.Context) (*Snapshot, error) {
	jobs, err := m.JobCounts(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := m.TransactionCounts(ctx)
	if err != nil {
		return nil, err
	}
	locks, err := m.Locks(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Timestamp:    m.clock.Now(),
		Jobs:         jobs,
		Transactions: txns,
		Locks:        locks,
		Workers:      aggregate(locks),
	}, nil
}

// JobCounts returns the number of jobs per status.
func (m *Monitor) JobCounts(ctx context.Context) (Counts, error) {
	c := Counts{ByStatus: make(map[string]int64, len(job.Statuses))}
	for _, status := range job.Statuses {
		n, err := m.store.CountJobs(ctx, status)
		if err != nil {
			return Counts{}, fmt.Errorf("count %s jobs: %w", status, err)
		}
		c.ByStatus[string(status)] = n
		c.Total += n
	}
	return c, nil
}

// TransactionCounts returns the number of transactions per status.
func (m *Monitor) TransactionCounts(ctx context.Context) (Counts, error) {
	c := Counts{ByStatus: make(map[string]int64, len(transaction.Statuses))}
	for _, status := range transaction.Statuses {
		n, err := m.store.CountTransactions(ctx, status)
		if err != nil {
			return Counts{}, fmt.Errorf("count %s transactions: %w", status, err)
		}
		c.ByStatus[string(status)] = n
		c.Total += n
	}
	return c, nil
}

// Locks returns every recorded lock across kinds, oldest first.
func (m *Monitor) Locks(ctx context.Context) ([]ActiveLock, error) {
	jobs, err := m.store.ListLockedJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locked jobs: %w", err)
	}
	txns, err := m.store.ListLockedTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locked transactions: %w", err)
	}

	now, ttl := m.clock.Now(), m.clock.TTL()
	out := make([]ActiveLock, 0, len(jobs)+len(txns))
	for _, j := range jobs {
		if l, ok := activeLock(j, j.Title, now, ttl); ok {
			out = append(out, l)
		}
	}
	for _, t := range txns {
		label := fmt.Sprintf("%d %s %s", t.Amount, t.Currency, t.Type)
		if l, ok := activeLock(t, label, now, ttl); ok {
			out = append(out, l)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].LockedAt.Before(out[j].LockedAt) })
	return out, nil
}

// Workers returns the lock holders with their per-kind counts, busiest
// first.
func (m *Monitor) Workers(ctx context.Context) ([]Worker, error) {
	locks, err := m.Locks(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate(locks), nil
}

func activeLock(item lock.Lockable, label string, now time.Time, ttl time.Duration) (ActiveLock, bool) {
	lease := item.LockLease()
	if !lease.Held() {
		return ActiveLock{}, false
	}
	return ActiveLock{
		Kind:     item.LockKind(),
		ID:       item.LockID(),
		Label:    label,
		LockedBy: lease.LockedBy,
		LockedAt: *lease.LockedAt,
		Age:      lease.Age(now),
		Stale:    lease.Expired(now, ttl),
	}, true
}

func aggregate(locks []ActiveLock) []Worker {
	byID := make(map[string]*Worker)
	for _, l := range locks {
		w, ok := byID[l.LockedBy]
		if !ok {
			w = &Worker{WorkerID: l.LockedBy}
			byID[l.LockedBy] = w
		}
		switch l.Kind {
		case lock.KindJob:
			w.Jobs++
		case lock.KindTransaction:
			w.Transactions++
		}
		w.Total++
	}

	out := make([]Worker, 0, len(byID))
	for _, w := range byID {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}
