package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store"
	"github.com/xraph/claim/store/storetest"
)

var _ store.Store = (*Store)(nil)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := storetest.NewJob("closed", 1, storetest.Epoch)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"InsertJob", func() error { return s.InsertJob(ctx, storetest.NewJob("late", 1, storetest.Epoch)) }},
		{"GetJob", func() error {
			_, err := s.GetJob(ctx, j.ID)
			return err
		}},
		{"ListClaimCandidates", func() error {
			_, err := s.ListClaimCandidates(ctx, storetest.Epoch, 10)
			return err
		}},
		{"CountJobs", func() error {
			_, err := s.CountJobs(ctx, "")
			return err
		}},
		{"AcquireLock", func() error {
			_, err := s.AcquireLock(ctx, lock.KindJob, j.ID, "w1", storetest.Epoch, storetest.Epoch.Add(-storetest.TTL))
			return err
		}},
		{"SweepExpiredLocks", func() error {
			_, err := s.SweepExpiredLocks(ctx, lock.KindJob, storetest.Epoch, storetest.Epoch)
			return err
		}},
		{"InsertTransaction", func() error { return s.InsertTransaction(ctx, storetest.NewTransaction(1, storetest.Epoch)) }},
		{"CountTransactions", func() error {
			_, err := s.CountTransactions(ctx, "")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, claim.ErrStoreClosed) {
				t.Fatalf("%s error = %v, want ErrStoreClosed", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Isolation tests
// ──────────────────────────────────────────────────

func TestGetJob_ReturnsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := storetest.NewJob("copy", 1, storetest.Epoch)
	j.Payload = []byte(`{"a":1}`)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	// Mutating the inserted value must not reach the store.
	j.Title = "mutated"
	j.Payload[0] = 'x'

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Title != "copy" || string(got.Payload) != `{"a":1}` {
		t.Fatalf("store shares memory with caller: %+v", got)
	}

	got.Status = "running"
	again, _ := s.GetJob(ctx, j.ID)
	if again.Status != "pending" {
		t.Fatalf("returned job shares memory with store")
	}
}

func TestJobTimes_NotShared(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	sched := storetest.Epoch.Add(time.Hour)
	j := storetest.NewJob("scheduled", 1, storetest.Epoch)
	j.ScheduledAt = &sched
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	// Moving the caller's time must not make the job due.
	*j.ScheduledAt = storetest.Epoch
	due, err := s.ListClaimCandidates(ctx, storetest.Epoch, 10)
	if err != nil {
		t.Fatalf("ListClaimCandidates: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("candidates = %d, want 0", len(due))
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	*got.ScheduledAt = storetest.Epoch
	if ok, err := s.AcquireLock(ctx, lock.KindJob, j.ID, "w1", storetest.Epoch, storetest.Epoch.Add(-storetest.TTL)); err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}
	locked, _ := s.GetJob(ctx, j.ID)
	*locked.LockedAt = storetest.Epoch.Add(-time.Hour)

	again, _ := s.GetJob(ctx, j.ID)
	if !again.ScheduledAt.Equal(sched) {
		t.Errorf("scheduled_at = %v, want %v", again.ScheduledAt, sched)
	}
	if !again.LockedAt.Equal(storetest.Epoch) {
		t.Errorf("locked_at = %v, want %v", again.LockedAt, storetest.Epoch)
	}
	if again.Status != job.StatusPending {
		t.Errorf("status = %q, want pending", again.Status)
	}
}

func TestGetTransaction_ReturnsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	txn := storetest.NewTransaction(10, storetest.Epoch)
	txn.Metadata = map[string]string{"k": "v"}
	if err := s.InsertTransaction(ctx, txn); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	txn.Metadata["k"] = "changed"

	got, err := s.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Metadata["k"] != "v" {
		t.Fatalf("metadata = %v, want k=v", got.Metadata)
	}

	if ok, err := s.AcquireLock(ctx, lock.KindTransaction, txn.ID, "w1", storetest.Epoch, storetest.Epoch.Add(-storetest.TTL)); err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}
	held, _ := s.GetTransaction(ctx, txn.ID)
	*held.LockedAt = storetest.Epoch.Add(-time.Hour)

	// A shifted copy must not make the stored lock stale.
	n, err := s.SweepExpiredLocks(ctx, lock.KindTransaction, storetest.Epoch.Add(-time.Minute), storetest.Epoch)
	if err != nil || n != 0 {
		t.Fatalf("sweep = %d, %v, want 0", n, err)
	}
}

func TestAcquireLock_UnknownKind(t *testing.T) {
	t.Parallel()
	s := New()

	_, err := s.AcquireLock(context.Background(), lock.Kind("invoice"), storetest.NewJob("x", 1, storetest.Epoch).ID, "w1", storetest.Epoch, storetest.Epoch)
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
