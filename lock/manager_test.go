package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store/memory"
	"github.com/xraph/claim/store/storetest"
)

type recordedEvent struct {
	name     string
	kind     lock.Kind
	workerID string
	count    int64
	ok       bool
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) add(e recordedEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingEmitter) EmitLockAcquired(_ context.Context, kind lock.Kind, _ id.ID, workerID string) {
	r.add(recordedEvent{name: "acquired", kind: kind, workerID: workerID})
}

func (r *recordingEmitter) EmitLockContended(_ context.Context, kind lock.Kind, _ id.ID, workerID string) {
	r.add(recordedEvent{name: "contended", kind: kind, workerID: workerID})
}

func (r *recordingEmitter) EmitLockReleased(_ context.Context, kind lock.Kind, _ id.ID, workerID string, released bool) {
	r.add(recordedEvent{name: "released", kind: kind, workerID: workerID, ok: released})
}

func (r *recordingEmitter) EmitLocksExpired(_ context.Context, kind lock.Kind, count int64) {
	r.add(recordedEvent{name: "expired", kind: kind, count: count})
}

func (r *recordingEmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

func newManager(t *testing.T) (*lock.Manager, *memory.Store, *storetest.Clock, *recordingEmitter) {
	t.Helper()
	s := memory.New()
	clock := storetest.NewClock(storetest.Epoch)
	em := &recordingEmitter{}
	m := lock.NewManager(s,
		lock.WithTTL(storetest.TTL),
		lock.WithClock(clock.Now),
		lock.WithEmitter(em),
	)
	return m, s, clock, em
}

func TestNewManager_Defaults(t *testing.T) {
	m := lock.NewManager(memory.New())
	if m.TTL() != lock.DefaultTTL {
		t.Errorf("TTL = %v, want %v", m.TTL(), lock.DefaultTTL)
	}
	if m.Now().Location() != time.UTC {
		t.Error("Now should be UTC")
	}

	m = lock.NewManager(memory.New(), lock.WithTTL(-time.Second))
	if m.TTL() != lock.DefaultTTL {
		t.Errorf("non-positive TTL should be ignored, got %v", m.TTL())
	}
}

func TestAcquire_Validation(t *testing.T) {
	m, _, _, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, lock.KindJob, id.NewJobID(), ""); !errors.Is(err, claim.ErrEmptyWorkerID) {
		t.Errorf("empty worker: got %v", err)
	}
	if _, err := m.Acquire(ctx, lock.Kind("invoice"), id.NewJobID(), "w1"); !errors.Is(err, claim.ErrUnknownKind) {
		t.Errorf("unknown kind: got %v", err)
	}
	if _, err := m.Release(ctx, lock.KindJob, id.NewJobID(), ""); !errors.Is(err, claim.ErrEmptyWorkerID) {
		t.Errorf("release empty worker: got %v", err)
	}
	if _, err := m.SweepKind(ctx, lock.Kind("invoice")); !errors.Is(err, claim.ErrUnknownKind) {
		t.Errorf("sweep unknown kind: got %v", err)
	}
}

func TestAcquire_EmitsAndRespectsTTL(t *testing.T) {
	m, s, clock, em := newManager(t)
	ctx := context.Background()

	j := storetest.NewJob("a", 1, storetest.Epoch)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	ok, err := m.Acquire(ctx, lock.KindJob, j.ID, "w1")
	if err != nil || !ok {
		t.Fatalf("w1 acquire = %v, %v", ok, err)
	}

	clock.Advance(storetest.TTL - time.Millisecond)
	ok, err = m.Acquire(ctx, lock.KindJob, j.ID, "w2")
	if err != nil || ok {
		t.Fatalf("w2 acquire before TTL = %v, %v", ok, err)
	}

	clock.Advance(time.Millisecond)
	ok, err = m.Acquire(ctx, lock.KindJob, j.ID, "w2")
	if err != nil || !ok {
		t.Fatalf("w2 acquire at TTL = %v, %v", ok, err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.LockedBy != "w2" || !got.LockedAt.Equal(storetest.Epoch.Add(storetest.TTL)) {
		t.Errorf("lease = %+v", got.Lease)
	}

	want := []string{"acquired", "contended", "acquired"}
	if got := em.names(); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestAcquire_NotFound(t *testing.T) {
	m, _, _, em := newManager(t)

	_, err := m.Acquire(context.Background(), lock.KindTransaction, id.NewTransactionID(), "w1")
	if !errors.Is(err, claim.ErrTransactionNotFound) {
		t.Fatalf("got %v, want ErrTransactionNotFound", err)
	}
	if len(em.names()) != 0 {
		t.Errorf("no event expected on error, got %v", em.names())
	}
}

func TestRelease(t *testing.T) {
	m, s, _, em := newManager(t)
	ctx := context.Background()

	txn := storetest.NewTransaction(100, storetest.Epoch)
	if err := s.InsertTransaction(ctx, txn); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.Acquire(ctx, lock.KindTransaction, txn.ID, "w1"); !ok {
		t.Fatal("acquire failed")
	}

	released, err := m.Release(ctx, lock.KindTransaction, txn.ID, "w2")
	if err != nil || released {
		t.Fatalf("w2 release = %v, %v", released, err)
	}
	released, err = m.Release(ctx, lock.KindTransaction, txn.ID, "w1")
	if err != nil || !released {
		t.Fatalf("w1 release = %v, %v", released, err)
	}

	got, _ := s.GetTransaction(ctx, txn.ID)
	if got.Held() {
		t.Errorf("lock still held: %+v", got.Lease)
	}
	if n := em.names(); len(n) != 3 || n[1] != "released" || n[2] != "released" {
		t.Errorf("events = %v", n)
	}
}

func TestSweepExpired(t *testing.T) {
	m, s, clock, em := newManager(t)
	ctx := context.Background()

	for range 2 {
		j := storetest.NewJob("j", 1, storetest.Epoch)
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
		if ok, _ := m.Acquire(ctx, lock.KindJob, j.ID, "w1"); !ok {
			t.Fatal("acquire job failed")
		}
	}
	txn := storetest.NewTransaction(1, storetest.Epoch)
	if err := s.InsertTransaction(ctx, txn); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.Acquire(ctx, lock.KindTransaction, txn.ID, "w1"); !ok {
		t.Fatal("acquire transaction failed")
	}

	res, err := m.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if res.Total() != 0 {
		t.Fatalf("fresh locks swept: %+v", res)
	}

	clock.Advance(storetest.TTL + time.Second)
	res, err = m.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if res.Jobs != 2 || res.Transactions != 1 || res.Total() != 3 {
		t.Errorf("result = %+v", res)
	}

	var expired []recordedEvent
	em.mu.Lock()
	for _, e := range em.events {
		if e.name == "expired" {
			expired = append(expired, e)
		}
	}
	em.mu.Unlock()
	if len(expired) != 4 {
		t.Fatalf("expired events = %d, want 4", len(expired))
	}
	if expired[2].kind != lock.KindJob || expired[2].count != 2 {
		t.Errorf("job expired event = %+v", expired[2])
	}
}

type failingStore struct {
	lock.Store
	failKind lock.Kind
}

func (f failingStore) SweepExpiredLocks(ctx context.Context, kind lock.Kind, staleBefore, now time.Time) (int64, error) {
	if kind == f.failKind {
		return 0, errors.New("connection reset")
	}
	return f.Store.SweepExpiredLocks(ctx, kind, staleBefore, now)
}

func TestSweepExpired_ContinuesPastFailure(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)

	txn := storetest.NewTransaction(1, storetest.Epoch)
	if err := s.InsertTransaction(ctx, txn); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.AcquireLock(ctx, lock.KindTransaction, txn.ID, "w1", storetest.Epoch, storetest.Epoch.Add(-storetest.TTL)); !ok {
		t.Fatal("acquire failed")
	}

	m := lock.NewManager(failingStore{Store: s, failKind: lock.KindJob},
		lock.WithTTL(storetest.TTL),
		lock.WithClock(clock.Now),
	)
	clock.Advance(time.Hour)

	res, err := m.SweepExpired(ctx)
	if err == nil {
		t.Fatal("expected error from failing kind")
	}
	if res.Transactions != 1 {
		t.Errorf("transactions swept = %d, want 1", res.Transactions)
	}
}

func TestStale(t *testing.T) {
	m, _, clock, _ := newManager(t)
	at := storetest.Epoch

	if m.Stale(lock.Lease{}) {
		t.Error("unheld lease reported stale")
	}
	lease := lock.Lease{LockedBy: "w1", LockedAt: &at}
	if m.Stale(lease) {
		t.Error("fresh lease reported stale")
	}
	clock.Advance(storetest.TTL)
	if !m.Stale(lease) {
		t.Error("lease aged TTL should be stale")
	}
}
