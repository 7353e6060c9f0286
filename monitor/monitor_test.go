package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/monitor"
	"github.com/xraph/claim/store/memory"
	"github.com/xraph/claim/store/storetest"
	"github.com/xraph/claim/transaction"
)

type recorder struct {
	items map[string]int64
	fresh map[lock.Kind]int
	stale map[lock.Kind]int
}

func newRecorder() *recorder {
	return &recorder{
		items: make(map[string]int64),
		fresh: make(map[lock.Kind]int),
		stale: make(map[lock.Kind]int),
	}
}

func (r *recorder) SetItems(kind lock.Kind, status string, n int64) {
	r.items[string(kind)+"/"+status] = n
}

func (r *recorder) SetActiveLocks(kind lock.Kind, fresh, stale int) {
	r.fresh[kind] = fresh
	r.stale[kind] = stale
}

// seed builds: 3 pending jobs (one locked by w1 long ago, one locked by w2
// now), 1 completed job, 2 pending transactions (one locked by w2 now).
func seed(t *testing.T) (*monitor.Monitor, *storetest.Clock) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	clock := storetest.NewClock(storetest.Epoch)
	locks := lock.NewManager(s, lock.WithTTL(storetest.TTL), lock.WithClock(clock.Now))

	var jobs []*job.Job
	for i, title := range []string{"old", "new", "idle", "done"} {
		j := storetest.NewJob(title, 0, storetest.Epoch.Add(time.Duration(i)*time.Second))
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, j)
	}
	var txns []*transaction.Transaction
	for i := range 2 {
		txn := storetest.NewTransaction(1250, storetest.Epoch.Add(time.Duration(i)*time.Second))
		if err := s.InsertTransaction(ctx, txn); err != nil {
			t.Fatal(err)
		}
		txns = append(txns, txn)
	}

	acquire := func(kind lock.Kind, item lock.Lockable, worker string) {
		t.Helper()
		if ok, err := locks.Acquire(ctx, kind, item.LockID(), worker); err != nil || !ok {
			t.Fatalf("acquire %s by %s: ok=%v err=%v", item.LockID(), worker, ok, err)
		}
	}

	acquire(lock.KindJob, jobs[3], "w3")
	if ok, err := s.TransitionJob(ctx, job.Transition{
		JobID: jobs[3].ID, WorkerID: "w3", To: job.StatusCompleted, At: clock.Now(),
	}); err != nil || !ok {
		t.Fatalf("complete job: ok=%v err=%v", ok, err)
	}

	acquire(lock.KindJob, jobs[0], "w1")
	clock.Advance(storetest.TTL + time.Second)
	acquire(lock.KindJob, jobs[1], "w2")
	acquire(lock.KindTransaction, txns[0], "w2")

	return monitor.New(s, locks), clock
}

func TestSnapshot_Counts(t *testing.T) {
	m, clock := seed(t)
	snap, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if !snap.Timestamp.Equal(clock.Now()) {
		t.Errorf("timestamp = %v, want %v", snap.Timestamp, clock.Now())
	}
	if snap.Jobs.Total != 4 {
		t.Errorf("job total = %d, want 4", snap.Jobs.Total)
	}
	if snap.Jobs.ByStatus["pending"] != 3 || snap.Jobs.ByStatus["completed"] != 1 || snap.Jobs.ByStatus["running"] != 0 {
		t.Errorf("job counts = %v", snap.Jobs.ByStatus)
	}
	if snap.Transactions.Total != 2 || snap.Transactions.ByStatus["pending"] != 2 {
		t.Errorf("transaction counts = %+v", snap.Transactions)
	}
	if _, ok := snap.Transactions.ByStatus["cancelled"]; !ok {
		t.Error("expected every transaction status to be reported")
	}
}

func TestSnapshot_Locks(t *testing.T) {
	m, _ := seed(t)
	snap, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(snap.Locks) != 3 {
		t.Fatalf("expected 3 locks, got %d: %+v", len(snap.Locks), snap.Locks)
	}
	oldest := snap.Locks[0]
	if oldest.LockedBy != "w1" || oldest.Label != "old" || !oldest.Stale {
		t.Errorf("oldest lock = %+v, want stale lock by w1", oldest)
	}
	if oldest.Age != storetest.TTL+time.Second {
		t.Errorf("age = %v", oldest.Age)
	}
	if snap.StaleLocks() != 1 {
		t.Errorf("StaleLocks() = %d, want 1", snap.StaleLocks())
	}

	var txnLock *monitor.ActiveLock
	for i := range snap.Locks {
		if snap.Locks[i].Kind == lock.KindTransaction {
			txnLock = &snap.Locks[i]
		}
	}
	if txnLock == nil {
		t.Fatal("transaction lock missing")
	}
	if txnLock.Label != "1250 USD credit" || txnLock.Stale {
		t.Errorf("transaction lock = %+v", txnLock)
	}
}

func TestSnapshot_Workers(t *testing.T) {
	m, _ := seed(t)
	workers, err := m.Workers(context.Background())
	if err != nil {
		t.Fatalf("Workers: %v", err)
	}

	want := []monitor.Worker{
		{WorkerID: "w2", Jobs: 1, Transactions: 1, Total: 2},
		{WorkerID: "w1", Jobs: 1, Transactions: 0, Total: 1},
	}
	if len(workers) != len(want) {
		t.Fatalf("workers = %+v", workers)
	}
	for i := range want {
		if workers[i] != want[i] {
			t.Errorf("workers[%d] = %+v, want %+v", i, workers[i], want[i])
		}
	}
}

func TestSnapshot_Record(t *testing.T) {
	m, _ := seed(t)
	snap, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	r := newRecorder()
	snap.Record(r)

	if r.items["job/pending"] != 3 || r.items["transaction/pending"] != 2 {
		t.Errorf("items = %v", r.items)
	}
	if r.fresh[lock.KindJob] != 1 || r.stale[lock.KindJob] != 1 {
		t.Errorf("job locks fresh=%d stale=%d", r.fresh[lock.KindJob], r.stale[lock.KindJob])
	}
	if r.fresh[lock.KindTransaction] != 1 || r.stale[lock.KindTransaction] != 0 {
		t.Errorf("transaction locks fresh=%d stale=%d", r.fresh[lock.KindTransaction], r.stale[lock.KindTransaction])
	}
}

func TestSnapshot_Empty(t *testing.T) {
	s := memory.New()
	m := monitor.New(s, lock.NewManager(s))
	snap, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Jobs.Total != 0 || len(snap.Locks) != 0 || len(snap.Workers) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}
