// Package storetest is a conformance suite run by every store backend.
//
// Each backend calls Run from its own tests with a factory returning an
// empty store. The suite drives the store both directly and through the
// lock, job and transaction services with an injected clock.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store"
	"github.com/xraph/claim/transaction"
)

// TTL is the lock lifetime used by the suite.
const TTL = 30 * time.Second

// Factory returns an empty, migrated store. It registers its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the full conformance suite against the stores produced by
// newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"JobInsertGet", testJobInsertGet},
		{"JobListCount", testJobListCount},
		{"JobClaimCandidates", testJobClaimCandidates},
		{"JobTransitions", testJobTransitions},
		{"TransactionInsertGet", testTransactionInsertGet},
		{"TransactionListCount", testTransactionListCount},
		{"TransactionTransitions", testTransactionTransitions},
		{"AcquireUnlocked", testAcquireUnlocked},
		{"AcquireFreshLockRejected", testAcquireFreshLockRejected},
		{"AcquireStaleLockReassigned", testAcquireStaleLockReassigned},
		{"AcquireAtExactTTL", testAcquireAtExactTTL},
		{"AcquireNotPending", testAcquireNotPending},
		{"AcquireNotFound", testAcquireNotFound},
		{"AcquireConcurrent", testAcquireConcurrent},
		{"Release", testRelease},
		{"SweepExpired", testSweepExpired},
		{"SweepKindIsolation", testSweepKindIsolation},
		{"ListLocked", testListLocked},
		{"ScenarioPriorityWins", testScenarioPriorityWins},
		{"ScenarioStaleReclaim", testScenarioStaleReclaim},
		{"ScenarioProcessContention", testScenarioProcessContention},
		{"ScenarioLostLockSetStatus", testScenarioLostLockSetStatus},
		{"ProcessEndsTerminal", testProcessEndsTerminal},
		{"ClaimNextConcurrent", testClaimNextConcurrent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// ──────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────

// NewJob returns a pending, unlocked job created at createdAt.
func NewJob(title string, priority int, createdAt time.Time) *job.Job {
	return &job.Job{
		Entity:      claim.NewEntityAt(createdAt),
		ID:          id.NewJobID(),
		Title:       title,
		Priority:    priority,
		Status:      job.StatusPending,
		MaxAttempts: job.DefaultMaxAttempts,
	}
}

// NewTransaction returns a pending, unlocked credit created at createdAt.
func NewTransaction(amount int64, createdAt time.Time) *transaction.Transaction {
	return &transaction.Transaction{
		Entity:   claim.NewEntityAt(createdAt),
		ID:       id.NewTransactionID(),
		Type:     transaction.TypeCredit,
		Amount:   amount,
		Currency: transaction.DefaultCurrency,
		Status:   transaction.StatusPending,
	}
}

func insertJob(t *testing.T, s store.Store, j *job.Job) *job.Job {
	t.Helper()
	if err := s.InsertJob(context.Background(), j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	return j
}

func insertTxn(t *testing.T, s store.Store, txn *transaction.Transaction) *transaction.Transaction {
	t.Helper()
	if err := s.InsertTransaction(context.Background(), txn); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	return txn
}

func getJob(t *testing.T, s store.Store, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	checkLease(t, j.Lease)
	return j
}

func getTxn(t *testing.T, s store.Store, txnID id.TransactionID) *transaction.Transaction {
	t.Helper()
	txn, err := s.GetTransaction(context.Background(), txnID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	checkLease(t, txn.Lease)
	return txn
}

// checkLease fails when only one of the lock fields is set.
func checkLease(t *testing.T, l lock.Lease) {
	t.Helper()
	if (l.LockedBy != "") != (l.LockedAt != nil) {
		t.Fatalf("partial lock state: locked_by=%q locked_at=%v", l.LockedBy, l.LockedAt)
	}
}

func wantHeldBy(t *testing.T, l lock.Lease, workerID string, at time.Time) {
	t.Helper()
	if l.LockedBy != workerID {
		t.Fatalf("locked_by = %q, want %q", l.LockedBy, workerID)
	}
	if l.LockedAt == nil || !l.LockedAt.Equal(at) {
		t.Fatalf("locked_at = %v, want %v", l.LockedAt, at)
	}
}

func wantUnlocked(t *testing.T, l lock.Lease) {
	t.Helper()
	if l.Held() || l.LockedBy != "" || l.LockedAt != nil {
		t.Fatalf("expected no lock, got locked_by=%q locked_at=%v", l.LockedBy, l.LockedAt)
	}
}

func acquire(t *testing.T, s store.Store, kind lock.Kind, recordID id.ID, workerID string, now time.Time) bool {
	t.Helper()
	ok, err := s.AcquireLock(context.Background(), kind, recordID, workerID, now, now.Add(-TTL))
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	return ok
}

func services(s store.Store, clock *Clock) (*lock.Manager, *job.Service, *transaction.Processor) {
	locks := lock.NewManager(s, lock.WithTTL(TTL), lock.WithClock(clock.Now))
	jobs := job.NewService(s, locks)
	txns := transaction.NewProcessor(s, locks, transaction.WithWork(func(context.Context, *transaction.Transaction) error {
		return nil
	}))
	return locks, jobs, txns
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

func testJobInsertGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	sched := Epoch.Add(time.Hour)
	j := NewJob("send-report", 5, Epoch)
	j.Description = "weekly"
	j.Payload = []byte(`{"to":"ops"}`)
	j.ScheduledAt = &sched
	insertJob(t, s, j)

	got := getJob(t, s, j.ID)
	if got.ID != j.ID || got.Title != "send-report" || got.Description != "weekly" {
		t.Errorf("got %+v", got)
	}
	if got.Priority != 5 || got.Status != job.StatusPending || got.Attempts != 0 {
		t.Errorf("priority=%d status=%q attempts=%d", got.Priority, got.Status, got.Attempts)
	}
	if got.MaxAttempts != job.DefaultMaxAttempts {
		t.Errorf("max_attempts = %d, want %d", got.MaxAttempts, job.DefaultMaxAttempts)
	}
	if string(got.Payload) != `{"to":"ops"}` {
		t.Errorf("payload = %s", got.Payload)
	}
	if got.ScheduledAt == nil || !got.ScheduledAt.Equal(sched) {
		t.Errorf("scheduled_at = %v, want %v", got.ScheduledAt, sched)
	}
	if !got.CreatedAt.Equal(Epoch) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, Epoch)
	}
	wantUnlocked(t, got.Lease)

	if err := s.InsertJob(ctx, j); !errors.Is(err, claim.ErrJobAlreadyExists) {
		t.Errorf("duplicate insert: got %v, want ErrJobAlreadyExists", err)
	}
	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, claim.ErrJobNotFound) {
		t.Errorf("missing get: got %v, want ErrJobNotFound", err)
	}
}

func testJobListCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []id.JobID
	for i := range 5 {
		j := insertJob(t, s, NewJob(fmt.Sprintf("job-%d", i), 1, Epoch.Add(time.Duration(i)*time.Second)))
		ids = append(ids, j.ID)
	}
	// Complete the oldest one.
	if !acquire(t, s, lock.KindJob, ids[0], "w1", Epoch.Add(time.Minute)) {
		t.Fatal("acquire failed")
	}
	if ok, err := s.TransitionJob(ctx, job.Transition{JobID: ids[0], WorkerID: "w1", To: job.StatusCompleted, At: Epoch.Add(time.Minute)}); err != nil || !ok {
		t.Fatalf("TransitionJob = %v, %v", ok, err)
	}

	all, err := s.ListJobs(ctx, "", job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("ListJobs(all) = %d, want 5", len(all))
	}
	if all[0].ID != ids[4] || all[4].ID != ids[0] {
		t.Errorf("expected newest first")
	}

	pending, err := s.ListJobs(ctx, job.StatusPending, job.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs(pending): %v", err)
	}
	if len(pending) != 2 || pending[0].ID != ids[3] || pending[1].ID != ids[2] {
		t.Errorf("paged pending = %v", jobIDs(pending))
	}

	for status, want := range map[job.Status]int64{"": 5, job.StatusPending: 4, job.StatusCompleted: 1, job.StatusFailed: 0} {
		n, err := s.CountJobs(ctx, status)
		if err != nil {
			t.Fatalf("CountJobs(%q): %v", status, err)
		}
		if n != want {
			t.Errorf("CountJobs(%q) = %d, want %d", status, n, want)
		}
	}
}

func testJobClaimCandidates(t *testing.T, s store.Store) {
	ctx := context.Background()
	low := insertJob(t, s, NewJob("low", 1, Epoch))
	highOld := insertJob(t, s, NewJob("high-old", 10, Epoch.Add(time.Second)))
	highNew := insertJob(t, s, NewJob("high-new", 10, Epoch.Add(2*time.Second)))
	mid := insertJob(t, s, NewJob("mid", 5, Epoch.Add(3*time.Second)))

	future := NewJob("future", 100, Epoch)
	later := Epoch.Add(time.Hour)
	future.ScheduledAt = &later
	insertJob(t, s, future)

	due := NewJob("due", 0, Epoch)
	earlier := Epoch.Add(-time.Hour)
	due.ScheduledAt = &earlier
	insertJob(t, s, due)

	done := insertJob(t, s, NewJob("done", 50, Epoch))
	now := Epoch.Add(time.Minute)
	acquire(t, s, lock.KindJob, done.ID, "w1", now)
	if ok, err := s.TransitionJob(ctx, job.Transition{JobID: done.ID, WorkerID: "w1", To: job.StatusCompleted, At: now}); err != nil || !ok {
		t.Fatalf("TransitionJob = %v, %v", ok, err)
	}

	// Locked pending jobs stay in the window.
	acquire(t, s, lock.KindJob, mid.ID, "w2", now)

	got, err := s.ListClaimCandidates(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListClaimCandidates: %v", err)
	}
	want := []id.JobID{highOld.ID, highNew.ID, mid.ID, low.ID, due.ID}
	if fmt.Sprint(jobIDs(got)) != fmt.Sprint(want) {
		t.Fatalf("candidates = %v, want %v", jobIDs(got), want)
	}

	got, err = s.ListClaimCandidates(ctx, now, 2)
	if err != nil {
		t.Fatalf("ListClaimCandidates: %v", err)
	}
	if len(got) != 2 || got[0].ID != highOld.ID {
		t.Errorf("limited candidates = %v", jobIDs(got))
	}

	got, err = s.ListClaimCandidates(ctx, later, 10)
	if err != nil {
		t.Fatalf("ListClaimCandidates: %v", err)
	}
	if len(got) == 0 || got[0].ID != future.ID {
		t.Errorf("job scheduled at now should be due, got %v", jobIDs(got))
	}
}

func testJobTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := insertJob(t, s, NewJob("t", 1, Epoch))
	now := Epoch.Add(time.Second)

	if _, err := s.TransitionJob(ctx, job.Transition{JobID: id.NewJobID(), WorkerID: "w1", To: job.StatusRunning, At: now}); !errors.Is(err, claim.ErrJobNotFound) {
		t.Errorf("missing job: got %v, want ErrJobNotFound", err)
	}

	// No lock held: nothing changes.
	ok, err := s.TransitionJob(ctx, job.Transition{JobID: j.ID, WorkerID: "w1", To: job.StatusRunning, At: now})
	if err != nil || ok {
		t.Fatalf("transition without lock = %v, %v", ok, err)
	}

	acquire(t, s, lock.KindJob, j.ID, "w1", now)

	ok, err = s.TransitionJob(ctx, job.Transition{JobID: j.ID, WorkerID: "w2", To: job.StatusRunning, At: now})
	if err != nil || ok {
		t.Fatalf("transition by non-holder = %v, %v", ok, err)
	}
	if got := getJob(t, s, j.ID); got.Status != job.StatusPending || got.Attempts != 0 {
		t.Fatalf("non-holder changed job: status=%q attempts=%d", got.Status, got.Attempts)
	}

	ok, err = s.TransitionJob(ctx, job.Transition{JobID: j.ID, WorkerID: "w1", To: job.StatusRunning, At: now})
	if err != nil || !ok {
		t.Fatalf("running = %v, %v", ok, err)
	}
	got := getJob(t, s, j.ID)
	if got.Status != job.StatusRunning || got.Attempts != 1 {
		t.Errorf("after running: status=%q attempts=%d", got.Status, got.Attempts)
	}
	wantHeldBy(t, got.Lease, "w1", now)

	ok, err = s.TransitionJob(ctx, job.Transition{JobID: j.ID, WorkerID: "w1", To: job.StatusRunning, At: now})
	if err != nil || ok {
		t.Errorf("running from running = %v, %v", ok, err)
	}

	failAt := now.Add(time.Second)
	ok, err = s.TransitionJob(ctx, job.Transition{JobID: j.ID, WorkerID: "w1", To: job.StatusFailed, ErrorMessage: "smtp timeout", At: failAt})
	if err != nil || !ok {
		t.Fatalf("failed = %v, %v", ok, err)
	}
	got = getJob(t, s, j.ID)
	if got.Status != job.StatusFailed || got.ErrorMessage != "smtp timeout" {
		t.Errorf("after failed: status=%q error=%q", got.Status, got.ErrorMessage)
	}
	if got.FailedAt == nil || !got.FailedAt.Equal(failAt) {
		t.Errorf("failed_at = %v, want %v", got.FailedAt, failAt)
	}
	wantUnlocked(t, got.Lease)

	// A pending job may be completed directly by its holder.
	k := insertJob(t, s, NewJob("direct", 1, Epoch))
	acquire(t, s, lock.KindJob, k.ID, "w3", now)
	ok, err = s.TransitionJob(ctx, job.Transition{JobID: k.ID, WorkerID: "w3", To: job.StatusCompleted, At: now})
	if err != nil || !ok {
		t.Fatalf("completed from pending = %v, %v", ok, err)
	}
	got = getJob(t, s, k.ID)
	if got.Status != job.StatusCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Errorf("after completed: status=%q completed_at=%v", got.Status, got.CompletedAt)
	}
	wantUnlocked(t, got.Lease)
}

// ──────────────────────────────────────────────────
// Transaction Store
// ──────────────────────────────────────────────────

func testTransactionInsertGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	txn := NewTransaction(12_50, Epoch)
	txn.Type = transaction.TypeDebit
	txn.Currency = "EUR"
	txn.Description = "invoice 42"
	txn.Reference = "inv-42"
	txn.FromAccount = "acc-1"
	txn.ToAccount = "acc-2"
	txn.Metadata = map[string]string{"channel": "api"}
	insertTxn(t, s, txn)

	got := getTxn(t, s, txn.ID)
	if got.Type != transaction.TypeDebit || got.Amount != 1250 || got.Currency != "EUR" {
		t.Errorf("type=%q amount=%d currency=%q", got.Type, got.Amount, got.Currency)
	}
	if got.Description != "invoice 42" || got.Reference != "inv-42" {
		t.Errorf("description=%q reference=%q", got.Description, got.Reference)
	}
	if got.FromAccount != "acc-1" || got.ToAccount != "acc-2" {
		t.Errorf("accounts = %q -> %q", got.FromAccount, got.ToAccount)
	}
	if got.Metadata["channel"] != "api" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if got.Status != transaction.StatusPending || !got.CreatedAt.Equal(Epoch) {
		t.Errorf("status=%q created_at=%v", got.Status, got.CreatedAt)
	}
	wantUnlocked(t, got.Lease)

	if err := s.InsertTransaction(ctx, txn); !errors.Is(err, claim.ErrTransactionAlreadyExists) {
		t.Errorf("duplicate insert: got %v, want ErrTransactionAlreadyExists", err)
	}
	if _, err := s.GetTransaction(ctx, id.NewTransactionID()); !errors.Is(err, claim.ErrTransactionNotFound) {
		t.Errorf("missing get: got %v, want ErrTransactionNotFound", err)
	}
}

func testTransactionListCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []id.TransactionID
	for i := range 4 {
		txn := insertTxn(t, s, NewTransaction(int64(100*(i+1)), Epoch.Add(time.Duration(i)*time.Second)))
		ids = append(ids, txn.ID)
	}
	now := Epoch.Add(time.Minute)
	acquire(t, s, lock.KindTransaction, ids[1], "w1", now)
	tr := transaction.Transition{TransactionID: ids[1], WorkerID: "w1", From: transaction.StatusPending, To: transaction.StatusCancelled, At: now}
	if ok, err := s.TransitionTransaction(ctx, tr); err != nil || !ok {
		t.Fatalf("cancel = %v, %v", ok, err)
	}

	newest, err := s.ListTransactions(ctx, "", transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(newest) != 4 || newest[0].ID != ids[3] {
		t.Errorf("expected newest first, got %v", txnIDs(newest))
	}

	oldest, err := s.ListTransactions(ctx, transaction.StatusPending, transaction.ListOpts{Oldest: true, Limit: 2})
	if err != nil {
		t.Fatalf("ListTransactions(oldest): %v", err)
	}
	if len(oldest) != 2 || oldest[0].ID != ids[0] || oldest[1].ID != ids[2] {
		t.Errorf("oldest pending = %v", txnIDs(oldest))
	}

	for status, want := range map[transaction.Status]int64{"": 4, transaction.StatusPending: 3, transaction.StatusCancelled: 1} {
		n, err := s.CountTransactions(ctx, status)
		if err != nil {
			t.Fatalf("CountTransactions(%q): %v", status, err)
		}
		if n != want {
			t.Errorf("CountTransactions(%q) = %d, want %d", status, n, want)
		}
	}
}

func testTransactionTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	txn := insertTxn(t, s, NewTransaction(500, Epoch))
	now := Epoch.Add(time.Second)

	missing := transaction.Transition{TransactionID: id.NewTransactionID(), WorkerID: "w1", From: transaction.StatusPending, To: transaction.StatusProcessing, At: now}
	if _, err := s.TransitionTransaction(ctx, missing); !errors.Is(err, claim.ErrTransactionNotFound) {
		t.Errorf("missing transaction: got %v, want ErrTransactionNotFound", err)
	}

	acquire(t, s, lock.KindTransaction, txn.ID, "w1", now)

	toProcessing := transaction.Transition{TransactionID: txn.ID, WorkerID: "w2", From: transaction.StatusPending, To: transaction.StatusProcessing, At: now}
	if ok, err := s.TransitionTransaction(ctx, toProcessing); err != nil || ok {
		t.Fatalf("non-holder = %v, %v", ok, err)
	}

	toProcessing.WorkerID = "w1"
	if ok, err := s.TransitionTransaction(ctx, toProcessing); err != nil || !ok {
		t.Fatalf("processing = %v, %v", ok, err)
	}
	got := getTxn(t, s, txn.ID)
	if got.Status != transaction.StatusProcessing {
		t.Errorf("status = %q, want processing", got.Status)
	}
	wantHeldBy(t, got.Lease, "w1", now)

	// Wrong source status.
	if ok, err := s.TransitionTransaction(ctx, toProcessing); err != nil || ok {
		t.Errorf("processing from processing = %v, %v", ok, err)
	}

	doneAt := now.Add(time.Second)
	complete := transaction.Transition{TransactionID: txn.ID, WorkerID: "w1", From: transaction.StatusProcessing, To: transaction.StatusCompleted, At: doneAt}
	if ok, err := s.TransitionTransaction(ctx, complete); err != nil || !ok {
		t.Fatalf("completed = %v, %v", ok, err)
	}
	got = getTxn(t, s, txn.ID)
	if got.Status != transaction.StatusCompleted || got.ProcessedAt == nil || !got.ProcessedAt.Equal(doneAt) {
		t.Errorf("status=%q processed_at=%v", got.Status, got.ProcessedAt)
	}
	wantUnlocked(t, got.Lease)

	other := insertTxn(t, s, NewTransaction(700, Epoch))
	acquire(t, s, lock.KindTransaction, other.ID, "w1", now)
	toProcessing.TransactionID = other.ID
	if ok, err := s.TransitionTransaction(ctx, toProcessing); err != nil || !ok {
		t.Fatalf("processing = %v, %v", ok, err)
	}
	fail := transaction.Transition{TransactionID: other.ID, WorkerID: "w1", From: transaction.StatusProcessing, To: transaction.StatusFailed, ErrorMessage: "insufficient funds", At: doneAt}
	if ok, err := s.TransitionTransaction(ctx, fail); err != nil || !ok {
		t.Fatalf("failed = %v, %v", ok, err)
	}
	got = getTxn(t, s, other.ID)
	if got.Status != transaction.StatusFailed || got.ErrorMessage != "insufficient funds" {
		t.Errorf("status=%q error=%q", got.Status, got.ErrorMessage)
	}
	if got.FailedAt == nil || !got.FailedAt.Equal(doneAt) {
		t.Errorf("failed_at = %v, want %v", got.FailedAt, doneAt)
	}
	wantUnlocked(t, got.Lease)
}

// ──────────────────────────────────────────────────
// Lock Store
// ──────────────────────────────────────────────────

func testAcquireUnlocked(t *testing.T, s store.Store) {
	j := insertJob(t, s, NewJob("a", 1, Epoch))
	txn := insertTxn(t, s, NewTransaction(1, Epoch))
	now := Epoch.Add(time.Second)

	if !acquire(t, s, lock.KindJob, j.ID, "w1", now) {
		t.Fatal("job acquire returned false")
	}
	got := getJob(t, s, j.ID)
	wantHeldBy(t, got.Lease, "w1", now)
	if got.Status != job.StatusPending {
		t.Errorf("acquire changed status to %q", got.Status)
	}

	if !acquire(t, s, lock.KindTransaction, txn.ID, "w1", now) {
		t.Fatal("transaction acquire returned false")
	}
	wantHeldBy(t, getTxn(t, s, txn.ID).Lease, "w1", now)
}

func testAcquireFreshLockRejected(t *testing.T, s store.Store) {
	j := insertJob(t, s, NewJob("a", 1, Epoch))
	acquire(t, s, lock.KindJob, j.ID, "w1", Epoch)

	if acquire(t, s, lock.KindJob, j.ID, "w2", Epoch.Add(TTL-time.Second)) {
		t.Fatal("acquire within TTL succeeded")
	}
	wantHeldBy(t, getJob(t, s, j.ID).Lease, "w1", Epoch)
}

func testAcquireStaleLockReassigned(t *testing.T, s store.Store) {
	txn := insertTxn(t, s, NewTransaction(1, Epoch))
	acquire(t, s, lock.KindTransaction, txn.ID, "w1", Epoch)

	later := Epoch.Add(TTL + time.Second)
	if !acquire(t, s, lock.KindTransaction, txn.ID, "w2", later) {
		t.Fatal("acquire of stale lock failed")
	}
	wantHeldBy(t, getTxn(t, s, txn.ID).Lease, "w2", later)
}

func testAcquireAtExactTTL(t *testing.T, s store.Store) {
	j := insertJob(t, s, NewJob("a", 1, Epoch))
	acquire(t, s, lock.KindJob, j.ID, "w1", Epoch)

	if !acquire(t, s, lock.KindJob, j.ID, "w2", Epoch.Add(TTL)) {
		t.Fatal("lock aged exactly TTL should be reclaimable")
	}
}

func testAcquireNotPending(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := insertJob(t, s, NewJob("a", 1, Epoch))
	acquire(t, s, lock.KindJob, j.ID, "w1", Epoch)
	if ok, err := s.TransitionJob(ctx, job.Transition{JobID: j.ID, WorkerID: "w1", To: job.StatusRunning, At: Epoch}); err != nil || !ok {
		t.Fatalf("running = %v, %v", ok, err)
	}

	// Even with a stale lock, a running job cannot be acquired.
	if acquire(t, s, lock.KindJob, j.ID, "w2", Epoch.Add(2*TTL)) {
		t.Fatal("acquired a running job")
	}
	wantHeldBy(t, getJob(t, s, j.ID).Lease, "w1", Epoch)
}

func testAcquireNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.AcquireLock(ctx, lock.KindJob, id.NewJobID(), "w1", Epoch, Epoch.Add(-TTL))
	if !errors.Is(err, claim.ErrJobNotFound) {
		t.Errorf("job: got %v, want ErrJobNotFound", err)
	}
	_, err = s.AcquireLock(ctx, lock.KindTransaction, id.NewTransactionID(), "w1", Epoch, Epoch.Add(-TTL))
	if !errors.Is(err, claim.ErrTransactionNotFound) {
		t.Errorf("transaction: got %v, want ErrTransactionNotFound", err)
	}
}

func testAcquireConcurrent(t *testing.T, s store.Store) {
	j := insertJob(t, s, NewJob("contended", 1, Epoch))
	now := Epoch.Add(time.Second)

	const workers = 16
	var wins atomic.Int32
	var g errgroup.Group
	for i := range workers {
		workerID := fmt.Sprintf("w%d", i)
		g.Go(func() error {
			ok, err := s.AcquireLock(context.Background(), lock.KindJob, j.ID, workerID, now, now.Add(-TTL))
			if ok {
				wins.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if n := wins.Load(); n != 1 {
		t.Fatalf("%d workers acquired the lock, want exactly 1", n)
	}
	if got := getJob(t, s, j.ID); !got.Held() {
		t.Fatal("job not locked after contention")
	}
}

func testRelease(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := insertJob(t, s, NewJob("a", 1, Epoch))
	acquire(t, s, lock.KindJob, j.ID, "w1", Epoch)

	ok, err := s.ReleaseLock(ctx, lock.KindJob, j.ID, "w2", Epoch)
	if err != nil || ok {
		t.Fatalf("release by non-holder = %v, %v", ok, err)
	}
	wantHeldBy(t, getJob(t, s, j.ID).Lease, "w1", Epoch)

	ok, err = s.ReleaseLock(ctx, lock.KindJob, j.ID, "w1", Epoch)
	if err != nil || !ok {
		t.Fatalf("release by holder = %v, %v", ok, err)
	}
	wantUnlocked(t, getJob(t, s, j.ID).Lease)

	ok, err = s.ReleaseLock(ctx, lock.KindJob, j.ID, "w1", Epoch)
	if err != nil || ok {
		t.Errorf("second release = %v, %v", ok, err)
	}

	ok, err = s.ReleaseLock(ctx, lock.KindTransaction, id.NewTransactionID(), "w1", Epoch)
	if err != nil || ok {
		t.Errorf("release of missing transaction = %v, %v", ok, err)
	}
}

func testSweepExpired(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := Epoch.Add(time.Hour)
	cutoff := now.Add(-TTL)

	stale := insertJob(t, s, NewJob("stale", 1, Epoch))
	acquire(t, s, lock.KindJob, stale.ID, "w1", cutoff.Add(-time.Second))

	staleRunning := insertJob(t, s, NewJob("stale-running", 1, Epoch))
	acquire(t, s, lock.KindJob, staleRunning.ID, "w2", cutoff.Add(-time.Minute))
	if ok, err := s.TransitionJob(ctx, job.Transition{JobID: staleRunning.ID, WorkerID: "w2", To: job.StatusRunning, At: cutoff.Add(-time.Minute)}); err != nil || !ok {
		t.Fatalf("running = %v, %v", ok, err)
	}

	boundary := insertJob(t, s, NewJob("boundary", 1, Epoch))
	acquire(t, s, lock.KindJob, boundary.ID, "w3", cutoff)

	fresh := insertJob(t, s, NewJob("fresh", 1, Epoch))
	acquire(t, s, lock.KindJob, fresh.ID, "w4", now.Add(-time.Second))

	unlocked := insertJob(t, s, NewJob("unlocked", 1, Epoch))

	n, err := s.SweepExpiredLocks(ctx, lock.KindJob, cutoff, now)
	if err != nil {
		t.Fatalf("SweepExpiredLocks: %v", err)
	}
	if n != 2 {
		t.Errorf("swept %d, want 2", n)
	}

	got := getJob(t, s, stale.ID)
	wantUnlocked(t, got.Lease)
	if got.Status != job.StatusPending {
		t.Errorf("stale status = %q", got.Status)
	}

	got = getJob(t, s, staleRunning.ID)
	wantUnlocked(t, got.Lease)
	if got.Status != job.StatusRunning {
		t.Errorf("sweep changed running job to %q", got.Status)
	}

	wantHeldBy(t, getJob(t, s, boundary.ID).Lease, "w3", cutoff)
	wantHeldBy(t, getJob(t, s, fresh.ID).Lease, "w4", now.Add(-time.Second))
	wantUnlocked(t, getJob(t, s, unlocked.ID).Lease)

	n, err = s.SweepExpiredLocks(ctx, lock.KindJob, cutoff, now)
	if err != nil || n != 0 {
		t.Errorf("second sweep = %d, %v; want 0", n, err)
	}
}

func testSweepKindIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := insertJob(t, s, NewJob("j", 1, Epoch))
	txn := insertTxn(t, s, NewTransaction(1, Epoch))
	acquire(t, s, lock.KindJob, j.ID, "w1", Epoch)
	acquire(t, s, lock.KindTransaction, txn.ID, "w1", Epoch)

	now := Epoch.Add(time.Hour)
	n, err := s.SweepExpiredLocks(ctx, lock.KindTransaction, now.Add(-TTL), now)
	if err != nil || n != 1 {
		t.Fatalf("transaction sweep = %d, %v", n, err)
	}
	wantUnlocked(t, getTxn(t, s, txn.ID).Lease)
	wantHeldBy(t, getJob(t, s, j.ID).Lease, "w1", Epoch)
}

func testListLocked(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := insertJob(t, s, NewJob("a", 1, Epoch))
	insertJob(t, s, NewJob("b", 1, Epoch))
	txn := insertTxn(t, s, NewTransaction(1, Epoch))
	insertTxn(t, s, NewTransaction(2, Epoch))

	acquire(t, s, lock.KindJob, a.ID, "w1", Epoch)
	acquire(t, s, lock.KindTransaction, txn.ID, "w2", Epoch)

	jobs, err := s.ListLockedJobs(ctx)
	if err != nil {
		t.Fatalf("ListLockedJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != a.ID || jobs[0].LockedBy != "w1" {
		t.Errorf("locked jobs = %v", jobIDs(jobs))
	}

	txns, err := s.ListLockedTransactions(ctx)
	if err != nil {
		t.Fatalf("ListLockedTransactions: %v", err)
	}
	if len(txns) != 1 || txns[0].ID != txn.ID || txns[0].LockedBy != "w2" {
		t.Errorf("locked transactions = %v", txnIDs(txns))
	}
}

// ──────────────────────────────────────────────────
// Scenarios through the services
// ──────────────────────────────────────────────────

func testScenarioPriorityWins(t *testing.T, s store.Store) {
	clock := NewClock(Epoch)
	_, jobs, _ := services(s, clock)

	a := insertJob(t, s, NewJob("A", 10, Epoch))
	insertJob(t, s, NewJob("B", 1, Epoch.Add(-10*time.Second)))

	got, err := jobs.ClaimNext(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if got == nil || got.ID != a.ID {
		t.Fatalf("claimed %v, want A", got)
	}
	wantHeldBy(t, got.Lease, "worker-1", Epoch)
}

func testScenarioStaleReclaim(t *testing.T, s store.Store) {
	ctx := context.Background()
	clock := NewClock(Epoch)
	locks, _, _ := services(s, clock)

	c := insertJob(t, s, NewJob("C", 1, Epoch))
	if ok, err := locks.Acquire(ctx, lock.KindJob, c.ID, "worker-1"); err != nil || !ok {
		t.Fatalf("worker-1 acquire = %v, %v", ok, err)
	}

	clock.Advance(31 * time.Second)
	ok, err := locks.Acquire(ctx, lock.KindJob, c.ID, "worker-2")
	if err != nil || !ok {
		t.Fatalf("worker-2 acquire = %v, %v", ok, err)
	}
	wantHeldBy(t, getJob(t, s, c.ID).Lease, "worker-2", Epoch.Add(31*time.Second))
}

func testScenarioProcessContention(t *testing.T, s store.Store) {
	ctx := context.Background()
	clock := NewClock(Epoch)
	locks, _, txns := services(s, clock)

	d := insertTxn(t, s, NewTransaction(1000, Epoch))
	if ok, err := locks.Acquire(ctx, lock.KindTransaction, d.ID, "worker-1"); err != nil || !ok {
		t.Fatalf("worker-1 acquire = %v, %v", ok, err)
	}

	ok, err := txns.Process(ctx, d.ID, "worker-2")
	if err != nil || ok {
		t.Fatalf("worker-2 process = %v, %v", ok, err)
	}
	got := getTxn(t, s, d.ID)
	wantHeldBy(t, got.Lease, "worker-1", Epoch)
	if got.Status != transaction.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}

	ok, err = txns.Cancel(ctx, d.ID, "worker-2")
	if err != nil || ok {
		t.Fatalf("worker-2 cancel = %v, %v", ok, err)
	}
	wantHeldBy(t, getTxn(t, s, d.ID).Lease, "worker-1", Epoch)
}

func testScenarioLostLockSetStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	clock := NewClock(Epoch)
	_, jobs, _ := services(s, clock)

	j := insertJob(t, s, NewJob("slow", 1, Epoch))
	claimed, err := jobs.ClaimNext(ctx, "worker-1")
	if err != nil || claimed == nil {
		t.Fatalf("worker-1 claim = %v, %v", claimed, err)
	}

	clock.Advance(TTL + time.Second)
	reclaimed, err := jobs.ClaimNext(ctx, "worker-2")
	if err != nil || reclaimed == nil || reclaimed.ID != j.ID {
		t.Fatalf("worker-2 claim = %v, %v", reclaimed, err)
	}
	if ok, err := jobs.SetStatus(ctx, j.ID, job.StatusRunning, "worker-2", ""); err != nil || !ok {
		t.Fatalf("worker-2 running = %v, %v", ok, err)
	}

	ok, err := jobs.SetStatus(ctx, j.ID, job.StatusCompleted, "worker-1", "")
	if err != nil || ok {
		t.Fatalf("worker-1 completed = %v, %v", ok, err)
	}
	got := getJob(t, s, j.ID)
	if got.Status != job.StatusRunning {
		t.Errorf("status = %q, want running", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	wantHeldBy(t, got.Lease, "worker-2", Epoch.Add(TTL+time.Second))
}

func testProcessEndsTerminal(t *testing.T, s store.Store) {
	ctx := context.Background()
	clock := NewClock(Epoch)
	locks, _, _ := services(s, clock)

	ok := insertTxn(t, s, NewTransaction(100, Epoch))
	bad := insertTxn(t, s, NewTransaction(200, Epoch))

	p := transaction.NewProcessor(s, locks, transaction.WithWork(func(_ context.Context, txn *transaction.Transaction) error {
		if txn.ID == bad.ID {
			return errors.New("ledger rejected")
		}
		return nil
	}))

	done, err := p.Process(ctx, ok.ID, "worker-1")
	if err != nil || !done {
		t.Fatalf("process ok = %v, %v", done, err)
	}
	got := getTxn(t, s, ok.ID)
	if got.Status != transaction.StatusCompleted || got.ProcessedAt == nil {
		t.Errorf("status=%q processed_at=%v", got.Status, got.ProcessedAt)
	}
	wantUnlocked(t, got.Lease)

	done, err = p.Process(ctx, bad.ID, "worker-1")
	if err != nil || done {
		t.Fatalf("process bad = %v, %v", done, err)
	}
	got = getTxn(t, s, bad.ID)
	if got.Status != transaction.StatusFailed || got.ErrorMessage != "ledger rejected" {
		t.Errorf("status=%q error=%q", got.Status, got.ErrorMessage)
	}
	wantUnlocked(t, got.Lease)

	// Terminal transactions cannot be processed again.
	done, err = p.Process(ctx, ok.ID, "worker-2")
	if err != nil || done {
		t.Errorf("reprocess = %v, %v", done, err)
	}
}

func testClaimNextConcurrent(t *testing.T, s store.Store) {
	clock := NewClock(Epoch)
	_, jobs, _ := services(s, clock)

	const total = 6
	for i := range total {
		insertJob(t, s, NewJob(fmt.Sprintf("job-%d", i), i, Epoch))
	}

	claimed := make(chan id.JobID, 3*total)
	var g errgroup.Group
	for w := range 3 * total {
		workerID := fmt.Sprintf("worker-%d", w)
		g.Go(func() error {
			j, err := jobs.ClaimNext(context.Background(), workerID)
			if err != nil {
				return err
			}
			if j != nil {
				if j.LockedBy != workerID {
					return fmt.Errorf("%s got job locked by %s", workerID, j.LockedBy)
				}
				claimed <- j.ID
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	close(claimed)

	seen := make(map[id.JobID]bool)
	for jobID := range claimed {
		if seen[jobID] {
			t.Fatalf("job %s claimed twice", jobID)
		}
		seen[jobID] = true
	}
	if len(seen) != total {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), total)
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func jobIDs(jobs []*job.Job) []id.JobID {
	out := make([]id.JobID, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

func txnIDs(txns []*transaction.Transaction) []id.TransactionID {
	out := make([]id.TransactionID, len(txns))
	for i, t := range txns {
		out[i] = t.ID
	}
	return out
}
