package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/claim"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store"
	redisstore "github.com/xraph/claim/store/redis"
	"github.com/xraph/claim/store/storetest"
)

func newStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := redisstore.New(client)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s, mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t)
		return s
	})
}

func TestPing(t *testing.T) {
	s, mr := newStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	mr.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail after server close")
	}
}

func TestIndexesFollowLock(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	j := storetest.NewJob("indexed", 1, storetest.Epoch)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ok, err := s.AcquireLock(ctx, lock.KindJob, j.ID, "w1", storetest.Epoch, storetest.Epoch.Add(-storetest.TTL)); err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}

	members, err := mr.ZMembers("claim:jobs:locked")
	if err != nil {
		t.Fatalf("locked index: %v", err)
	}
	if len(members) != 1 || members[0] != j.ID.String() {
		t.Fatalf("locked index = %v", members)
	}

	n, err := s.SweepExpiredLocks(ctx, lock.KindJob, storetest.Epoch.Add(time.Second), storetest.Epoch.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	if mr.Exists("claim:jobs:locked") {
		t.Fatal("locked index should be empty after sweep")
	}
	if got := mr.HGet("claim:job:"+j.ID.String(), "locked_by"); got != "" {
		t.Fatalf("locked_by = %q after sweep", got)
	}
}

func TestClaimCandidatesReadsIndexHead(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	const total, limit = 500, 10
	jobs := make([]*job.Job, total)
	for i := range jobs {
		jobs[i] = storetest.NewJob("bulk", i%5, storetest.Epoch.Add(time.Duration(i)*time.Millisecond))
		if err := s.InsertJob(ctx, jobs[i]); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	before := mr.CommandCount()
	got, err := s.ListClaimCandidates(ctx, storetest.Epoch.Add(time.Hour), limit)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	used := mr.CommandCount() - before

	// The promote script and its range, one ZRANGE and one HGETALL per
	// returned job, plus a little slack.
	if budget := limit + 6; used > budget {
		t.Fatalf("used %d commands for %d candidates, want at most %d", used, limit, budget)
	}
	if len(got) != limit {
		t.Fatalf("got %d candidates, want %d", len(got), limit)
	}
	for i, j := range got {
		want := jobs[4+5*i]
		if j.ID.String() != want.ID.String() {
			t.Fatalf("candidate %d = %s (priority %d), want %s", i, j.ID, j.Priority, want.ID)
		}
	}
}

func TestClaimCandidatesPromotesScheduled(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	sched := storetest.Epoch.Add(time.Hour)
	later := storetest.NewJob("later", 9, storetest.Epoch)
	later.ScheduledAt = &sched
	now := storetest.NewJob("now", 1, storetest.Epoch)
	for _, j := range []*job.Job{later, now} {
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatalf("insert %s: %v", j.Title, err)
		}
	}

	got, err := s.ListClaimCandidates(ctx, storetest.Epoch, 10)
	if err != nil {
		t.Fatalf("list before due: %v", err)
	}
	if len(got) != 1 || got[0].Title != "now" {
		t.Fatalf("candidates before due = %v", titles(got))
	}

	got, err = s.ListClaimCandidates(ctx, sched, 10)
	if err != nil {
		t.Fatalf("list when due: %v", err)
	}
	if len(got) != 2 || got[0].Title != "later" || got[1].Title != "now" {
		t.Fatalf("candidates when due = %v, want [later now]", titles(got))
	}
	if mr.Exists("claim:jobs:scheduled") {
		t.Fatal("scheduled index should be empty after promotion")
	}

	// Leaving pending drops the job from the candidate index.
	if ok, err := s.AcquireLock(ctx, lock.KindJob, later.ID, "w1", sched, sched.Add(-storetest.TTL)); err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}
	ok, err := s.TransitionJob(ctx, job.Transition{JobID: later.ID, WorkerID: "w1", To: job.StatusRunning, At: sched})
	if err != nil || !ok {
		t.Fatalf("transition = %v, %v", ok, err)
	}
	members, err := mr.ZMembers("claim:jobs:candidates")
	if err != nil {
		t.Fatalf("candidate index: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("candidate index = %v, want one member", members)
	}
}

func TestClosedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := redisstore.New(client)
	ctx := context.Background()

	j := storetest.NewJob("closed", 1, storetest.Epoch)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close client: %v", err)
	}

	if err := s.Ping(ctx); !errors.Is(err, claim.ErrStoreClosed) {
		t.Errorf("ping err = %v, want ErrStoreClosed", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, claim.ErrStoreClosed) {
		t.Errorf("get err = %v, want ErrStoreClosed", err)
	}
	if _, err := s.CountJobs(ctx, ""); !errors.Is(err, claim.ErrStoreClosed) {
		t.Errorf("count err = %v, want ErrStoreClosed", err)
	}
}

func titles(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Title
	}
	return out
}

func TestUnknownKind(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.ReleaseLock(context.Background(), lock.Kind("invoice"), storetest.NewJob("x", 0, storetest.Epoch).ID, "w1", storetest.Epoch)
	if !errors.Is(err, claim.ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}
