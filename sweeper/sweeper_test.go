package sweeper_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/store/memory"
	"github.com/xraph/claim/store/storetest"
	"github.com/xraph/claim/sweeper"
)

type countingLocks struct {
	calls atomic.Int64
	err   error
}

func (c *countingLocks) SweepExpired(context.Context) (lock.SweepResult, error) {
	c.calls.Add(1)
	return lock.SweepResult{Jobs: 1}, c.err
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"@every 10s", false},
		{"*/5 * * * *", false},
		{"@hourly", false},
		{"not a schedule", true},
		{"* * * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := sweeper.ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := sweeper.New(&countingLocks{}, sweeper.WithSchedule("bogus")); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRunOnce_ClearsExpiredLocks(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	clock := storetest.NewClock(storetest.Epoch)
	locks := lock.NewManager(s, lock.WithTTL(storetest.TTL), lock.WithClock(clock.Now))

	fresh := storetest.NewJob("fresh", 0, storetest.Epoch)
	stale := storetest.NewJob("stale", 0, storetest.Epoch)
	if err := s.InsertJob(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertJob(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if ok, err := locks.Acquire(ctx, lock.KindJob, stale.ID, "crashed"); err != nil || !ok {
		t.Fatalf("acquire stale: ok=%v err=%v", ok, err)
	}
	clock.Advance(storetest.TTL + time.Second)
	if ok, err := locks.Acquire(ctx, lock.KindJob, fresh.ID, "alive"); err != nil || !ok {
		t.Fatalf("acquire fresh: ok=%v err=%v", ok, err)
	}

	sw, err := sweeper.New(locks)
	if err != nil {
		t.Fatal(err)
	}
	res, err := sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Jobs != 1 || res.Transactions != 0 {
		t.Errorf("result = %+v, want 1 job", res)
	}

	got, _ := s.GetJob(ctx, stale.ID)
	if got.Held() {
		t.Errorf("stale lock not cleared: %+v", got.Lease)
	}
	got, _ = s.GetJob(ctx, fresh.ID)
	if !got.HeldBy("alive") {
		t.Errorf("fresh lock cleared: %+v", got.Lease)
	}
}

func TestRunOnce_ReturnsError(t *testing.T) {
	boom := errors.New("store down")
	sw, _ := sweeper.New(&countingLocks{err: boom})
	if _, err := sw.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestSweeper_IntervalLoop(t *testing.T) {
	cl := &countingLocks{}
	sw, err := sweeper.New(cl, sweeper.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Double start should be no-op.
	_ = sw.Start(context.Background())

	deadline := time.After(5 * time.Second)
	for cl.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sweeps, got %d", cl.calls.Load())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if err := sw.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	after := cl.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if cl.calls.Load() != after {
		t.Error("sweeps continued after Stop")
	}
	// Double stop should be no-op.
	_ = sw.Stop(context.Background())
}

func TestSweeper_FailuresDoNotStopLoop(t *testing.T) {
	cl := &countingLocks{err: errors.New("transient")}
	sw, _ := sweeper.New(cl, sweeper.WithInterval(5*time.Millisecond))
	_ = sw.Start(context.Background())
	defer sw.Stop(context.Background()) //nolint:errcheck // test cleanup

	deadline := time.After(5 * time.Second)
	for cl.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("loop stopped after a failed sweep")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestSweeper_ScheduleLoop(t *testing.T) {
	cl := &countingLocks{}
	sw, err := sweeper.New(cl, sweeper.WithSchedule("@every 1s"))
	if err != nil {
		t.Fatal(err)
	}
	_ = sw.Start(context.Background())
	defer sw.Stop(context.Background()) //nolint:errcheck // test cleanup

	deadline := time.After(5 * time.Second)
	for cl.calls.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("scheduled sweep never ran")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}
