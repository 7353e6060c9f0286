package claim_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/claim"
)

type fakeStore struct{ closed bool }

func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Ping(context.Context) error    { return nil }
func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

type fakeComponent struct {
	name     string
	log      *[]string
	startErr error
}

func (c *fakeComponent) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	*c.log = append(*c.log, "start "+c.name)
	return nil
}

func (c *fakeComponent) Stop(context.Context) error {
	*c.log = append(*c.log, "stop "+c.name)
	return nil
}

type shutdownRecorder struct{ called bool }

func (s *shutdownRecorder) EmitShutdown(context.Context) { s.called = true }

func TestNew_Defaults(t *testing.T) {
	r, err := claim.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg := r.Config()
	if cfg != claim.DefaultConfig() {
		t.Errorf("config = %+v, want defaults", cfg)
	}
	if cfg.LockTTL != 30*time.Second || cfg.CandidateWindow != 10 || cfg.SweepInterval != 15*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if r.Logger() == nil {
		t.Error("expected default logger")
	}
}

func TestNew_Options(t *testing.T) {
	r, err := claim.New(
		claim.WithLockTTL(time.Minute),
		claim.WithCandidateWindow(25),
		claim.WithSweepInterval(5*time.Second),
		claim.WithSweepSchedule("@every 10s"),
		claim.WithConcurrency(12),
		claim.WithPollInterval(200*time.Millisecond),
		claim.WithClaimRate(50),
		claim.WithTransactionProcessing(true),
		claim.WithTransactionWork(250*time.Millisecond),
		claim.WithShutdownTimeout(time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := r.Config()
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"LockTTL", cfg.LockTTL, time.Minute},
		{"CandidateWindow", cfg.CandidateWindow, 25},
		{"SweepInterval", cfg.SweepInterval, 5 * time.Second},
		{"SweepSchedule", cfg.SweepSchedule, "@every 10s"},
		{"Concurrency", cfg.Concurrency, 12},
		{"PollInterval", cfg.PollInterval, 200 * time.Millisecond},
		{"ClaimRate", cfg.ClaimRate, 50.0},
		{"ProcessTransactions", cfg.ProcessTransactions, true},
		{"TransactionWork", cfg.TransactionWork, 250 * time.Millisecond},
		{"ShutdownTimeout", cfg.ShutdownTimeout, time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestRunner_StartWithoutStore(t *testing.T) {
	r, _ := claim.New()
	if err := r.Start(context.Background()); !errors.Is(err, claim.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestRunner_Lifecycle(t *testing.T) {
	s := &fakeStore{}
	r, _ := claim.New(claim.WithStore(s))

	var log []string
	r.AddComponent(&fakeComponent{name: "sweeper", log: &log})
	r.AddComponent(&fakeComponent{name: "pool", log: &log})
	ext := &shutdownRecorder{}
	r.SetExtensions(ext)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"start sweeper", "start pool", "stop pool", "stop sweeper"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
	if !ext.called {
		t.Error("expected extensions to be notified of shutdown")
	}
	if !s.closed {
		t.Error("expected store to be closed")
	}
}

func TestRunner_StartFailureStopsStarted(t *testing.T) {
	r, _ := claim.New(claim.WithStore(&fakeStore{}))

	var log []string
	boom := errors.New("boom")
	r.AddComponent(&fakeComponent{name: "sweeper", log: &log})
	r.AddComponent(&fakeComponent{name: "pool", log: &log, startErr: boom})

	if err := r.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	want := []string{"start sweeper", "stop sweeper"}
	if len(log) != len(want) || log[0] != want[0] || log[1] != want[1] {
		t.Errorf("log = %v, want %v", log, want)
	}
}
