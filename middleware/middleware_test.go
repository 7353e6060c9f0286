package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/middleware"
)

func newTestItem() middleware.Item {
	return middleware.Item{
		Kind:     lock.KindJob,
		ID:       id.NewJobID(),
		Name:     "send-email",
		WorkerID: "worker-a",
		Attempt:  2,
	}
}

func noop(context.Context) error { return nil }

// recorder appends its name around next so chains can assert ordering.
func recorder(name string, trail *[]string) middleware.Middleware {
	return func(ctx context.Context, _ middleware.Item, next middleware.Handler) error {
		*trail = append(*trail, name+">")
		err := next(ctx)
		*trail = append(*trail, "<"+name)
		return err
	}
}

func TestChain(t *testing.T) {
	var trail []string
	chain := middleware.Chain(recorder("outer", &trail), recorder("inner", &trail))

	err := chain(context.Background(), newTestItem(), func(context.Context) error {
		trail = append(trail, "work")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"outer>", "inner>", "work", "<inner", "<outer"}
	if !slices.Equal(trail, want) {
		t.Errorf("trail = %v, want %v", trail, want)
	}
}

func TestChainEmptyAndErrors(t *testing.T) {
	failed := errors.New("work failed")

	if err := middleware.Chain()(context.Background(), newTestItem(), func(context.Context) error {
		return failed
	}); !errors.Is(err, failed) {
		t.Errorf("empty chain err = %v", err)
	}

	var trail []string
	if err := middleware.Chain(recorder("a", &trail))(context.Background(), newTestItem(), func(context.Context) error {
		return failed
	}); !errors.Is(err, failed) {
		t.Errorf("chain err = %v", err)
	}
}

func TestChainSeesItem(t *testing.T) {
	it := newTestItem()
	var seen middleware.Item
	_ = middleware.Chain(func(ctx context.Context, got middleware.Item, next middleware.Handler) error {
		seen = got
		return next(ctx)
	})(context.Background(), it, noop)

	if seen != it {
		t.Errorf("seen %+v, want %+v", seen, it)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{errors.New("x"), "error"},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "timeout"},
		{context.Canceled, "canceled"},
	}
	for _, tt := range tests {
		if got := middleware.Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	rec := middleware.Recover(slog.New(slog.NewTextHandler(&buf, nil)))

	it := newTestItem()
	it.Kind = lock.KindTransaction
	it.Name = "refund"
	err := rec(context.Background(), it, func(context.Context) error { panic("ledger closed") })
	if err == nil || err.Error() != "panic in transaction refund: ledger closed" {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(buf.String(), "work panicked") {
		t.Errorf("panic not logged: %q", buf.String())
	}

	if err := rec(context.Background(), newTestItem(), noop); err != nil {
		t.Errorf("no panic: err = %v", err)
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, "level=INFO msg=\"work completed\""},
		{"canceled", context.Canceled, "level=WARN msg=\"work canceled\""},
		{"failed", errors.New("smtp down"), "outcome=error error=\"smtp down\""},
		{"timeout", context.DeadlineExceeded, "outcome=timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logging := middleware.Logging(slog.New(slog.NewTextHandler(&buf, nil)))

			err := logging(context.Background(), newTestItem(), func(context.Context) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	expired := middleware.Timeout(20 * time.Millisecond)
	err := expired(context.Background(), newTestItem(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if middleware.Outcome(err) != "timeout" {
		t.Errorf("err = %v, want deadline", err)
	}

	unbounded := middleware.Timeout(0)
	_ = unbounded(context.Background(), newTestItem(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout set a deadline")
		}
		return nil
	})
}
