package observability_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/observability"
	"github.com/xraph/claim/transaction"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

// sumFor returns the total of an Int64 sum, optionally restricted to data
// points carrying attr.
func sumFor(t *testing.T, reader *sdkmetric.ManualReader, name string, attr *attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				if attr != nil {
					v, found := dp.Attributes.Value(attr.Key)
					if !found || v != attr.Value {
						continue
					}
				}
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_LockHooks(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()
	jobID := id.NewJobID()

	_ = e.OnLockAcquired(ctx, lock.KindJob, jobID, "w1")
	_ = e.OnLockAcquired(ctx, lock.KindTransaction, id.NewTransactionID(), "w1")
	_ = e.OnLockContended(ctx, lock.KindJob, jobID, "w2")
	_ = e.OnLockReleased(ctx, lock.KindJob, jobID, "w1", true)
	_ = e.OnLocksExpired(ctx, lock.KindJob, 3)
	_ = e.OnLocksExpired(ctx, lock.KindJob, 0)

	jobKind := attribute.String("kind", "job")
	if got := sumFor(t, reader, "claim.lock.acquired", nil); got != 2 {
		t.Errorf("acquired = %d, want 2", got)
	}
	if got := sumFor(t, reader, "claim.lock.acquired", &jobKind); got != 1 {
		t.Errorf("acquired{kind=job} = %d, want 1", got)
	}
	if got := sumFor(t, reader, "claim.lock.contended", nil); got != 1 {
		t.Errorf("contended = %d, want 1", got)
	}
	if got := sumFor(t, reader, "claim.lock.released", nil); got != 1 {
		t.Errorf("released = %d, want 1", got)
	}
	if got := sumFor(t, reader, "claim.lock.expired", nil); got != 3 {
		t.Errorf("expired = %d, want 3", got)
	}
}

func TestMetricsExtension_TransitionHooks(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()

	_ = e.OnJobSubmitted(ctx, &job.Job{ID: id.NewJobID()})
	_ = e.OnJobTransitioned(ctx, id.NewJobID(), job.StatusRunning, "w1", true)
	_ = e.OnJobTransitioned(ctx, id.NewJobID(), job.StatusCompleted, "w1", false)
	_ = e.OnTransactionSubmitted(ctx, &transaction.Transaction{Type: transaction.TypeDebit})
	_ = e.OnTransactionTransitioned(ctx, id.NewTransactionID(), transaction.StatusCompleted, "w1", true)

	if got := sumFor(t, reader, "claim.job.submitted", nil); got != 1 {
		t.Errorf("job submitted = %d, want 1", got)
	}
	rejected := attribute.String("ok", "false")
	if got := sumFor(t, reader, "claim.job.transitions", &rejected); got != 1 {
		t.Errorf("job transitions{ok=false} = %d, want 1", got)
	}
	debit := attribute.String("type", "debit")
	if got := sumFor(t, reader, "claim.transaction.submitted", &debit); got != 1 {
		t.Errorf("transaction submitted{type=debit} = %d, want 1", got)
	}
	if got := sumFor(t, reader, "claim.transaction.transitions", nil); got != 1 {
		t.Errorf("transaction transitions = %d, want 1", got)
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnLockAcquired(context.Background(), lock.KindJob, id.NewJobID(), "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
