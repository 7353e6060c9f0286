package observability

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/claim/ext"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// Compile-time interface checks.
var (
	_ ext.Extension               = (*MetricsExtension)(nil)
	_ ext.LockAcquired            = (*MetricsExtension)(nil)
	_ ext.LockContended           = (*MetricsExtension)(nil)
	_ ext.LockReleased            = (*MetricsExtension)(nil)
	_ ext.LocksExpired            = (*MetricsExtension)(nil)
	_ ext.JobSubmitted            = (*MetricsExtension)(nil)
	_ ext.JobTransitioned         = (*MetricsExtension)(nil)
	_ ext.TransactionSubmitted    = (*MetricsExtension)(nil)
	_ ext.TransactionTransitioned = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/claim/observability"

// MetricsExtension records system-wide lifecycle metrics with an OTel
// meter. Instruments:
//
//   - claim.lock.acquired, claim.lock.contended (attribute kind)
//   - claim.lock.released (attributes kind, released)
//   - claim.lock.expired: locks cleared by the sweeper (attribute kind)
//   - claim.job.submitted
//   - claim.job.transitions (attributes status, ok)
//   - claim.transaction.submitted (attribute type)
//   - claim.transaction.transitions (attributes status, ok)
type MetricsExtension struct {
	LockAcquired  metric.Int64Counter
	LockContended metric.Int64Counter
	LockReleased  metric.Int64Counter
	LocksExpired  metric.Int64Counter
	JobSubmitted  metric.Int64Counter
	JobMoves      metric.Int64Counter
	TxnSubmitted  metric.Int64Counter
	TxnMoves      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. On instrument errors the OTel API returns noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		LockAcquired:  counter("claim.lock.acquired", "Successful claims"),
		LockContended: counter("claim.lock.contended", "Claim attempts that changed nothing"),
		LockReleased:  counter("claim.lock.released", "Explicit lock releases"),
		LocksExpired:  counter("claim.lock.expired", "Stale locks cleared by the sweeper"),
		JobSubmitted:  counter("claim.job.submitted", "Jobs submitted"),
		JobMoves:      counter("claim.job.transitions", "Job status change requests"),
		TxnSubmitted:  counter("claim.transaction.submitted", "Transactions submitted"),
		TxnMoves:      counter("claim.transaction.transitions", "Transaction status change requests"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Lock hooks ──────────────────────────────────────

// OnLockAcquired implements ext.LockAcquired.
func (m *MetricsExtension) OnLockAcquired(ctx context.Context, kind lock.Kind, _ id.ID, _ string) error {
	m.LockAcquired.Add(ctx, 1, kindAttr(kind))
	return nil
}

// OnLockContended implements ext.LockContended.
func (m *MetricsExtension) OnLockContended(ctx context.Context, kind lock.Kind, _ id.ID, _ string) error {
	m.LockContended.Add(ctx, 1, kindAttr(kind))
	return nil
}

// OnLockReleased implements ext.LockReleased.
func (m *MetricsExtension) OnLockReleased(ctx context.Context, kind lock.Kind, _ id.ID, _ string, released bool) error {
	m.LockReleased.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.Bool("released", released),
	))
	return nil
}

// OnLocksExpired implements ext.LocksExpired.
func (m *MetricsExtension) OnLocksExpired(ctx context.Context, kind lock.Kind, count int64) error {
	if count > 0 {
		m.LocksExpired.Add(ctx, count, kindAttr(kind))
	}
	return nil
}

// ── Job hooks ───────────────────────────────────────

// OnJobSubmitted implements ext.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(ctx context.Context, _ *job.Job) error {
	m.JobSubmitted.Add(ctx, 1)
	return nil
}

// OnJobTransitioned implements ext.JobTransitioned.
func (m *MetricsExtension) OnJobTransitioned(ctx context.Context, _ id.JobID, to job.Status, _ string, ok bool) error {
	m.JobMoves.Add(ctx, 1, moveAttrs(string(to), ok))
	return nil
}

// ── Transaction hooks ───────────────────────────────

// OnTransactionSubmitted implements ext.TransactionSubmitted.
func (m *MetricsExtension) OnTransactionSubmitted(ctx context.Context, t *transaction.Transaction) error {
	m.TxnSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(t.Type))))
	return nil
}

// OnTransactionTransitioned implements ext.TransactionTransitioned.
func (m *MetricsExtension) OnTransactionTransitioned(ctx context.Context, _ id.TransactionID, to transaction.Status, _ string, ok bool) error {
	m.TxnMoves.Add(ctx, 1, moveAttrs(string(to), ok))
	return nil
}

func kindAttr(kind lock.Kind) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", string(kind)))
}

func moveAttrs(status string, ok bool) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("ok", strconv.FormatBool(ok)),
	)
}
