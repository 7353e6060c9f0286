package natshook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/claim/ext"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

// Compile-time interface checks.
var (
	_ ext.Extension               = (*Extension)(nil)
	_ ext.LockAcquired            = (*Extension)(nil)
	_ ext.LockContended           = (*Extension)(nil)
	_ ext.LockReleased            = (*Extension)(nil)
	_ ext.LocksExpired            = (*Extension)(nil)
	_ ext.JobSubmitted            = (*Extension)(nil)
	_ ext.JobClaimed              = (*Extension)(nil)
	_ ext.JobTransitioned         = (*Extension)(nil)
	_ ext.TransactionSubmitted    = (*Extension)(nil)
	_ ext.TransactionTransitioned = (*Extension)(nil)
	_ ext.Shutdown                = (*Extension)(nil)
)

// Publisher is the subset of *nats.Conn the extension needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// flusher is implemented by *nats.Conn.
type flusher interface {
	FlushWithContext(ctx context.Context) error
}

// Extension publishes claim lifecycle events to NATS. Each hook marshals
// a Message and publishes it via [Publisher.Publish].
type Extension struct {
	pub     Publisher
	prefix  string
	enabled map[string]bool // nil = all enabled
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an Extension publishing through pub, typically a *nats.Conn.
func New(pub Publisher, opts ...Option) *Extension {
	h := &Extension{
		pub:    pub,
		prefix: DefaultSubjectPrefix,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "nats-hook" }

// ── Lock hooks ──────────────────────────────────────

// OnLockAcquired implements ext.LockAcquired.
func (h *Extension) OnLockAcquired(_ context.Context, kind lock.Kind, recordID id.ID, workerID string) error {
	return h.publish(&Message{Event: EventLockAcquired, Kind: kind, ID: recordID.String(), WorkerID: workerID})
}

// OnLockContended implements ext.LockContended.
func (h *Extension) OnLockContended(_ context.Context, kind lock.Kind, recordID id.ID, workerID string) error {
	return h.publish(&Message{Event: EventLockContended, Kind: kind, ID: recordID.String(), WorkerID: workerID})
}

// OnLockReleased implements ext.LockReleased.
func (h *Extension) OnLockReleased(_ context.Context, kind lock.Kind, recordID id.ID, workerID string, released bool) error {
	return h.publish(&Message{
		Event:    EventLockReleased,
		Kind:     kind,
		ID:       recordID.String(),
		WorkerID: workerID,
		OK:       &released,
	})
}

// OnLocksExpired implements ext.LocksExpired. Sweeps that cleared nothing
// are not published.
func (h *Extension) OnLocksExpired(_ context.Context, kind lock.Kind, count int64) error {
	if count == 0 {
		return nil
	}
	return h.publish(&Message{Event: EventLocksExpired, Kind: kind, Count: &count})
}

// ── Job hooks ───────────────────────────────────────

// OnJobSubmitted implements ext.JobSubmitted.
func (h *Extension) OnJobSubmitted(_ context.Context, j *job.Job) error {
	return h.publish(&Message{
		Event:  EventSubmitted,
		Kind:   lock.KindJob,
		ID:     j.ID.String(),
		Status: string(j.Status),
		Title:  j.Title,
	})
}

// OnJobClaimed implements ext.JobClaimed.
func (h *Extension) OnJobClaimed(_ context.Context, j *job.Job, workerID string) error {
	return h.publish(&Message{
		Event:    EventClaimed,
		Kind:     lock.KindJob,
		ID:       j.ID.String(),
		WorkerID: workerID,
		Status:   string(j.Status),
		Title:    j.Title,
	})
}

// OnJobTransitioned implements ext.JobTransitioned.
func (h *Extension) OnJobTransitioned(_ context.Context, jobID id.JobID, to job.Status, workerID string, ok bool) error {
	return h.publish(&Message{
		Event:    EventTransitioned,
		Kind:     lock.KindJob,
		ID:       jobID.String(),
		WorkerID: workerID,
		Status:   string(to),
		OK:       &ok,
	})
}

// ── Transaction hooks ───────────────────────────────

// OnTransactionSubmitted implements ext.TransactionSubmitted.
func (h *Extension) OnTransactionSubmitted(_ context.Context, t *transaction.Transaction) error {
	amount := t.Amount
	return h.publish(&Message{
		Event:    EventSubmitted,
		Kind:     lock.KindTransaction,
		ID:       t.ID.String(),
		Status:   string(t.Status),
		Type:     string(t.Type),
		Amount:   &amount,
		Currency: t.Currency,
	})
}

// OnTransactionTransitioned implements ext.TransactionTransitioned.
func (h *Extension) OnTransactionTransitioned(_ context.Context, txnID id.TransactionID, to transaction.Status, workerID string, ok bool) error {
	return h.publish(&Message{
		Event:    EventTransitioned,
		Kind:     lock.KindTransaction,
		ID:       txnID.String(),
		WorkerID: workerID,
		Status:   string(to),
		OK:       &ok,
	})
}

// OnShutdown implements ext.Shutdown. It flushes buffered messages when
// the publisher supports it.
func (h *Extension) OnShutdown(ctx context.Context) error {
	f, ok := h.pub.(flusher)
	if !ok {
		return nil
	}
	if err := f.FlushWithContext(ctx); err != nil {
		h.logger.Warn("nats flush on shutdown failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// ── Internal helpers ────────────────────────────────

// publish sends msg if its event is enabled.
func (h *Extension) publish(msg *Message) error {
	if h.enabled != nil && !h.enabled[msg.Event] {
		return nil
	}
	msg.Time = h.now().UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("natshook: marshal %s: %w", msg.Event, err)
	}
	subject := Subject(h.prefix, msg.Kind, msg.Event)
	if err := h.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("natshook: publish %s: %w", subject, err)
	}
	return nil
}
