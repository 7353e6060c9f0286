package natshook_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	nats "github.com/nats-io/nats.go"

	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/natshook"
	"github.com/xraph/claim/transaction"
)

type published struct {
	subject string
	msg     natshook.Message
}

type recordingPublisher struct {
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(subj string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	var m natshook.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{subject: subj, msg: m})
	return nil
}

func newConn(t *testing.T) *nats.Conn {
	t.Helper()
	s := natsserver.RunRandClientPortServer()
	conn, err := nats.Connect(s.ClientURL())
	if err != nil {
		s.Shutdown()
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		s.Shutdown()
	})
	return conn
}

func TestExtension_Name(t *testing.T) {
	h := natshook.New(&recordingPublisher{})
	if h.Name() != "nats-hook" {
		t.Errorf("expected name %q, got %q", "nats-hook", h.Name())
	}
}

func TestSubject(t *testing.T) {
	got := natshook.Subject("claim", lock.KindTransaction, natshook.EventTransitioned)
	if got != "claim.transaction.transitioned" {
		t.Errorf("Subject = %q", got)
	}
}

func TestExtension_Subjects(t *testing.T) {
	pub := &recordingPublisher{}
	h := natshook.New(pub)
	ctx := context.Background()
	jobID := id.NewJobID()
	txnID := id.NewTransactionID()

	_ = h.OnLockAcquired(ctx, lock.KindJob, jobID, "w1")
	_ = h.OnLockContended(ctx, lock.KindTransaction, txnID, "w2")
	_ = h.OnLockReleased(ctx, lock.KindJob, jobID, "w1", false)
	_ = h.OnLocksExpired(ctx, lock.KindTransaction, 2)
	_ = h.OnJobSubmitted(ctx, &job.Job{ID: jobID, Title: "report", Status: job.StatusPending})
	_ = h.OnJobClaimed(ctx, &job.Job{ID: jobID, Title: "report", Status: job.StatusPending}, "w1")
	_ = h.OnJobTransitioned(ctx, jobID, job.StatusRunning, "w1", true)
	_ = h.OnTransactionSubmitted(ctx, &transaction.Transaction{ID: txnID, Type: transaction.TypeCredit, Amount: 1250, Currency: "EUR"})
	_ = h.OnTransactionTransitioned(ctx, txnID, transaction.StatusCompleted, "w1", true)

	want := []string{
		"claim.job.lock_acquired",
		"claim.transaction.lock_contended",
		"claim.job.lock_released",
		"claim.transaction.locks_expired",
		"claim.job.submitted",
		"claim.job.claimed",
		"claim.job.transitioned",
		"claim.transaction.submitted",
		"claim.transaction.transitioned",
	}
	if len(pub.msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(pub.msgs))
	}
	for i, w := range want {
		if pub.msgs[i].subject != w {
			t.Errorf("message %d: subject = %q, want %q", i, pub.msgs[i].subject, w)
		}
	}

	released := pub.msgs[2].msg
	if released.OK == nil || *released.OK {
		t.Errorf("lock_released ok = %v, want false", released.OK)
	}
	expired := pub.msgs[3].msg
	if expired.Count == nil || *expired.Count != 2 {
		t.Errorf("locks_expired count = %v, want 2", expired.Count)
	}
	txn := pub.msgs[7].msg
	if txn.Amount == nil || *txn.Amount != 1250 || txn.Currency != "EUR" || txn.Type != "credit" {
		t.Errorf("unexpected transaction payload: %+v", txn)
	}
}

func TestExtension_SkipsEmptySweep(t *testing.T) {
	pub := &recordingPublisher{}
	h := natshook.New(pub)
	if err := h.OnLocksExpired(context.Background(), lock.KindJob, 0); err != nil {
		t.Fatalf("OnLocksExpired: %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(pub.msgs))
	}
}

func TestExtension_WithEvents(t *testing.T) {
	pub := &recordingPublisher{}
	h := natshook.New(pub, natshook.WithEvents(natshook.EventTransitioned))
	ctx := context.Background()

	_ = h.OnLockAcquired(ctx, lock.KindJob, id.NewJobID(), "w1")
	_ = h.OnJobTransitioned(ctx, id.NewJobID(), job.StatusFailed, "w1", true)

	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	if pub.msgs[0].msg.Status != "failed" {
		t.Errorf("status = %q, want failed", pub.msgs[0].msg.Status)
	}
}

func TestExtension_WithSubjectPrefix(t *testing.T) {
	pub := &recordingPublisher{}
	h := natshook.New(pub, natshook.WithSubjectPrefix("billing"))
	_ = h.OnLockAcquired(context.Background(), lock.KindJob, id.NewJobID(), "w1")

	if len(pub.msgs) != 1 || pub.msgs[0].subject != "billing.job.lock_acquired" {
		t.Fatalf("unexpected messages: %+v", pub.msgs)
	}
}

func TestExtension_PublishError(t *testing.T) {
	boom := errors.New("connection closed")
	h := natshook.New(&recordingPublisher{err: boom})

	err := h.OnLockAcquired(context.Background(), lock.KindJob, id.NewJobID(), "w1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}

func TestExtension_EmbeddedServer(t *testing.T) {
	conn := newConn(t)
	sub, err := conn.SubscribeSync("claim.job.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	h := natshook.New(conn)
	ctx := context.Background()
	jobID := id.NewJobID()

	if err := h.OnJobTransitioned(ctx, jobID, job.StatusCompleted, "worker-a", true); err != nil {
		t.Fatalf("OnJobTransitioned: %v", err)
	}
	// Transactions go to a subject outside the subscription.
	if err := h.OnTransactionTransitioned(ctx, id.NewTransactionID(), transaction.StatusCompleted, "worker-a", true); err != nil {
		t.Fatalf("OnTransactionTransitioned: %v", err)
	}
	if err := h.OnShutdown(ctx); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next message: %v", err)
	}
	if msg.Subject != "claim.job.transitioned" {
		t.Errorf("subject = %q", msg.Subject)
	}

	var m natshook.Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ID != jobID.String() || m.WorkerID != "worker-a" || m.Status != "completed" {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.OK == nil || !*m.OK {
		t.Error("expected ok=true")
	}

	if _, err := sub.NextMsg(100 * time.Millisecond); !errors.Is(err, nats.ErrTimeout) {
		t.Errorf("expected no further messages, got %v", err)
	}
}
