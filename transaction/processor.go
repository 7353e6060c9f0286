package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/middleware"
)

// DefaultWork is the simulated processing time of the default WorkFunc.
const DefaultWork = time.Second

// DefaultWindow is the number of pending transactions ProcessNext scans.
const DefaultWindow = 10

// Locker is the subset of lock.Manager the Processor depends on.
type Locker interface {
	Acquire(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string) (bool, error)
	Release(ctx context.Context, kind lock.Kind, recordID id.ID, workerID string) (bool, error)
	Now() time.Time
}

// Emitter receives transaction lifecycle events.
// ext.Registry satisfies this interface.
type Emitter interface {
	EmitTransactionSubmitted(ctx context.Context, t *Transaction)
	EmitTransactionTransitioned(ctx context.Context, txnID id.TransactionID, to Status, workerID string, ok bool)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWork sets the default WorkFunc used by Process.
func WithWork(w WorkFunc) ProcessorOption {
	return func(p *Processor) {
		if w != nil {
			p.work = w
		}
	}
}

// WithWindow sets how many pending transactions ProcessNext scans.
func WithWindow(k int) ProcessorOption {
	return func(p *Processor) {
		if k > 0 {
			p.window = k
		}
	}
}

// WithMiddleware wraps every WorkFunc call.
func WithMiddleware(mws ...middleware.Middleware) ProcessorOption {
	return func(p *Processor) { p.mw = middleware.Chain(mws...) }
}

// WithEmitter sets the lifecycle event sink.
func WithEmitter(e Emitter) ProcessorOption {
	return func(p *Processor) { p.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// Processor processes and cancels transactions. A call that cannot claim
// the transaction returns false immediately; it never waits.
type Processor struct {
	store   Store
	locks   Locker
	work    WorkFunc
	window  int
	mw      middleware.Middleware
	emitter Emitter
	logger  *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, locks Locker, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:  store,
		locks:  locks,
		work:   FixedDelay(DefaultWork),
		window: DefaultWindow,
		mw:     middleware.Chain(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit creates a pending, unlocked transaction. Amount is in minor
// currency units and must not be negative.
func (p *Processor) Submit(ctx context.Context, typ Type, amount int64, opts ...SubmitOption) (*Transaction, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", claim.ErrInvalidTransaction, string(typ))
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative amount %d", claim.ErrInvalidTransaction, amount)
	}

	o := SubmitOptions{Currency: DefaultCurrency}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("%w: %w", claim.ErrInvalidTransaction, err)
		}
	}

	t := &Transaction{
		Entity:      claim.NewEntityAt(p.locks.Now()),
		ID:          id.NewTransactionID(),
		Type:        typ,
		Amount:      amount,
		Currency:    o.Currency,
		Description: o.Description,
		Reference:   o.Reference,
		FromAccount: o.FromAccount,
		ToAccount:   o.ToAccount,
		Metadata:    o.Metadata,
		Status:      StatusPending,
	}
	if err := p.store.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}
	if p.emitter != nil {
		p.emitter.EmitTransactionSubmitted(ctx, t)
	}
	return t, nil
}

// Process claims txnID and runs the configured WorkFunc on it. It returns
// true only when the transaction ends completed. A transaction already
// claimed by another worker, or no longer pending, returns false.
func (p *Processor) Process(ctx context.Context, txnID id.TransactionID, workerID string) (bool, error) {
	return p.ProcessWith(ctx, txnID, workerID, nil)
}

// ProcessWith is Process with a caller-supplied WorkFunc. A nil work uses
// the configured one.
func (p *Processor) ProcessWith(ctx context.Context, txnID id.TransactionID, workerID string, work WorkFunc) (bool, error) {
	_, completed, err := p.process(ctx, txnID, workerID, work)
	return completed, err
}

// ProcessNext processes the oldest pending transaction it can claim and
// returns it reloaded, with whether it completed. It returns nil when none
// of the scanned transactions could be claimed.
func (p *Processor) ProcessNext(ctx context.Context, workerID string) (*Transaction, bool, error) {
	candidates, err := p.store.ListTransactions(ctx, StatusPending, ListOpts{Limit: p.window, Oldest: true})
	if err != nil {
		return nil, false, err
	}

	for _, c := range candidates {
		claimed, completed, procErr := p.process(ctx, c.ID, workerID, nil)
		if errors.Is(procErr, claim.ErrTransactionNotFound) {
			continue
		}
		if !claimed {
			if procErr != nil {
				return nil, false, procErr
			}
			continue
		}

		t, getErr := p.store.GetTransaction(context.WithoutCancel(ctx), c.ID)
		if getErr != nil {
			return nil, completed, errors.Join(procErr, getErr)
		}
		return t, completed, procErr
	}
	return nil, false, nil
}

// Cancel claims txnID and moves it from pending to cancelled, clearing the
// lock. It returns false without side effects when the transaction is
// claimed by someone else or is no longer pending.
func (p *Processor) Cancel(ctx context.Context, txnID id.TransactionID, workerID string) (bool, error) {
	ok, err := p.locks.Acquire(ctx, lock.KindTransaction, txnID, workerID)
	if err != nil || !ok {
		return false, err
	}

	done, err := p.transition(ctx, txnID, workerID, StatusPending, StatusCancelled, "")
	if err != nil || !done {
		p.release(ctx, txnID, workerID)
		return false, err
	}
	return true, nil
}

// Get returns a transaction by ID.
func (p *Processor) Get(ctx context.Context, txnID id.TransactionID) (*Transaction, error) {
	return p.store.GetTransaction(ctx, txnID)
}

// List returns transactions with status. An empty status lists all.
func (p *Processor) List(ctx context.Context, status Status, opts ListOpts) ([]*Transaction, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", claim.ErrInvalidStatus, string(status))
	}
	return p.store.ListTransactions(ctx, status, opts)
}

// Count returns the number of transactions with status. An empty status
// counts all.
func (p *Processor) Count(ctx context.Context, status Status) (int64, error) {
	return p.store.CountTransactions(ctx, status)
}

// process reports whether the lock was acquired and whether the
// transaction completed.
func (p *Processor) process(ctx context.Context, txnID id.TransactionID, workerID string, work WorkFunc) (claimed, completed bool, err error) {
	if work == nil {
		work = p.work
	}

	ok, err := p.locks.Acquire(ctx, lock.KindTransaction, txnID, workerID)
	if err != nil || !ok {
		return false, false, err
	}

	moved, err := p.transition(ctx, txnID, workerID, StatusPending, StatusProcessing, "")
	if err != nil || !moved {
		p.release(ctx, txnID, workerID)
		return true, false, err
	}

	t, err := p.store.GetTransaction(ctx, txnID)
	if err != nil {
		_, finErr := p.finish(ctx, txnID, workerID, StatusFailed, err.Error())
		return true, false, errors.Join(err, finErr)
	}

	item := middleware.Item{
		Kind:     lock.KindTransaction,
		ID:       t.ID,
		Name:     string(t.Type),
		WorkerID: workerID,
	}
	workErr := p.mw(ctx, item, func(ctx context.Context) error {
		return work(ctx, t)
	})

	if workErr != nil {
		_, finErr := p.finish(ctx, txnID, workerID, StatusFailed, workErr.Error())
		return true, false, finErr
	}

	done, finErr := p.finish(ctx, txnID, workerID, StatusCompleted, "")
	return true, done, finErr
}

// finish moves a processing transaction to a terminal status. It runs
// detached from the caller's cancellation so the lock is cleared even when
// the caller gave up during the work.
func (p *Processor) finish(ctx context.Context, txnID id.TransactionID, workerID string, to Status, msg string) (bool, error) {
	done, err := p.transition(context.WithoutCancel(ctx), txnID, workerID, StatusProcessing, to, msg)
	if err == nil && !done {
		p.logger.Warn("transaction lock lost before finishing",
			slog.String("transaction_id", txnID.String()),
			slog.String("worker_id", workerID),
			slog.String("status", string(to)),
		)
	}
	return done, err
}

func (p *Processor) transition(ctx context.Context, txnID id.TransactionID, workerID string, from, to Status, msg string) (bool, error) {
	ok, err := p.store.TransitionTransaction(ctx, Transition{
		TransactionID: txnID,
		WorkerID:      workerID,
		From:          from,
		To:            to,
		ErrorMessage:  strings.TrimSpace(msg),
		At:            p.locks.Now(),
	})
	if err != nil {
		return false, err
	}
	if p.emitter != nil {
		p.emitter.EmitTransactionTransitioned(ctx, txnID, to, workerID, ok)
	}
	return ok, nil
}

func (p *Processor) release(ctx context.Context, txnID id.TransactionID, workerID string) {
	if _, err := p.locks.Release(context.WithoutCancel(ctx), lock.KindTransaction, txnID, workerID); err != nil {
		p.logger.Error("release transaction lock",
			slog.String("transaction_id", txnID.String()),
			slog.String("worker_id", workerID),
			slog.String("error", err.Error()),
		)
	}
}
