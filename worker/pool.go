package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/claim/backoff"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/middleware"
	"github.com/xraph/claim/transaction"
)

// JobClaimer is the subset of job.Service the pool depends on.
type JobClaimer interface {
	ClaimNext(ctx context.Context, workerID string) (*job.Job, error)
	SetStatus(ctx context.Context, jobID id.JobID, status job.Status, workerID, errMsg string) (bool, error)
}

// TransactionProcessor is the subset of transaction.Processor the pool
// depends on.
type TransactionProcessor interface {
	ProcessNext(ctx context.Context, workerID string) (*transaction.Transaction, bool, error)
}

// Pool manages a set of concurrent worker goroutines that claim and
// execute jobs.
type Pool struct {
	jobs        JobClaimer
	txns        TransactionProcessor
	registry    *job.Registry
	mw          middleware.Middleware
	backoff     backoff.Strategy
	limiter     *rate.Limiter
	concurrency int
	baseID      string
	logger      *slog.Logger

	stopCh     chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of job worker goroutines. Zero runs no
// job loop, which is useful with WithTransactions.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.concurrency = n
		}
	}
}

// WithWorkerID sets the base worker ID. Goroutine n claims as "<base>-<n>".
func WithWorkerID(base string) PoolOption {
	return func(p *Pool) {
		if base != "" {
			p.baseID = base
		}
	}
}

// WithBackoff sets the idle polling strategy.
func WithBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) {
		if s != nil {
			p.backoff = s
		}
	}
}

// WithClaimRate limits claim attempts across the pool to perSecond.
// Non-positive values disable the limiter.
func WithClaimRate(perSecond float64) PoolOption {
	return func(p *Pool) {
		if perSecond <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
}

// WithMiddleware sets the middleware wrapping every job handler.
func WithMiddleware(mws ...middleware.Middleware) PoolOption {
	return func(p *Pool) { p.mw = middleware.Chain(mws...) }
}

// WithTransactions enables the transaction loop, driven by proc.
func WithTransactions(proc TransactionProcessor) PoolOption {
	return func(p *Pool) { p.txns = proc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool executing handlers from registry.
func NewPool(jobs JobClaimer, registry *job.Registry, opts ...PoolOption) *Pool {
	if registry == nil {
		registry = job.NewRegistry()
	}
	p := &Pool{
		jobs:        jobs,
		registry:    registry,
		mw:          middleware.Chain(),
		backoff:     backoff.DefaultStrategy(),
		concurrency: 4,
		baseID:      id.NewWorkerName(),
		logger:      slog.Default(),
		activeJobs:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerIDs returns the worker ID of every job goroutine, and of the
// transaction loop when enabled.
func (p *Pool) WorkerIDs() []string {
	ids := make([]string, 0, p.concurrency+1)
	for n := 1; n <= p.concurrency; n++ {
		ids = append(ids, p.jobWorkerID(n))
	}
	if p.txns != nil {
		ids = append(ids, p.txnWorkerID())
	}
	return ids
}

func (p *Pool) jobWorkerID(n int) string { return p.baseID + "-" + strconv.Itoa(n) }

func (p *Pool) txnWorkerID() string { return p.baseID + "-txn" }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})

	// loopCtx ends limiter waits and job claims on Stop. Handlers and
	// transaction work run on their own contexts.
	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.baseID),
		slog.Int("concurrency", p.concurrency),
		slog.Bool("transactions", p.txns != nil),
	)

	for n := 1; n <= p.concurrency; n++ {
		p.wg.Add(1)
		go p.jobLoop(loopCtx, p.jobWorkerID(n))
	}
	if p.txns != nil {
		p.wg.Add(1)
		go p.txnLoop(loopCtx, p.txnWorkerID())
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Jobs and transactions in progress run to completion unless ctx ends
// first, in which case their contexts are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.baseID))

	close(p.stopCh)
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}
	return nil
}

// jobLoop is run by each job worker goroutine.
func (p *Pool) jobLoop(ctx context.Context, workerID string) {
	defer p.wg.Done()
	idle := backoff.NewIdle(p.backoff)

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		if !p.wait(ctx) {
			return
		}

		j, err := p.jobs.ClaimNext(ctx, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("claim error",
				slog.String("worker_id", workerID),
				slog.String("error", err.Error()),
			)
			p.sleep(idle.Miss())
			continue
		}
		if j == nil {
			p.sleep(idle.Miss())
			continue
		}

		idle.Reset()
		p.runJob(workerID, j)
	}
}

// runJob moves a claimed job to running, executes it and records the
// outcome. Store calls here use a fresh context so a stopping pool still
// records results for the jobs it finished.
func (p *Pool) runJob(workerID string, j *job.Job) {
	bg := context.Background()

	ok, err := p.jobs.SetStatus(bg, j.ID, job.StatusRunning, workerID, "")
	if err != nil {
		p.logger.Error("failed to start job",
			slog.String("job_id", j.ID.String()),
			slog.String("worker_id", workerID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		// Reclaimed by another worker between claim and start.
		return
	}

	jobCtx, cancel := context.WithCancel(bg)
	p.trackJob(j.ID.String(), cancel)
	runErr := p.execute(jobCtx, workerID, j)
	p.untrackJob(j.ID.String())
	cancel()

	status, msg := job.StatusCompleted, ""
	if runErr != nil {
		status, msg = job.StatusFailed, runErr.Error()
	}

	done, err := p.jobs.SetStatus(bg, j.ID, status, workerID, msg)
	switch {
	case err != nil:
		p.logger.Error("failed to record job outcome",
			slog.String("job_id", j.ID.String()),
			slog.String("worker_id", workerID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	case !done:
		p.logger.Warn("job outcome discarded, lock lost",
			slog.String("job_id", j.ID.String()),
			slog.String("worker_id", workerID),
			slog.String("status", string(status)),
		)
	}
}

func (p *Pool) execute(ctx context.Context, workerID string, j *job.Job) error {
	handler, ok := p.registry.Lookup(j.Title)
	if !ok {
		return fmt.Errorf("no handler registered for job %q", j.Title)
	}

	item := middleware.Item{
		Kind:     lock.KindJob,
		ID:       j.ID,
		Name:     j.Title,
		WorkerID: workerID,
		Attempt:  j.Attempts + 1,
	}
	return p.mw(ctx, item, func(ctx context.Context) error {
		return handler(ctx, j)
	})
}

// txnLoop polls for pending transactions.
func (p *Pool) txnLoop(ctx context.Context, workerID string) {
	defer p.wg.Done()
	idle := backoff.NewIdle(p.backoff)

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		if !p.wait(ctx) {
			return
		}

		t, completed, err := p.processNext(workerID)
		if err != nil {
			p.logger.Error("transaction processing error",
				slog.String("worker_id", workerID),
				slog.String("error", err.Error()),
			)
		}
		if t == nil {
			p.sleep(idle.Miss())
			continue
		}

		idle.Reset()
		p.logger.Debug("transaction processed",
			slog.String("transaction_id", t.ID.String()),
			slog.String("worker_id", workerID),
			slog.Bool("completed", completed),
		)
	}
}

// processNext runs one ProcessNext on a context that only a timed-out
// Stop cancels, so a graceful stop lets the transaction in hand finish.
func (p *Pool) processNext(workerID string) (*transaction.Transaction, bool, error) {
	txnCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.trackJob(workerID, cancel)
	defer p.untrackJob(workerID)

	return p.txns.ProcessNext(txnCtx, workerID)
}

// wait blocks on the claim limiter. It returns false when the pool stops.
func (p *Pool) wait(ctx context.Context) bool {
	if p.limiter == nil {
		return true
	}
	return p.limiter.Wait(ctx) == nil
}

func (p *Pool) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(key string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[key] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(key string) {
	p.activeMu.Lock()
	delete(p.activeJobs, key)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for key, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active work", slog.String("key", key))
		cancel()
	}
}
