package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/claim"
	"github.com/xraph/claim/backoff"
	"github.com/xraph/claim/ext"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	mw "github.com/xraph/claim/middleware"
	"github.com/xraph/claim/monitor"
	"github.com/xraph/claim/observability"
	"github.com/xraph/claim/store"
	"github.com/xraph/claim/sweeper"
	"github.com/xraph/claim/transaction"
	"github.com/xraph/claim/worker"
)

// Engine wraps a Runner with typed subsystem access.
// Use Build() to create one from a Runner.
type Engine struct {
	r          *claim.Runner
	store      store.Store
	extensions *ext.Registry
	registry   *job.Registry
	locks      *lock.Manager
	jobs       *job.Service
	txns       *transaction.Processor
	pool       *worker.Pool
	sweeper    *sweeper.Sweeper
	monitor    *monitor.Monitor
	mws        []mw.Middleware
	logger     *slog.Logger

	clock    func() time.Time
	work     transaction.WorkFunc
	workerID string

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithClock sets the time source for every lock timestamp, expiry check
// and record timestamp.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) {
		eng.clock = now
	}
}

// WithTransactionWork sets the function run for each processed
// transaction. By default processing waits Config.TransactionWork.
func WithTransactionWork(w transaction.WorkFunc) Option {
	return func(eng *Engine) {
		eng.work = w
	}
}

// WithWorkerID sets the base worker ID of the pool. By default a random
// TypeID is used.
func WithWorkerID(base string) Option {
	return func(eng *Engine) {
		eng.workerID = base
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Runner.
// The Runner's store must implement store.Store.
func Build(r *claim.Runner, opts ...Option) (*Engine, error) {
	logger := r.Logger()
	if r.Store() == nil {
		return nil, claim.ErrNoStore
	}

	s, ok := r.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("claim: store does not implement store.Store")
	}

	eng := &Engine{
		r:          r,
		store:      s,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	cfg := r.Config()

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter("github.com/xraph/claim/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	lockOpts := []lock.Option{
		lock.WithTTL(cfg.LockTTL),
		lock.WithEmitter(eng.extensions),
		lock.WithLogger(logger),
	}
	if eng.clock != nil {
		lockOpts = append(lockOpts, lock.WithClock(eng.clock))
	}
	eng.locks = lock.NewManager(s, lockOpts...)

	eng.jobs = job.NewService(s, eng.locks,
		job.WithWindow(cfg.CandidateWindow),
		job.WithEmitter(eng.extensions),
		job.WithLogger(logger),
	)

	mws := eng.middleware()

	work := eng.work
	if work == nil {
		work = transaction.FixedDelay(cfg.TransactionWork)
	}
	eng.txns = transaction.NewProcessor(s, eng.locks,
		transaction.WithWork(work),
		transaction.WithWindow(cfg.CandidateWindow),
		transaction.WithMiddleware(mws...),
		transaction.WithEmitter(eng.extensions),
		transaction.WithLogger(logger),
	)

	eng.monitor = monitor.New(s, eng.locks)

	sw, err := sweeper.New(eng.locks,
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithSchedule(cfg.SweepSchedule),
		sweeper.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	eng.sweeper = sw

	poolOpts := []worker.PoolOption{
		worker.WithConcurrency(cfg.Concurrency),
		worker.WithBackoff(backoff.NewExponentialWithJitter(cfg.PollInterval, cfg.MaxPollInterval)),
		worker.WithClaimRate(cfg.ClaimRate),
		worker.WithMiddleware(mws...),
		worker.WithWorkerID(eng.workerID),
		worker.WithLogger(logger),
	}
	if cfg.ProcessTransactions {
		poolOpts = append(poolOpts, worker.WithTransactions(eng.txns))
	}
	eng.pool = worker.NewPool(eng.jobs, eng.registry, poolOpts...)

	// Wire back into the Runner. The sweeper starts first and sweeps
	// immediately, clearing locks left by a crashed predecessor.
	r.AddComponent(eng.sweeper)
	if cfg.Concurrency > 0 || cfg.ProcessTransactions {
		r.AddComponent(eng.pool)
	}
	r.SetExtensions(eng.extensions)

	return eng, nil
}

// middleware builds the default chain: recover → tracing → metrics →
// logging → timeout, followed by user middleware. The timeout equals the
// lock TTL so work never outlives its claim.
func (eng *Engine) middleware() []mw.Middleware {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/claim"))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/claim"))
	} else {
		metricsMw = mw.Metrics()
	}

	all := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.locks.TTL()),
	}
	return append(all, eng.mws...)
}

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue submits a job for def with payload encoded as JSON. The
// definition's defaults apply before opts.
func Enqueue[T any](ctx context.Context, eng *Engine, def *job.Definition[T], payload T, opts ...job.SubmitOption) (*job.Job, error) {
	all := make([]job.SubmitOption, 0, len(def.Defaults)+len(opts)+1)
	all = append(all, def.Defaults...)
	all = append(all, opts...)
	all = append(all, job.WithPayloadValue(payload))
	return eng.jobs.Submit(ctx, def.Title, all...)
}

// SubmitJob creates a pending, unlocked job.
func (eng *Engine) SubmitJob(ctx context.Context, title string, opts ...job.SubmitOption) (*job.Job, error) {
	return eng.jobs.Submit(ctx, title, opts...)
}

// ClaimNextJob claims the best available job for workerID. It returns
// nil, nil when nothing in the candidate window could be claimed.
func (eng *Engine) ClaimNextJob(ctx context.Context, workerID string) (*job.Job, error) {
	return eng.jobs.ClaimNext(ctx, workerID)
}

// SetJobStatus moves a job workerID holds. It returns false when the lock
// was lost or the move is not allowed from the job's current status.
func (eng *Engine) SetJobStatus(ctx context.Context, jobID id.JobID, status job.Status, workerID, errMsg string) (bool, error) {
	return eng.jobs.SetStatus(ctx, jobID, status, workerID, errMsg)
}

// GetJob returns a job by ID.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.jobs.Get(ctx, jobID)
}

// ListJobs returns jobs with status, newest first. An empty status lists all.
func (eng *Engine) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	return eng.jobs.List(ctx, status, opts)
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// SubmitTransaction creates a pending, unlocked transaction.
func (eng *Engine) SubmitTransaction(ctx context.Context, typ transaction.Type, amount int64, opts ...transaction.SubmitOption) (*transaction.Transaction, error) {
	return eng.txns.Submit(ctx, typ, amount, opts...)
}

// ProcessTransaction claims and processes txnID as workerID. It returns
// false when the transaction could not be claimed or did not complete.
func (eng *Engine) ProcessTransaction(ctx context.Context, txnID id.TransactionID, workerID string) (bool, error) {
	return eng.txns.Process(ctx, txnID, workerID)
}

// CancelTransaction claims txnID and cancels it if it is still pending.
func (eng *Engine) CancelTransaction(ctx context.Context, txnID id.TransactionID, workerID string) (bool, error) {
	return eng.txns.Cancel(ctx, txnID, workerID)
}

// GetTransaction returns a transaction by ID.
func (eng *Engine) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	return eng.txns.Get(ctx, txnID)
}

// ListTransactions returns transactions with status. An empty status lists all.
func (eng *Engine) ListTransactions(ctx context.Context, status transaction.Status, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	return eng.txns.List(ctx, status, opts)
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

// Status returns a monitor snapshot of the whole system.
func (eng *Engine) Status(ctx context.Context) (*monitor.Snapshot, error) {
	return eng.monitor.Snapshot(ctx)
}

// SweepNow clears every expired lock immediately.
func (eng *Engine) SweepNow(ctx context.Context) (lock.SweepResult, error) {
	return eng.sweeper.RunOnce(ctx)
}

// Start starts the sweeper and the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.r.Start(ctx)
}

// Stop stops the pool and sweeper, notifies extensions and closes the store.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.r.Stop(ctx)
}

// Runner returns the underlying Runner.
func (eng *Engine) Runner() *claim.Runner { return eng.r }

// Store returns the engine's store.
func (eng *Engine) Store() store.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Locks returns the lock manager.
func (eng *Engine) Locks() *lock.Manager { return eng.locks }

// Jobs returns the job service.
func (eng *Engine) Jobs() *job.Service { return eng.jobs }

// Transactions returns the transaction processor.
func (eng *Engine) Transactions() *transaction.Processor { return eng.txns }

// Monitor returns the status monitor.
func (eng *Engine) Monitor() *monitor.Monitor { return eng.monitor }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }
