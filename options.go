package claim

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Runner.
type Option func(*Runner) error

// Storer is the minimal store interface held by the Runner.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used by the subsystem layers, which the root package
// cannot import without a cycle.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// component is a background service started and stopped with the Runner.
type component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Runner owns the configuration, logger and store of one claim process and
// drives the lifecycle of its background components (worker pool, sweeper).
//
// Create one with New and functional options, then hand it to engine.Build
// which wires the subsystems together.
type Runner struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	components []component

	started []component
}

// New creates a new Runner with the given options.
func New(opts ...Option) (*Runner, error) {
	r := &Runner{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Logger returns the runner's logger.
func (r *Runner) Logger() *slog.Logger { return r.logger }

// Store returns the runner's store.
func (r *Runner) Store() Storer { return r.store }

// Config returns a copy of the runner's configuration.
func (r *Runner) Config() Config { return r.config }

// AddComponent registers a background component (called by engine.Build).
// Components start in registration order and stop in reverse.
func (r *Runner) AddComponent(c component) { r.components = append(r.components, c) }

// SetExtensions sets the extension emitter (called by engine.Build).
func (r *Runner) SetExtensions(e extensionEmitter) { r.extensions = e }

// Start starts every registered component. If one fails, the components
// already started are stopped again.
func (r *Runner) Start(ctx context.Context) error {
	if r.store == nil {
		return ErrNoStore
	}
	for _, c := range r.components {
		if err := c.Start(ctx); err != nil {
			r.stopStarted(ctx)
			return err
		}
		r.started = append(r.started, c)
	}
	return nil
}

// Stop gracefully shuts down the started components, notifies extensions
// and closes the store.
func (r *Runner) Stop(ctx context.Context) error {
	if r.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ShutdownTimeout)
		defer cancel()
	}
	r.stopStarted(ctx)
	if r.extensions != nil {
		r.extensions.EmitShutdown(ctx)
	}
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

func (r *Runner) stopStarted(ctx context.Context) {
	for i := len(r.started) - 1; i >= 0; i-- {
		if err := r.started[i].Stop(ctx); err != nil {
			r.logger.Error("component stop error", slog.String("error", err.Error()))
		}
	}
	r.started = nil
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) error {
		r.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. The store must implement Storer
// at minimum; engine.Build requires a full store.Store.
func WithStore(s Storer) Option {
	return func(r *Runner) error {
		r.store = s
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(r *Runner) error {
		r.config = cfg
		return nil
	}
}

// WithLockTTL sets how long a claim stays valid.
func WithLockTTL(d time.Duration) Option {
	return func(r *Runner) error {
		r.config.LockTTL = d
		return nil
	}
}

// WithCandidateWindow sets how many pending jobs are scanned per claim.
func WithCandidateWindow(n int) Option {
	return func(r *Runner) error {
		r.config.CandidateWindow = n
		return nil
	}
}

// WithSweepInterval sets the fixed period of the expiry sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Runner) error {
		r.config.SweepInterval = d
		return nil
	}
}

// WithSweepSchedule sets a cron expression for the expiry sweeper.
func WithSweepSchedule(expr string) Option {
	return func(r *Runner) error {
		r.config.SweepSchedule = expr
		return nil
	}
}

// WithConcurrency sets the number of job worker goroutines.
func WithConcurrency(n int) Option {
	return func(r *Runner) error {
		r.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets the base delay between empty polls.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) error {
		r.config.PollInterval = d
		return nil
	}
}

// WithClaimRate limits claim attempts per second. Zero disables it.
func WithClaimRate(perSecond float64) Option {
	return func(r *Runner) error {
		r.config.ClaimRate = perSecond
		return nil
	}
}

// WithTransactionProcessing enables the transaction polling loop.
func WithTransactionProcessing(enabled bool) Option {
	return func(r *Runner) error {
		r.config.ProcessTransactions = enabled
		return nil
	}
}

// WithTransactionWork sets the simulated processing time per transaction.
func WithTransactionWork(d time.Duration) Option {
	return func(r *Runner) error {
		r.config.TransactionWork = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum time allowed for Stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runner) error {
		r.config.ShutdownTimeout = d
		return nil
	}
}
