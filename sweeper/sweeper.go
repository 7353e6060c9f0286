// Package sweeper periodically clears expired claims so crashed workers do
// not keep items locked. It holds no state between runs: every pass is a
// filtered bulk update, so any number of processes may sweep at once.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/claim/lock"
)

// DefaultInterval is the sweep period used when none is configured.
const DefaultInterval = 15 * time.Second

// Locks is the subset of lock.Manager the sweeper depends on.
type Locks interface {
	SweepExpired(ctx context.Context) (lock.SweepResult, error)
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures a Sweeper.
type Option func(*Sweeper) error

// WithInterval sets a fixed sweep period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) error {
		if d > 0 {
			s.interval = d
		}
		return nil
	}
}

// WithSchedule runs sweeps on a cron expression instead of a fixed
// period. An empty expression is ignored.
func WithSchedule(expr string) Option {
	return func(s *Sweeper) error {
		if expr == "" {
			return nil
		}
		sched, err := ParseSchedule(expr)
		if err != nil {
			return fmt.Errorf("sweeper: parse schedule %q: %w", expr, err)
		}
		s.schedule = sched
		s.expr = expr
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) error {
		s.logger = l
		return nil
	}
}

// Sweeper runs lock expiry on a period or cron schedule.
type Sweeper struct {
	locks    Locks
	interval time.Duration
	schedule cronlib.Schedule
	expr     string
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Sweeper over locks.
func New(locks Locks, opts ...Option) (*Sweeper, error) {
	s := &Sweeper{
		locks:    locks,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RunOnce sweeps every kind once.
func (s *Sweeper) RunOnce(ctx context.Context) (lock.SweepResult, error) {
	res, err := s.locks.SweepExpired(ctx)
	if err != nil {
		return res, err
	}
	if res.Total() > 0 {
		s.logger.Info("sweep cleared expired locks",
			slog.Int64("jobs", res.Jobs),
			slog.Int64("transactions", res.Transactions),
		)
	}
	return res, nil
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop()

	if s.schedule != nil {
		s.logger.Info("sweeper started", slog.String("schedule", s.expr))
	} else {
		s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	}
	return nil
}

// Stop signals the sweep loop to stop and waits for it to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
	return nil
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	// Sweep once immediately at start.
	s.tick()

	for {
		timer := time.NewTimer(s.next(time.Now()))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.tick()
		}
	}
}

// next returns the delay until the following run.
func (s *Sweeper) next(now time.Time) time.Duration {
	if s.schedule == nil {
		return s.interval
	}
	return max(s.schedule.Next(now).Sub(now), 0)
}

// tick runs one sweep. Failures are logged and retried on the next run.
func (s *Sweeper) tick() {
	if _, err := s.RunOnce(context.Background()); err != nil {
		s.logger.Error("sweep failed", slog.String("error", err.Error()))
	}
}
