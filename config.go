package claim

import "time"

// Config holds configuration for a Runner.
type Config struct {
	// LockTTL is how long a claim stays valid. Once a lock is older than
	// this any other worker may take it over.
	LockTTL time.Duration

	// CandidateWindow is the number of top-ranked pending jobs scanned per
	// claim attempt.
	CandidateWindow int

	// SweepInterval is how often expired locks are cleared.
	SweepInterval time.Duration

	// SweepSchedule is an optional cron expression ("@every 10s",
	// "*/1 * * * *") that replaces SweepInterval when set.
	SweepSchedule string

	// Concurrency is the number of job worker goroutines in this process.
	Concurrency int

	// PollInterval is the base delay between empty polls.
	PollInterval time.Duration

	// MaxPollInterval caps the idle backoff between empty polls.
	MaxPollInterval time.Duration

	// ClaimRate limits claim attempts per second across the pool.
	// Zero disables the limiter.
	ClaimRate float64

	// ProcessTransactions enables the transaction polling loop.
	ProcessTransactions bool

	// TransactionWork is the simulated duration of processing one
	// transaction when no work function is supplied.
	TransactionWork time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LockTTL:         30 * time.Second,
		CandidateWindow: 10,
		SweepInterval:   15 * time.Second,
		Concurrency:     4,
		PollInterval:    1 * time.Second,
		MaxPollInterval: 10 * time.Second,
		TransactionWork: 1 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
