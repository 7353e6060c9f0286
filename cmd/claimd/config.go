package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/claim"
)

// config is the process configuration read from CLAIM_* variables.
type config struct {
	Store    string
	DSN      string
	Database string

	Claim claim.Config

	NATSURL        string
	MetricsAddr    string
	StatusInterval time.Duration

	LogFormat string
	LogLevel  slog.Level
}

// loadConfig reads the configuration through getenv, usually os.Getenv.
// Unset variables keep their defaults; malformed values are errors.
func loadConfig(getenv func(string) string) (config, error) {
	e := env{getenv: getenv}
	def := claim.DefaultConfig()

	cfg := config{
		Store:     strings.ToLower(e.str("CLAIM_STORE", "memory")),
		DSN:       e.str("CLAIM_DSN", ""),
		Database:  e.str("CLAIM_MONGO_DATABASE", "claim"),
		NATSURL:   e.str("CLAIM_NATS_URL", ""),
		LogFormat: strings.ToLower(e.str("CLAIM_LOG_FORMAT", "text")),
		Claim: claim.Config{
			LockTTL:             e.duration("CLAIM_LOCK_TTL", def.LockTTL),
			CandidateWindow:     e.int("CLAIM_WINDOW", def.CandidateWindow),
			SweepInterval:       e.duration("CLAIM_SWEEP_INTERVAL", def.SweepInterval),
			SweepSchedule:       e.str("CLAIM_SWEEP_SCHEDULE", ""),
			Concurrency:         e.int("CLAIM_CONCURRENCY", def.Concurrency),
			PollInterval:        e.duration("CLAIM_POLL_INTERVAL", def.PollInterval),
			MaxPollInterval:     e.duration("CLAIM_MAX_POLL_INTERVAL", def.MaxPollInterval),
			ClaimRate:           e.float("CLAIM_CLAIM_RATE", def.ClaimRate),
			ProcessTransactions: e.bool("CLAIM_PROCESS_TRANSACTIONS", true),
			TransactionWork:     e.duration("CLAIM_TRANSACTION_WORK", def.TransactionWork),
			ShutdownTimeout:     e.duration("CLAIM_SHUTDOWN_TIMEOUT", def.ShutdownTimeout),
		},
		MetricsAddr:    e.str("CLAIM_METRICS_ADDR", ":9090"),
		StatusInterval: e.duration("CLAIM_STATUS_INTERVAL", 30*time.Second),
	}

	if lvl := e.str("CLAIM_LOG_LEVEL", "info"); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			e.errs = append(e.errs, fmt.Errorf("CLAIM_LOG_LEVEL: %w", err))
		}
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		e.errs = append(e.errs, fmt.Errorf("CLAIM_LOG_FORMAT: unknown format %q", cfg.LogFormat))
	}
	if cfg.Store != "memory" && cfg.DSN == "" && cfg.Store != "sqlite" {
		e.errs = append(e.errs, fmt.Errorf("CLAIM_DSN is required for store %q", cfg.Store))
	}

	if err := e.err(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// env collects parse failures so every bad variable is reported at once.
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(e.errs...))
}

// newLogger builds the process logger from the format and level.
func newLogger(cfg config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
