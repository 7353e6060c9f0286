// Command claimd runs a claim worker process: it connects a store, runs the
// job worker pool, the transaction loop and the expiry sweeper, serves
// Prometheus metrics and logs a status snapshot periodically.
//
// Configuration comes from the environment:
//
//	CLAIM_STORE                 memory | postgres | bun | sqlite | redis | mongo
//	CLAIM_DSN                   connection string for the store
//	CLAIM_MONGO_DATABASE        database name for the mongo store (claim)
//	CLAIM_LOCK_TTL              lock lifetime (30s)
//	CLAIM_WINDOW                candidate window (10)
//	CLAIM_SWEEP_INTERVAL        sweep interval (15s)
//	CLAIM_SWEEP_SCHEDULE        cron expression replacing the interval
//	CLAIM_CONCURRENCY           job workers in this process (4)
//	CLAIM_POLL_INTERVAL         base idle poll delay (1s)
//	CLAIM_MAX_POLL_INTERVAL     idle poll delay cap (10s)
//	CLAIM_CLAIM_RATE            claim attempts per second, 0 for unlimited
//	CLAIM_PROCESS_TRANSACTIONS  run the transaction loop (true)
//	CLAIM_TRANSACTION_WORK      simulated transaction work (1s)
//	CLAIM_SHUTDOWN_TIMEOUT      graceful shutdown limit (30s)
//	CLAIM_NATS_URL              publish lifecycle events to NATS when set
//	CLAIM_METRICS_ADDR          Prometheus listen address (:9090), empty disables
//	CLAIM_STATUS_INTERVAL       status log interval (30s), 0 disables
//	CLAIM_LOG_FORMAT            text | json
//	CLAIM_LOG_LEVEL             debug | info | warn | error
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/claim"
	"github.com/xraph/claim/engine"
	"github.com/xraph/claim/natshook"
	"github.com/xraph/claim/observability"
)

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("claimd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run blocks until ctx is cancelled, then shuts everything down within the
// configured timeout.
func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	// ──────────────────────────────────────────────────
	// 1. Store
	// ──────────────────────────────────────────────────

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// ──────────────────────────────────────────────────
	// 2. Extensions
	// ──────────────────────────────────────────────────

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom, err := observability.NewPrometheusExtension(reg)
	if err != nil {
		return fmt.Errorf("prometheus: %w", err)
	}
	engOpts := []engine.Option{engine.WithExtension(prom)}

	if cfg.NATSURL != "" {
		nc, natsErr := nats.Connect(cfg.NATSURL, nats.Name("claimd"))
		if natsErr != nil {
			return fmt.Errorf("connect nats: %w", natsErr)
		}
		defer nc.Close()
		engOpts = append(engOpts, engine.WithExtension(natshook.New(nc, natshook.WithLogger(logger))))
	}

	// ──────────────────────────────────────────────────
	// 3. Engine
	// ──────────────────────────────────────────────────

	r, err := claim.New(
		claim.WithConfig(cfg.Claim),
		claim.WithStore(st),
		claim.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("configure runner: %w", err)
	}
	eng, err := engine.Build(r, engOpts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	logger.Info("claimd started",
		slog.String("store", cfg.Store),
		slog.Int("concurrency", cfg.Claim.Concurrency),
		slog.Bool("transactions", cfg.Claim.ProcessTransactions),
		slog.Duration("lock_ttl", cfg.Claim.LockTTL),
	)

	// ──────────────────────────────────────────────────
	// 4. Run until signalled
	// ──────────────────────────────────────────────────

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, reg, logger) })
	}
	if cfg.StatusInterval > 0 {
		g.Go(func() error {
			reportStatus(gctx, eng, prom, cfg.StatusInterval, logger)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Claim.ShutdownTimeout)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("stop engine: %w", err))
	}

	logger.Info("claimd stopped")
	return runErr
}

// serveMetrics serves /metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// reportStatus logs a monitor snapshot and refreshes the gauges every
// interval until ctx is cancelled.
func reportStatus(ctx context.Context, eng *engine.Engine, prom *observability.PrometheusExtension, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := eng.Status(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("status snapshot failed", slog.String("error", err.Error()))
			}
			continue
		}
		snap.Record(prom)

		logger.Info("claim status",
			slog.Int64("jobs", snap.Jobs.Total),
			slog.Int64("jobs_pending", snap.Jobs.ByStatus["pending"]),
			slog.Int64("jobs_running", snap.Jobs.ByStatus["running"]),
			slog.Int64("transactions", snap.Transactions.Total),
			slog.Int64("transactions_pending", snap.Transactions.ByStatus["pending"]),
			slog.Int("locks", len(snap.Locks)),
			slog.Int("stale_locks", snap.StaleLocks()),
			slog.Int("workers", len(snap.Workers)),
		)
	}
}
