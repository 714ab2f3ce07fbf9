// Package main is the entry point for the streak engine background worker.
//
// The worker runs the periodic state sweep: it walks ledgers with live
// or recoverable streaks, advances their risk state against the current
// time, and expires repair windows. A Redis lock keeps concurrent worker
// replicas from sweeping the same rows twice; without Redis the worker
// still runs, relying on row locks for correctness.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quizhub/streak-engine/config"
	"github.com/quizhub/streak-engine/internal/infrastructure/messaging"
	"github.com/quizhub/streak-engine/internal/infrastructure/persistence/postgres"
	"github.com/quizhub/streak-engine/internal/infrastructure/persistence/redis"
	"github.com/quizhub/streak-engine/internal/infrastructure/scheduler"
	"github.com/quizhub/streak-engine/internal/infrastructure/scheduler/jobs"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	slog.SetDefault(log)

	log.Info("starting streak engine worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"sweep_interval", cfg.Scheduler.SweepInterval.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	// The worker shares the schema with the service. Running migrations
	// here too makes either binary safe to start first.
	if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS SWEEP LOCK (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var sweepLock jobs.SweepLock

	if cfg.Redis.Enabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		redisCache, err := redis.NewCache(ctx, redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, sweeping without distributed lock", "error", err)
		} else {
			defer redisCache.Close()
			sweepLock = redis.NewSweepLock(redisCache, lockHolder(), cfg.Scheduler.LockTTL)
			log.Info("Redis sweep lock enabled")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.AsyncMode = cfg.EventBus.Async
	busCfg.WorkerPoolSize = cfg.EventBus.WorkerPoolSize
	busCfg.HandlerTimeout = cfg.EventBus.HandlerTimeout
	busCfg.Logger = log

	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() { _ = eventBus.Close() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	ledgerRepo := postgres.NewLedgerRepository(dbConn)

	sweepJob := jobs.NewMonitorStatesJob(ledgerRepo, eventBus, sweepLock, log, jobs.MonitorStatesConfig{
		BatchSize: cfg.Scheduler.SweepBatch,
		Timeout:   cfg.Scheduler.SweepTimeout,
	})

	reportJob := jobs.NewDailyReportJob(ledgerRepo, log, jobs.DailyReportConfig{
		BatchSize: cfg.Scheduler.SweepBatch,
		Timeout:   cfg.Scheduler.SweepTimeout,
	})

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: log})
	if cfg.Features.IsEnabled(config.FeatureMonitorSweep, 0) {
		if err := sched.Register(sweepJob, scheduler.NewIntervalSchedule(cfg.Scheduler.SweepInterval)); err != nil {
			return fmt.Errorf("failed to register sweep job: %w", err)
		}
	} else {
		log.Warn("risk-state sweep is disabled by feature flag")
	}
	if err := sched.Register(reportJob, scheduler.NewDailyAtSchedule(cfg.Scheduler.ReportHour, 0, time.UTC)); err != nil {
		return fmt.Errorf("failed to register report job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("worker is running", "jobs", len(sched.ListJobs()))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info("received shutdown signal", "signal", sig.String())

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
		return err
	}

	log.Info("shutdown completed")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		slog.String("app", cfg.App.Name),
		slog.String("component", "worker"),
	)
}

// lockHolder identifies this worker instance in the sweep lock.
func lockHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
