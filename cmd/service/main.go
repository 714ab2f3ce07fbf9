// Package main is the entry point for the streak engine HTTP service.
//
// The service owns the write side (activity and answer events, item
// grants, repairs) and the read side (snapshots, repair quotes,
// histories) of the streak ledger. Time-driven state decay runs in the
// separate worker binary, see cmd/worker.
//
// Layering follows Clean Architecture:
//   - Domain: streak ledger, milestones, protection items
//   - Application: commands, queries, event handlers
//   - Infrastructure: postgres, redis, in-memory event bus
//   - Interface: HTTP API
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

	"github.com/quizhub/streak-engine/config"
	"github.com/quizhub/streak-engine/internal/application/command"
	"github.com/quizhub/streak-engine/internal/application/eventhandler"
	"github.com/quizhub/streak-engine/internal/application/query"
	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/infrastructure/messaging"
	"github.com/quizhub/streak-engine/internal/infrastructure/persistence/postgres"
	"github.com/quizhub/streak-engine/internal/infrastructure/persistence/redis"
	"github.com/quizhub/streak-engine/internal/infrastructure/service"
	httpserver "github.com/quizhub/streak-engine/internal/interface/http"
	"github.com/quizhub/streak-engine/pkg/logger"
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
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupLogger(cfg)
	slog.SetDefault(slogger)

	appLog := setupAppLogger(cfg)

	slogger.Info("starting streak engine service",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		slogger.Info("closing database connection...")
		dbConn.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slogger.Info("migrations completed")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional snapshot cache)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var snapshotCache query.SnapshotCache

	if cfg.Redis.Enabled && cfg.Features.IsEnabled(config.FeatureSnapshotCache, 0) {
		slogger.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns

		redisCache, err = redis.NewCache(ctx, redisCfg)
		if err != nil {
			// Reads fall back to the database when the cache is down.
			slogger.Warn("failed to connect to Redis, snapshot caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			snapshotCache = redis.NewSnapshotCache(redisCache)
			slogger.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.AsyncMode = cfg.EventBus.Async
	busCfg.WorkerPoolSize = cfg.EventBus.WorkerPoolSize
	busCfg.HandlerTimeout = cfg.EventBus.HandlerTimeout
	busCfg.Logger = slogger

	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		slogger.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	milestoneRepo := postgres.NewMilestoneRepository(dbConn)
	protectionRepo := postgres.NewProtectionRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	recordActivity := command.NewRecordActivityHandler(ledgerRepo, eventBus, appLog)
	recordAnswer := command.NewRecordAnswerHandler(ledgerRepo, eventBus, appLog)
	grantItem := command.NewGrantItemHandler(ledgerRepo, eventBus, appLog)
	applyRepair := command.NewApplyRepairHandler(ledgerRepo, eventBus, appLog)

	snapshotQuery := query.NewSnapshotHandler(ledgerRepo, snapshotCache, cfg.HTTP.SnapshotCacheTTL, appLog)
	repairQuoteQuery := query.NewRepairQuoteHandler(ledgerRepo)
	historyQuery := query.NewProtectionHistoryHandler(protectionRepo)
	milestonesQuery := query.NewMilestonesHandler(milestoneRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	notifier := service.NewLogNotifier(slogger)

	if cfg.Features.IsEnabled(config.FeatureNotifyMilestones, 0) {
		if err := eventBus.Subscribe(shared.EventMilestoneAchieved,
			eventhandler.NewOnMilestoneAchievedHandler(notifier, slogger)); err != nil {
			return fmt.Errorf("failed to subscribe milestone handler: %w", err)
		}
	}
	if cfg.Features.IsEnabled(config.FeatureNotifyRiskStates, 0) {
		if err := eventBus.Subscribe(shared.EventStateChanged,
			eventhandler.NewOnStateChangedHandler(notifier, slogger)); err != nil {
			return fmt.Errorf("failed to subscribe state handler: %w", err)
		}
	}
	if snapshotCache != nil {
		if err := eventBus.SubscribeAll(
			eventhandler.NewCacheInvalidator(snapshotCache, slogger)); err != nil {
			return fmt.Errorf("failed to subscribe cache invalidator: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxHeaderBytes = cfg.HTTP.MaxHeaderBytes

	healthTargets := map[string]httpserver.HealthChecker{
		"postgres": dbConn,
	}
	if redisCache != nil {
		healthTargets["redis"] = redisCache
	}

	httpServer := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		RecordActivity:    recordActivity,
		RecordAnswer:      recordAnswer,
		GrantItem:         grantItem,
		ApplyRepair:       applyRepair,
		Snapshot:          snapshotQuery,
		RepairQuote:       repairQuoteQuery,
		ProtectionHistory: historyQuery,
		Milestones:        milestonesQuery,
		HealthTargets:     healthTargets,
		Flags:             cfg.Features,
		Logger:            appLog,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 11. START
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)

	go func() {
		slogger.Info("starting HTTP server", "address", httpCfg.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	slogger.Info("streak engine service is running", "http_address", httpCfg.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 12. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slogger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slogger.Error("service error", "error", err)
		return err
	}

	slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slogger.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	// Event bus, redis and database close via the deferred calls above.
	slogger.Info("shutdown completed")
	return nil
}

// setupLogger builds the slog logger used by the infrastructure layer.
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
		slog.String("component", "service"),
	)
}

// setupAppLogger builds the application-layer logger.
func setupAppLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}
