package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"scadenze/internal/amqp"
	"scadenze/internal/config"
	"scadenze/internal/core"
	"scadenze/internal/scheduler"
	"scadenze/internal/services"
	"scadenze/internal/storage"
	"scadenze/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting sync-worker")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Initialize SQLite repository: obligation store, notification hub
	// and settings store in one database.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Initialize AMQP client for consuming sync requests
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire the reconciliation engine over the notification-bearing
	// sections. Budgets and savings goals have settings flags but no
	// obligation store yet, so they stay unregistered.
	sources := map[core.Section]services.ObligationSource{
		core.SectionBills:   repo.SectionSource(core.SectionBills),
		core.SectionDebts:   repo.SectionSource(core.SectionDebts),
		core.SectionLending: repo.SectionSource(core.SectionLending),
		core.SectionIncome:  repo.SectionSource(core.SectionIncome),
	}
	engine := services.NewSyncEngine(repo, sources, services.SyncEngineConfig{Workers: cfg.SyncWorkers})
	syncWorker := worker.NewSyncWorker(repo, engine)

	// On startup, reconcile anything missed while the worker was down.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
		// Don't exit - continue with normal operation
	}

	// Start message consumption
	go func() {
		handler := func(msg *amqp.SyncRequestMessage) error {
			return syncWorker.HandleSyncRequest(ctx, msg)
		}
		if err := amqpClient.ConsumeSyncRequests(ctx, handler); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Periodic maintenance sync rolls occurrence windows forward even
	// when no sync requests arrive.
	sched := scheduler.NewScheduler()
	if cfg.MaintenanceCron != "" {
		if err := sched.AddJob(ctx, cfg.MaintenanceCron, "maintenance-sync", syncWorker.RunMaintenanceSync); err != nil {
			logger.Error("Failed to register maintenance job", "error", err)
			os.Exit(1)
		}
	}
	go sched.Start(ctx)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Graceful shutdown: give in-flight handlers time to finish before
	// the deferred Close calls tear the connections down.
	logger.Info("Shutting down worker...")
	cancel()
	time.Sleep(min(cfg.ShutdownTimeout, 2*time.Second))
	logger.Info("Worker shutdown complete")
}
