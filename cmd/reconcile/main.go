package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"plata/internal/amqp"
	"plata/internal/config"
	applog "plata/internal/log"
	"plata/internal/services"
	"plata/internal/storage"
)

// One-shot repair of legacy rows that carry both currency amounts. Run it
// once after importing old data; re-running on a clean database is a no-op.
func main() {
	_ = godotenv.Load()

	logger := applog.Setup()
	logger.Info("Starting reconciliation pass")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
		logger.Error("Migrations failed", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var events services.EventPublisher
	if amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue); err != nil {
		logger.Warn("AMQP unavailable, invalidation events disabled", "error", err)
	} else {
		defer amqpClient.Close()
		events = amqpClient
	}

	reconciler := services.NewReconciler(repo, events)

	report, err := reconciler.ReconcileAll(context.Background())
	if err != nil {
		logger.Error("Reconciliation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Reconciliation finished",
		"repaired", report.Repaired,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"instances_deleted", report.InstancesDeleted)

	for _, id := range report.Skipped {
		logger.Warn("Row skipped: ambiguous exchange rate", "id", id)
	}
	for _, id := range report.Failed {
		logger.Error("Row repair failed", "id", id)
	}

	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}
