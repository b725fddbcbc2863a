package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"plata/internal/amqp"
	"plata/internal/config"
	applog "plata/internal/log"
	"plata/internal/mirror"
	gsheet "plata/internal/mirror/google"
	mem "plata/internal/mirror/memory"
	"plata/internal/storage"
	"plata/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.Setup()
	logger.Info("Starting mirror-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Google Sheets is the real mirror; without a spreadsheet id rows go to
	// an in-memory sink so the queue still drains in development.
	var writer mirror.RowWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = mem.New()
		logger.Info("Google Sheets disabled - mirroring to memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := worker.NewMirrorWorker(repo, writer, cfg.MirrorBatchSize)

	// Drain anything that was booked while the worker was down.
	if pushed, err := w.SyncPending(ctx); err != nil {
		logger.Error("Startup catch-up failed", "error", err)
	} else if pushed > 0 {
		logger.Info("Startup catch-up finished", "pushed", pushed)
	}

	go func() {
		if err := w.Run(ctx, amqpClient); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", "error", err)
			cancel()
		}
	}()

	// Periodic catch-up for events lost to AMQP outages.
	ticker := time.NewTicker(cfg.MirrorInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.SyncPending(ctx); err != nil {
					logger.Error("Periodic catch-up failed", "error", err)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	logger.Info("Mirror worker stopped")
}
