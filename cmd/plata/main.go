package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"plata/internal/amqp"
	"plata/internal/config"
	apphttp "plata/internal/http"
	applog "plata/internal/log"
	"plata/internal/rates"
	"plata/internal/services"
	"plata/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.Setup()

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

	// AMQP is optional: without it transactions are still booked, only the
	// mirror queue is skipped.
	var events services.EventPublisher
	var publish func(ctx context.Context, id uuid.UUID)
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, mirror events disabled", "error", err)
	} else {
		defer amqpClient.Close()
		events = amqpClient
		publish = func(ctx context.Context, id uuid.UUID) {
			if err := amqpClient.Publish(ctx, amqp.NewMirrorEvent(id)); err != nil {
				logger.Warn("Failed to publish mirror event", "transaction_id", id, "error", err)
			}
		}
	}

	provider := rates.NewHTTPProvider(cfg.RateQuoteURL, cfg.RateHistoricalURL, cfg.RateTimeout)
	resolver := rates.NewResolver(provider, time.Now, cfg.RateFallback)

	expander := services.NewExpander(repo, resolver, events)
	aggregator := services.NewAggregator(resolver)
	reconciler := services.NewReconciler(repo, events)

	srv := apphttp.NewServer(":"+cfg.Port, repo, expander, aggregator, reconciler, resolver, publish)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting plata server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
