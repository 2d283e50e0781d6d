/**
 * @description
 * This is the main entry point for the billing service. It is a long-running
 * process that owns the periodic installment billing check and exposes a
 * small administrative HTTP surface (on-demand check, payment webhook, plan
 * catalog). It initializes configuration, the database pool, the optional
 * event producer, the mail client, the cron scheduler, and the HTTP server,
 * then waits for a termination signal.
 */
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/spexafrica/billing-service/internal/api"
	"github.com/spexafrica/billing-service/internal/app"
	"github.com/spexafrica/billing-service/internal/config"
	"github.com/spexafrica/billing-service/internal/store"
	"github.com/spexafrica/billing-service/pkg/mailclient"
	"github.com/spexafrica/billing-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env if present; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Event publishing is optional; the billing check runs fine without it.
	var events app.EventPublisher
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Error("unable to connect to RabbitMQ, continuing without events", "error", err)
		} else {
			defer producer.Close()
			events = producer
			logger.Info("event producer connected")
		}
	}

	// Initialize dependencies
	repository := store.NewRepository(dbpool)
	mailer := mailclient.NewClient(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
	jobs := app.NewJobs(repository, mailer, events, logger, *cfg)
	ledger := app.NewLedger(repository, events, logger, *cfg)
	scheduler := app.NewScheduler(jobs, logger, *cfg)

	// Start the cron scheduler in the background
	scheduler.Start()
	logger.Info("scheduler started", "schedule", cfg.BillingCheckSchedule)

	// Start the HTTP server
	handler := api.NewHandler(jobs, ledger, repository)
	router := api.NewRouter(handler, cfg.AdminJWTSecret)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		logger.Info("http server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	// Let an in-flight tick finish persisting before exiting.
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}
