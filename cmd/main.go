/**
 * @description
 * Entry point for the listing lifecycle service. Wires configuration,
 * storage, the event outbox, the hourly reconciler, and the HTTP server,
 * then runs until interrupted.
 */
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverto/listing-service/internal/api"
	"github.com/adverto/listing-service/internal/app"
	"github.com/adverto/listing-service/internal/config"
	"github.com/adverto/listing-service/internal/metrics"
	"github.com/adverto/listing-service/internal/store"
	"github.com/adverto/listing-service/pkg/rabbitmq"
	"github.com/adverto/listing-service/pkg/storeclient"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage backend: Postgres when a DSN is configured, otherwise the
	// in-memory stores for local development.
	var (
		repo    app.Repository
		wallet  app.Wallet
		credits app.ViewCredits
	)
	if cfg.DatabaseURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to create connection pool", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()
		if err := dbpool.Ping(ctx); err != nil {
			logger.Error("unable to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("database connection established")
		repo = store.NewPostgresRepository(dbpool, logger)
		wallet = store.NewPostgresWallet(dbpool)
		credits = store.NewPostgresViewCredits(dbpool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		repo = store.NewMemoryRepository(logger)
		wallet = store.NewMemoryWallet()
		credits = store.NewMemoryViewCredits()
	}

	collector := metrics.NewCollector()

	// Broker connection is best-effort: without one, notifications are
	// logged and dropped instead of delivered.
	var producer rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.AMQPURL)
		if err != nil {
			logger.Error("failed to connect to rabbitmq, notifications disabled", "error", err)
			producer = &rabbitmq.NoopProducer{Logger: logger}
		} else {
			logger.Info("rabbitmq connection established")
			producer = p
		}
	} else {
		logger.Warn("AMQP_URL not set, notifications disabled")
		producer = &rabbitmq.NoopProducer{Logger: logger}
	}
	defer producer.Close()

	outbox := app.NewOutbox(producer, cfg.EventExchange, 0, collector, logger)
	outbox.Start()
	defer outbox.Stop()

	var limiter *app.RedisRateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL, rate limiting disabled", "error", err)
		} else {
			client := redis.NewClient(opts)
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Error("unable to ping redis, rate limiting disabled", "error", err)
			} else {
				logger.Info("redis connection established")
				limiter = app.NewRedisRateLimiter(client, "adverto:rate_limit")
				defer client.Close()
			}
		}
	} else {
		logger.Warn("REDIS_URL not set, rate limiting disabled")
	}

	var directory app.StoreDirectory
	if cfg.StoreDirectoryURL != "" {
		directory = storeclient.NewClient(cfg.StoreDirectoryURL, cfg.InternalAPIKey)
	} else {
		logger.Warn("STORE_DIRECTORY_URL not set, store membership checks will deny all")
		directory = &storeclient.StaticDirectory{}
	}

	payments := app.NewSimulatedPaymentProcessor(time.Duration(cfg.PaymentDelayMS) * time.Millisecond)

	service := app.NewService(repo, wallet, credits, outbox, payments, directory, cfg.ViewPrice, logger)
	reconciler := app.NewReconciler(service, collector, logger)

	scheduler := app.NewScheduler(reconciler, cfg.SweepSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start reconciler schedule", "error", err)
		os.Exit(1)
	}
	defer func() {
		<-scheduler.Stop().Done()
	}()

	handler := api.NewHandler(service, reconciler)
	router := api.NewRouter(handler, collector.Handler(), limiter, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting listing service", "port", cfg.ServerPort)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			_ = server.Close()
		}
	}

	logger.Info("listing service stopped")
}
