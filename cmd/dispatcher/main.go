package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/notify-relay/internal/config"
	"github.com/kursadbilgin/notify-relay/internal/infra/postgresql"
	"github.com/kursadbilgin/notify-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notify-relay/internal/infra/redis"
	"github.com/kursadbilgin/notify-relay/internal/observability"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"github.com/kursadbilgin/notify-relay/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter init failed", zap.Error(err))
	}

	webhookProvider, err := provider.NewWebhookProvider(cfg.ProviderWebhookURL, cfg.ProviderTimeout)
	if err != nil {
		logger.Fatal("provider init failed", zap.Error(err))
	}

	notificationRepo := repository.NewGormNotificationRepo(db)
	templateRepo := repository.NewGormTemplateRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	pipeline, err := service.NewDeliveryPipeline(
		notificationRepo,
		templateRepo,
		attemptRepo,
		webhookProvider,
		rateLimiter,
		logger,
	)
	if err != nil {
		logger.Fatal("delivery pipeline init failed", zap.Error(err))
	}

	dispatcher, err := service.NewDispatcher(
		notificationRepo,
		pipeline,
		cfg.PollInterval,
		cfg.BatchSize,
		cfg.DispatchConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	pipeline.SetMetrics(metrics)
	dispatcher.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatal("dispatcher stopped with error", zap.Error(err))
	}
}
