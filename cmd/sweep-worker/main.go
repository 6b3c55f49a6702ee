package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bijouxtrade/bijoux-backend/internal/alerts"
	"github.com/bijouxtrade/bijoux-backend/internal/approvals"
	"github.com/bijouxtrade/bijoux-backend/internal/directory"
	"github.com/bijouxtrade/bijoux-backend/internal/ledger"
	"github.com/bijouxtrade/bijoux-backend/internal/limits"
	"github.com/bijouxtrade/bijoux-backend/internal/notifications"
	"github.com/bijouxtrade/bijoux-backend/internal/sweep"
	"github.com/bijouxtrade/bijoux-backend/pkg/config"
	"github.com/bijouxtrade/bijoux-backend/pkg/db"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/metrics"
	"github.com/bijouxtrade/bijoux-backend/pkg/migrate"
	"github.com/bijouxtrade/bijoux-backend/pkg/outbox"
	"github.com/bijouxtrade/bijoux-backend/pkg/redis"
)

const lockKeyFormat = "bijoux:sweep-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweep-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewSweepJobMetrics(prometheus.DefaultRegisterer)
	lock, err := sweep.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Sweep.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(dbClient, cfg, logg, metricsCollector)
	if err != nil {
		logg.Error(context.Background(), "failed to build sweep jobs", err)
		os.Exit(1)
	}

	service, err := sweep.NewService(sweep.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweep worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}

func buildRegistry(dbClient *db.Client, cfg *config.Config, logg *logger.Logger, collector *metrics.SweepJobMetrics) (*sweep.Registry, error) {
	gormDB := dbClient.DB()

	directoryRepo := directory.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}

	limitsSvc, err := limits.NewService(limits.NewRepository(gormDB), ledgerSvc, logg)
	if err != nil {
		return nil, err
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB), logg)
	if err != nil {
		return nil, err
	}

	alertsSvc, err := alerts.NewService(alerts.NewRepository(gormDB), directoryRepo, notificationsSvc, outboxSvc, logg)
	if err != nil {
		return nil, err
	}

	approvalsSvc, err := approvals.NewService(approvals.ServiceParams{
		DB:        gormDB,
		Repo:      approvals.NewRepository(gormDB),
		Directory: directoryRepo,
		Notifier:  notificationsSvc,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	rolloverJob, err := sweep.NewRolloverJob(sweep.RolloverJobParams{
		Logger:  logg,
		Limits:  limitsSvc,
		Metrics: collector,
		Batch:   cfg.Sweep.RolloverBatch,
	})
	if err != nil {
		return nil, err
	}

	escalationJob, err := sweep.NewEscalationJob(sweep.EscalationJobParams{
		Logger:    logg,
		Approvals: approvalsSvc,
		Metrics:   collector,
		Batch:     cfg.Sweep.EscalationBatch,
	})
	if err != nil {
		return nil, err
	}

	thresholdJob, err := sweep.NewThresholdJob(sweep.ThresholdJobParams{
		Logger:  logg,
		DB:      gormDB,
		Limits:  limitsSvc,
		Alerts:  alertsSvc,
		Metrics: collector,
		Batch:   cfg.Sweep.RolloverBatch,
	})
	if err != nil {
		return nil, err
	}

	retentionJob, err := sweep.NewRetentionJob(sweep.RetentionJobParams{
		Logger:        logg,
		Outbox:        outbox.NewRepository(gormDB),
		Notifications: notifications.NewRepository(gormDB),
		Metrics:       collector,
		RetentionDays: cfg.Sweep.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	return sweep.NewRegistry(rolloverJob, escalationJob, thresholdJob, retentionJob), nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
