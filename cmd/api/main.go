package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/bijouxtrade/bijoux-backend/api/routes"
	"github.com/bijouxtrade/bijoux-backend/internal/alerts"
	"github.com/bijouxtrade/bijoux-backend/internal/approvals"
	"github.com/bijouxtrade/bijoux-backend/internal/authorizer"
	"github.com/bijouxtrade/bijoux-backend/internal/directory"
	"github.com/bijouxtrade/bijoux-backend/internal/ledger"
	"github.com/bijouxtrade/bijoux-backend/internal/limits"
	"github.com/bijouxtrade/bijoux-backend/internal/notifications"
	"github.com/bijouxtrade/bijoux-backend/internal/reporting"
	"github.com/bijouxtrade/bijoux-backend/internal/rules"
	"github.com/bijouxtrade/bijoux-backend/pkg/config"
	"github.com/bijouxtrade/bijoux-backend/pkg/db"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/migrate"
	"github.com/bijouxtrade/bijoux-backend/pkg/outbox"
	"github.com/bijouxtrade/bijoux-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	services, err := buildServices(dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, services),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildServices(dbClient *db.Client, logg *logger.Logger) (routes.Services, error) {
	gormDB := dbClient.DB()

	directoryRepo := directory.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return routes.Services{}, err
	}

	limitsSvc, err := limits.NewService(limits.NewRepository(gormDB), ledgerSvc, logg)
	if err != nil {
		return routes.Services{}, err
	}

	ruleEngine, err := rules.NewEngine(rules.NewRepository(gormDB), ledgerSvc, logg)
	if err != nil {
		return routes.Services{}, err
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB), logg)
	if err != nil {
		return routes.Services{}, err
	}

	alertsSvc, err := alerts.NewService(alerts.NewRepository(gormDB), directoryRepo, notificationsSvc, outboxSvc, logg)
	if err != nil {
		return routes.Services{}, err
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
		return routes.Services{}, err
	}

	authorizerSvc, err := authorizer.NewService(authorizer.ServiceParams{
		DB:        gormDB,
		Directory: directoryRepo,
		Limits:    limitsSvc,
		Rules:     ruleEngine,
		Workflows: approvalsSvc,
		Ledger:    ledgerSvc,
		Alerts:    alertsSvc,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	reportingSvc, err := reporting.NewService(reporting.ServiceParams{
		Repo:      reporting.NewRepository(gormDB),
		Limits:    limitsSvc,
		Directory: directoryRepo,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Authorizer:    authorizerSvc,
		Ledger:        ledgerSvc,
		Limits:        limitsSvc,
		Rules:         ruleEngine,
		Alerts:        alertsSvc,
		Approvals:     approvalsSvc,
		Reporting:     reportingSvc,
		Notifications: notificationsSvc,
	}, nil
}
