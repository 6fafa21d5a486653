package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmachelo/pharmacy-backend/internal/cron"
	"github.com/farmachelo/pharmacy-backend/internal/invoices"
	"github.com/farmachelo/pharmacy-backend/internal/repair"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db"
	"github.com/farmachelo/pharmacy-backend/pkg/instance"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/metrics"
	"github.com/farmachelo/pharmacy-backend/pkg/migrate"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/redis"
)

const outboxPrunePeriod = 24 * time.Hour

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	outboxRepo := outbox.NewRepository(dbClient.DB())
	pruneJob, err := cron.NewOutboxPruneJob(cron.OutboxPruneParams{
		Logger:        logg,
		Events:        outboxRepo,
		DeadLetters:   outbox.NewDLQRepository(dbClient.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
	})
	requireResource(ctx, logg, "outbox prune job", err)

	invoiceStack, err := invoices.NewStack(
		cfg,
		dbClient,
		redisClient,
		outbox.NewService(outboxRepo, logg),
		metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		logg,
	)
	requireResource(ctx, logg, "invoice stack", err)
	sweeper, err := repair.NewSweeper(invoiceStack.Orders, invoiceStack.Service, cfg.Repair, logg)
	requireResource(ctx, logg, "invoice sweeper", err)
	repairJob, err := cron.NewInvoiceRepairJob(logg, sweeper)
	requireResource(ctx, logg, "invoice repair job", err)

	schedule := cron.NewSchedule().
		Every(cfg.Repair.Interval, repairJob).
		Every(outboxPrunePeriod, pruneJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:    logg,
		Schedule:  schedule,
		Claims:    redisClient,
		KeyPrefix: claimPrefix(cfg.App.Env),
		Metrics:   metrics.NewCronMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"jobs":        schedule.Names(),
	})
	logg.Info(runCtx, "starting cron worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func claimPrefix(env string) string {
	if env == "" {
		env = "local"
	}
	return "fm:cron:" + env
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
