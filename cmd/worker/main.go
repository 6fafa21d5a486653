package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmachelo/pharmacy-backend/internal/analytics/router"
	"github.com/farmachelo/pharmacy-backend/internal/analytics/writer"
	"github.com/farmachelo/pharmacy-backend/internal/consumers"
	"github.com/farmachelo/pharmacy-backend/internal/invoices"
	"github.com/farmachelo/pharmacy-backend/internal/repair"
	"github.com/farmachelo/pharmacy-backend/pkg/bigquery"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db"
	"github.com/farmachelo/pharmacy-backend/pkg/instance"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/metrics"
	"github.com/farmachelo/pharmacy-backend/pkg/migrate"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/idempotency"
	"github.com/farmachelo/pharmacy-backend/pkg/pubsub"
	"github.com/farmachelo/pharmacy-backend/pkg/redis"
)

const analyticsConsumerName = "settlement-analytics"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "error closing bigquery client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	invoiceStack, err := invoices.NewStack(cfg, dbClient, redisClient, outboxService, metrics.NewSettlementMetrics(prometheus.DefaultRegisterer), logg)
	requireResource(ctx, logg, "invoice stack", err)

	repairHandler, err := repair.NewHandler(invoiceStack.Service, logg)
	requireResource(ctx, logg, "invoice repair handler", err)
	repairConsumer, err := consumers.NewSubscriber(consumers.SubscriberParams{
		Name:         repair.ConsumerName,
		Subscription: pubsubClient.Subscriber(cfg.PubSub.InvoiceRepairSubscription),
		Handler:      repairHandler,
		Idempotency:  manager,
		Logger:       logg,
	})
	requireResource(ctx, logg, "invoice repair consumer", err)

	analyticsWriter, err := writer.New(bqClient, writer.Config{Table: cfg.BigQuery.SettlementsTable})
	requireResource(ctx, logg, "analytics writer", err)
	analyticsRouter, err := router.NewRouter(analyticsWriter, logg)
	requireResource(ctx, logg, "analytics router", err)
	analyticsConsumer, err := consumers.NewSubscriber(consumers.SubscriberParams{
		Name:         analyticsConsumerName,
		Subscription: pubsubClient.Subscriber(cfg.PubSub.AnalyticsSubscription),
		Handler:      analyticsRouter,
		Idempotency:  manager,
		Logger:       logg,
	})
	requireResource(ctx, logg, "analytics consumer", err)

	service, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
			"bigquery": bqClient,
		},
		Consumers: []consumer{repairConsumer, analyticsConsumer},
		Flusher:   analyticsWriter,
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "starting worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
