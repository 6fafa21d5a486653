package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmachelo/pharmacy-backend/api/controllers"
	"github.com/farmachelo/pharmacy-backend/api/routes"
	"github.com/farmachelo/pharmacy-backend/internal/admins"
	"github.com/farmachelo/pharmacy-backend/internal/auth"
	"github.com/farmachelo/pharmacy-backend/internal/cards"
	"github.com/farmachelo/pharmacy-backend/internal/cart"
	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/internal/invoices"
	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/internal/seed"
	"github.com/farmachelo/pharmacy-backend/internal/settlement"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db"
	"github.com/farmachelo/pharmacy-backend/pkg/instance"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/metrics"
	"github.com/farmachelo/pharmacy-backend/pkg/migrate"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/redis"
	"github.com/farmachelo/pharmacy-backend/pkg/security"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	base := repo.NewBase(dbClient.DB(), cfg.DB.QueryTimeout)
	userRepo := users.NewRepository(base)
	adminRepo := admins.NewRepository(base)
	productRepo := catalog.NewRepository(base)
	cartRepo := cart.NewRepository(base)
	orderRepo := orders.NewRepository(base)
	paymentRepo := payments.NewRepository(base)
	hasher := security.NewHasher(cfg.Password)

	if cfg.FeatureFlags.SeedCatalog {
		seeder, err := seed.NewSeeder(productRepo, adminRepo, hasher, cfg.Seed, logg)
		requireResource(ctx, logg, "seeder", err)
		requireResource(ctx, logg, "catalog seed", seeder.Run(ctx))
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	invoiceStack, err := invoices.NewStack(cfg, dbClient, redisClient, outboxService, settlementMetrics, logg)
	requireResource(ctx, logg, "invoice stack", err)

	authService, err := auth.NewService(auth.ServiceParams{
		Users:     userRepo,
		Admins:    adminRepo,
		Revoker:   redisClient,
		Hasher:    hasher,
		JWTConfig: cfg.JWT,
	})
	requireResource(ctx, logg, "auth service", err)

	catalogService, err := catalog.NewService(productRepo)
	requireResource(ctx, logg, "catalog service", err)

	cartService, err := cart.NewService(cartRepo, productRepo, invoiceStack.Locker, logg)
	requireResource(ctx, logg, "cart service", err)

	orderService, err := orders.NewService(orders.ServiceParams{
		Orders:   orderRepo,
		Users:    userRepo,
		Products: productRepo,
		Payments: paymentRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
	})
	requireResource(ctx, logg, "orders service", err)

	paymentService, err := payments.NewService(paymentRepo)
	requireResource(ctx, logg, "payments service", err)

	cardValidator := cards.NewValidator(nil)
	engine, err := settlement.NewEngine(settlement.EngineParams{
		Tx:          dbClient,
		Users:       userRepo,
		Carts:       cartRepo,
		Pricer:      cart.NewPricer(cartRepo, productRepo),
		Orders:      orderRepo,
		Payments:    paymentRepo,
		Synthesizer: invoiceStack.Synthesizer,
		Outbox:      outboxService,
		Locker:      invoiceStack.Locker,
		Validator:   cardValidator,
		Config:      cfg.Payments,
		Metrics:     settlementMetrics,
		Logger:      logg,
	})
	requireResource(ctx, logg, "settlement engine", err)

	handler := routes.NewRouter(routes.Params{
		Config: cfg,
		Logger: logg,
		Dependencies: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Redis:         redisClient,
		HTTPMetrics:   metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Auth:          authService,
		Catalog:       catalogService,
		Cart:          cartService,
		Orders:        orderService,
		Payments:      paymentService,
		Invoices:      invoiceStack.Service,
		Settlement:    engine,
		CardValidator: cardValidator,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
		return
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(runCtx, "api server shutdown failed", err)
		return
	}
	logg.Info(runCtx, "api server shut down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
