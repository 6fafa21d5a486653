package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmachelo/pharmacy-backend/api/controllers"
	"github.com/farmachelo/pharmacy-backend/api/middleware"
	"github.com/farmachelo/pharmacy-backend/internal/auth"
	"github.com/farmachelo/pharmacy-backend/internal/cart"
	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/internal/invoices"
	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/metrics"
)

// RedisStore is the Redis surface the HTTP layer needs for rate limiting,
// idempotent replays and token revocation.
type RedisStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Params carries everything NewRouter wires into handlers. A nil Redis
// disables rate limiting, replays and revocation checks.
type Params struct {
	Config       *config.Config
	Logger       *logger.Logger
	Dependencies map[string]controllers.Pinger
	Redis        RedisStore
	Metrics      http.Handler
	HTTPMetrics  *metrics.HTTPMetrics

	Auth          auth.Service
	Catalog       catalog.Service
	Cart          cart.Service
	Orders        orders.Service
	Payments      payments.Service
	Invoices      invoices.Service
	Settlement    controllers.Settler
	CardValidator controllers.CardValidator
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	var (
		rateStore   middleware.WindowCounter
		idemStore   middleware.IdempotencyStore
		revocations middleware.RevocationChecker
	)
	if p.Redis != nil {
		rateStore = p.Redis
		idemStore = p.Redis
		revocations = p.Redis
	}

	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	limits := cfg.AuthRateLimit
	loginLimit := middleware.Throttle("login", limits.LoginWindow, rateStore, logg,
		middleware.PerIP(limits.LoginIPLimit), middleware.PerEmail(limits.LoginEmailLimit))
	registerLimit := middleware.Throttle("register", limits.RegisterWindow, rateStore, logg,
		middleware.PerIP(limits.RegisterIPLimit), middleware.PerEmail(limits.RegisterEmailLimit))
	authenticate := middleware.Auth(cfg.JWT, revocations, logg)
	idempotent := middleware.Idempotency(idemStore, cfg.App.IdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Dependencies, logg))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(registerLimit).Post("/register", controllers.AuthRegister(p.Auth, logg))
		r.With(loginLimit).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.With(authenticate, middleware.RequireCustomer(logg)).Get("/me", controllers.AuthMe(p.Auth, logg))
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", controllers.ProductsList(p.Catalog, logg))
		r.Get("/{productId}", controllers.ProductGet(p.Catalog, logg))
	})

	r.Post("/api/payments/validate-card", controllers.PaymentsValidateCard(p.CardValidator, logg))
	r.Get("/api/invoices/demo", controllers.InvoiceDemo(p.Invoices, logg))

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCustomer(logg))

			r.Route("/api/cart", func(r chi.Router) {
				r.Get("/", controllers.CartGet(p.Cart, logg))
				r.Delete("/", controllers.CartClear(p.Cart, logg))
				r.Post("/items", controllers.CartAddItem(p.Cart, logg))
				r.Put("/items/{productId}", controllers.CartUpdateItem(p.Cart, logg))
				r.Delete("/items/{productId}", controllers.CartRemoveItem(p.Cart, logg))
			})

			r.With(idempotent).Post("/api/payments/process", controllers.PaymentsProcess(p.Settlement, logg))
			r.Get("/api/orders", controllers.OrdersList(p.Orders, logg))
			r.Get("/api/invoices", controllers.InvoicesList(p.Invoices, logg))
			r.With(idempotent).Post("/api/invoices", controllers.InvoiceCreate(p.Invoices, logg))
		})

		r.Get("/api/payments/transactions/{transactionId}", controllers.PaymentsTransaction(p.Payments, logg))
		r.Get("/api/orders/{orderId}", controllers.OrderGet(p.Orders, logg))
		r.Get("/api/invoices/by-transaction/{transactionId}", controllers.InvoiceByTransaction(p.Invoices, logg))
		r.Get("/api/invoices/{invoiceId}", controllers.InvoiceGet(p.Invoices, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		if !cfg.App.IsProd() {
			r.With(registerLimit).Post("/register", controllers.AdminAuthRegister(cfg, p.Auth, logg))
		}
		r.With(loginLimit).Post("/login", controllers.AdminAuthLogin(p.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireAdmin(logg))

			r.Post("/logout", controllers.AdminAuthLogout(p.Auth, logg))

			r.Route("/products", func(r chi.Router) {
				r.Post("/", controllers.AdminProductCreate(p.Catalog, logg))
				r.Put("/{productId}", controllers.AdminProductUpdate(p.Catalog, logg))
				r.Delete("/{productId}", controllers.AdminProductDelete(p.Catalog, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminOrdersList(p.Orders, logg))
				r.Get("/stats", controllers.AdminOrderStats(p.Orders, logg))
				r.Get("/{orderId}", controllers.AdminOrderGet(p.Orders, logg))
				r.Put("/{orderId}/status", controllers.AdminOrderUpdateStatus(p.Orders, logg))
				r.With(idempotent).Post("/{orderId}/invoice/repair", controllers.AdminOrderInvoiceRepair(p.Invoices, logg))
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", controllers.AdminInvoicesList(p.Invoices, logg))
				r.Get("/stats", controllers.AdminInvoiceStats(p.Invoices, logg))
			})
		})
	})

	return r
}
