package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	inventorycontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP edge uses.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type PaymentService interface {
	paymentcontrollers.Verifier
	webhookcontrollers.PaymentWebhookService
}

// Services groups the domain handlers mounted on the router.
type Services struct {
	Orders       orders.Service
	Payments     PaymentService
	WebhookGuard *payments.WebhookGuard
	Inventory    inventorycontrollers.StockService
	Metrics      http.Handler
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisStore,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	orderPolicy := middleware.NewRateLimitPolicy(
		"orders",
		cfg.HTTP.RateLimitWindow,
		cfg.HTTP.OrderIPLimit,
		cfg.HTTP.OrderUserLimit,
	)
	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhooks",
		cfg.HTTP.RateLimitWindow,
		cfg.HTTP.WebhookIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.DependencyCheck{Name: "db", Ping: dbP.Ping},
			controllers.DependencyCheck{Name: "redis", Ping: redisClient.Ping},
		))
	})
	if svc.Metrics != nil {
		r.Handle("/metrics", svc.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, redisClient, logg)).
			Post("/payments", webhookcontrollers.PaymentWebhook(svc.Payments, cfg.Gateway.SigningSecret(), svc.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RateLimit(orderPolicy, redisClient, logg)).
				Post("/", ordercontrollers.Create(svc.Orders, logg))
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(svc.Orders, logg))
			r.Post("/{orderId}/payment/retry", ordercontrollers.RetryPayment(svc.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleVendor, enums.ActorRoleAdmin)).
				Patch("/{orderId}/status", ordercontrollers.UpdateStatus(svc.Orders, logg))
		})

		r.Get("/payments/verify/{reference}", paymentcontrollers.Verify(svc.Payments, logg))

		r.Route("/inventory", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor, enums.ActorRoleAdmin))
			r.Post("/adjust", inventorycontrollers.Adjust(svc.Inventory, logg))
			r.Get("/{productId}/history", inventorycontrollers.History(svc.Inventory, logg))
		})
	})

	return r
}
