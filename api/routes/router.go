package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	checkoutcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/checkout"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// redisStore is the slice of the redis client the HTTP layer depends on.
type redisStore interface {
	redis.IdempotencyStore
	redis.RateLimiter
	Ping(ctx context.Context) error
}

type webhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*stripe.Event, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	checkoutService checkoutsvc.Service,
	couponService coupons.Service,
	reconciler reconcile.Service,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	webhookVerifier webhookVerifier,
	stripeWebhookGuard *stripewebhook.EventGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontendURL),
	)

	validatePolicy := middleware.NewRateLimitPolicy("validate-intent", cfg.Checkout.ValidateRateLimit, cfg.Checkout.ValidateRateWindow)
	couponPolicy := middleware.NewRateLimitPolicy("coupon-intent", cfg.Checkout.CouponRateLimit, cfg.Checkout.CouponRateWindow)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	r.Handle("/metrics", promhttp.Handler())

	stripeWebhook := webhookcontrollers.StripeWebhook(stripeWebhookService, webhookVerifier, stripeWebhookGuard, logg)
	r.Post("/webhooks", stripeWebhook)
	r.Post("/api/v1/webhooks/stripe", stripeWebhook)

	r.Route("/checkout", func(r chi.Router) {
		r.With(middleware.RateLimit(validatePolicy, redisClient, logg)).
			Get("/validate-payment-intent", checkoutcontrollers.ValidatePaymentIntent(reconciler, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Post("/init", checkoutcontrollers.Init(checkoutService, logg))
			r.With(middleware.Idempotency(redisClient, cfg.FeatureFlags.RequireCheckoutIdempotencyKey, logg)).
				Post("/create-session", checkoutcontrollers.CreateSession(checkoutService, logg))
			r.Get("/get-session", checkoutcontrollers.GetSession(checkoutService, logg))
			r.Post("/delete-session", checkoutcontrollers.DeleteSession(checkoutService, logg))
			r.Delete("/delete-session", checkoutcontrollers.DeleteSession(checkoutService, logg))
			r.Post("/create-payment-intent", checkoutcontrollers.CreatePaymentIntent(checkoutService, logg))
			r.With(middleware.RateLimit(couponPolicy, redisClient, logg)).
				Post("/coupon_intent", checkoutcontrollers.CouponIntent(couponService, logg))
		})
	})

	return r
}

// NewServer wraps the router with the timeouts the API listens with.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
