package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saakshy/saakshy-backend/api/controllers"
	"github.com/saakshy/saakshy-backend/api/middleware"
	"github.com/saakshy/saakshy-backend/internal/ledger"
	"github.com/saakshy/saakshy-backend/pkg/config"
	"github.com/saakshy/saakshy-backend/pkg/db"
	"github.com/saakshy/saakshy-backend/pkg/logger"
	"github.com/saakshy/saakshy-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	ledgerService ledger.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	confirmPolicy := middleware.NewPublicRateLimitPolicy(
		"public_confirm",
		cfg.PublicRateLimit.Window,
		cfg.PublicRateLimit.IPLimit,
		cfg.PublicRateLimit.RecordLimit,
	).WithTrustedProxyHops(cfg.PublicRateLimit.TrustedProxyHops)
	disputePolicy := middleware.NewPublicRateLimitPolicy(
		"public_dispute",
		cfg.PublicRateLimit.Window,
		cfg.PublicRateLimit.IPLimit,
		cfg.PublicRateLimit.RecordLimit,
	).WithTrustedProxyHops(cfg.PublicRateLimit.TrustedProxyHops)

	checks := []controllers.ReadinessCheck{}
	if dbP != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "database", Check: dbP.Ping})
	}
	if redisClient != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Check: redisClient.Ping})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public/records/{recordId}", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Get("/", controllers.GetRecord(ledgerService, logg))
		r.Get("/verify", controllers.VerifyRecord(ledgerService, logg))
		r.With(middleware.PublicRateLimit(confirmPolicy, limiterStore(redisClient), logg)).
			Post("/confirm", controllers.ConfirmRecord(ledgerService, logg))
		r.With(middleware.PublicRateLimit(disputePolicy, limiterStore(redisClient), logg)).
			Post("/dispute", controllers.DisputeRecord(ledgerService, logg))
	})

	r.Route("/api/v1/records", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore(redisClient), logg))
		r.Post("/", controllers.CreateRecord(ledgerService, cfg.App.PublicBaseURL, logg))
		r.Get("/", controllers.ListRecords(ledgerService, logg))
		r.Get("/summary", controllers.RecordSummary(ledgerService, logg))
		r.Post("/{recordId}/pay", controllers.PayRecord(ledgerService, logg))
	})

	return r
}

// A nil *redis.Client must not become a non-nil interface.
func limiterStore(client *redis.Client) middleware.RateLimiterStore {
	if client == nil {
		return nil
	}
	return client
}

func idempotencyStore(client *redis.Client) redis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}
