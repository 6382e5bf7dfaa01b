package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mosly/envelope-stock/api/controllers"
	ordercontrollers "github.com/mosly/envelope-stock/api/controllers/orders"
	stockcontrollers "github.com/mosly/envelope-stock/api/controllers/stock"
	"github.com/mosly/envelope-stock/api/middleware"
	"github.com/mosly/envelope-stock/pkg/auth/session"
	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/metrics"
	"github.com/mosly/envelope-stock/pkg/redis"
)

// RedisStore is the redis surface shared by rate limiting, idempotency and readiness.
type RedisStore interface {
	redis.Pinger
	middleware.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// SessionManager opens, authenticates and revokes operator sessions.
type SessionManager interface {
	middleware.Authenticator
	Open(ctx context.Context) (*session.Token, error)
	Revoke(ctx context.Context, sessionID string) error
}

// Services groups the domain collaborators behind the /api/v1 routes.
type Services struct {
	Engine    stockcontrollers.Engine
	Snapshots stockcontrollers.SnapshotReader
	Movements stockcontrollers.MovementLister
	Orders    ordercontrollers.SummaryService
	// Metrics serves /metrics when set; HTTPMetrics records every request.
	Metrics     http.Handler
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisStore,
	sessionManager SessionManager,
	services Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Instrument(logg, services.HTTPMetrics),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	idempotent := middleware.Idempotency(redisClient, middleware.IdempotencyPolicyFrom(cfg.Idempotency), logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if services.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", services.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(middleware.LoginRateLimit(cfg.AuthRateLimit), redisClient, logg)).
			Post("/session", controllers.SessionCreate(cfg, sessionManager, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(sessionManager, logg))

			r.Delete("/session", controllers.SessionDelete(sessionManager, logg))

			r.Route("/stock", func(r chi.Router) {
				r.Get("/", stockcontrollers.State(services.Engine, logg))
				r.Get("/baseline", stockcontrollers.Baseline(services.Engine, logg))
				r.Post("/sync", stockcontrollers.Sync(services.Engine, logg))
				r.With(idempotent).Post("/adjustments", stockcontrollers.Adjust(services.Engine, logg))
				r.Get("/movements", stockcontrollers.Movements(services.Movements, logg))

				r.Route("/snapshots", func(r chi.Router) {
					r.With(idempotent).Post("/", stockcontrollers.RecordSnapshot(services.Engine, logg))
					r.Get("/", stockcontrollers.ListSnapshots(services.Snapshots, logg))
					r.Get("/latest", stockcontrollers.LatestSnapshot(services.Snapshots, logg))
				})
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/summary", ordercontrollers.Summary(services.Orders, logg))
				r.Get("/forecast", ordercontrollers.Forecast(services.Orders, logg))
			})
		})
	})

	return r
}
