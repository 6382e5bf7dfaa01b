package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/mosly/envelope-stock/api/responses"
	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/db"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is any dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mosly-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

type poolReporter interface {
	Stats() db.PoolStats
}

// HealthReady pings the database and redis; any failure answers 503 with the
// failing dependency names. A database that reports pool stats gets them echoed.
func HealthReady(cfg *config.Config, logg *logger.Logger, database Pinger, redis Pinger) http.HandlerFunc {
	checks := []struct {
		name   string
		pinger Pinger
	}{
		{"database", database},
		{"redis", redis},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mosly-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failed := map[string]string{}
		for _, check := range checks {
			if check.pinger == nil {
				continue
			}
			if err := check.pinger.Ping(ctx); err != nil {
				failed[check.name] = err.Error()
			}
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failed))
			return
		}
		body := map[string]any{"status": "ready"}
		if pool, ok := database.(poolReporter); ok {
			body["database_pool"] = pool.Stats()
		}
		responses.WriteSuccess(w, body)
	}
}
