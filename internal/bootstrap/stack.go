// Package bootstrap wires the shared stock stack used by every binary.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/mosly/envelope-stock/internal/cron"
	"github.com/mosly/envelope-stock/internal/forecast"
	"github.com/mosly/envelope-stock/internal/ledger"
	"github.com/mosly/envelope-stock/internal/reconcile"
	"github.com/mosly/envelope-stock/internal/settings"
	"github.com/mosly/envelope-stock/internal/snapshots"
	"github.com/mosly/envelope-stock/internal/stock"
	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/metrics"
	"github.com/mosly/envelope-stock/pkg/migrate"
	"github.com/mosly/envelope-stock/pkg/redis"
	"github.com/mosly/envelope-stock/pkg/shopify"
)

// Stack holds the connections and services shared by the api, cron worker and CLI.
type Stack struct {
	DB        *db.Client
	Redis     *redis.Client
	Ledger    ledger.Service
	Snapshots snapshots.Repository
	Engine    *reconcile.Engine
	Forecast  *forecast.Service
	Metrics   *metrics.SyncMetrics
}

// New connects to the database and redis, prepares the schema and builds the
// reconciliation engine. reg may be nil when metrics are not exported.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (stack *Stack, err error) {
	stack = &Stack{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, stack.Close())
			stack = nil
		}
	}()

	stack.DB, err = db.New(ctx, cfg.DB, logg)
	if err != nil {
		return stack, fmt.Errorf("bootstrap database: %w", err)
	}
	if err = migrate.Prepare(ctx, cfg, logg, stack.DB); err != nil {
		return stack, fmt.Errorf("prepare schema: %w", err)
	}

	stack.Redis, err = redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return stack, fmt.Errorf("bootstrap redis: %w", err)
	}

	orders, err := shopify.NewClient(cfg.Shopify)
	if err != nil {
		return stack, fmt.Errorf("shopify client: %w", err)
	}

	ledgerRepo := ledger.NewRepository(stack.DB.DB())
	stack.Snapshots = snapshots.NewRepository(stack.DB.DB())
	stack.Ledger, err = ledger.NewService(ledgerRepo)
	if err != nil {
		return stack, fmt.Errorf("ledger service: %w", err)
	}

	reconstructor, err := stock.NewReconstructor(stack.DB.DB(), ledgerRepo, stack.Snapshots)
	if err != nil {
		return stack, fmt.Errorf("stock reconstructor: %w", err)
	}

	lease, err := cron.NewRedisLock(stack.Redis, stack.Redis.LockKey("reconcile", envOrLocal(cfg.App.Env)), cfg.Reconcile.LeaseTTL)
	if err != nil {
		return stack, fmt.Errorf("reconcile lease: %w", err)
	}

	if reg != nil {
		stack.Metrics = metrics.NewSyncMetrics(reg)
	}

	stack.Engine, err = reconcile.NewEngine(reconcile.Params{
		Logger:    logg,
		DB:        stack.DB.DB(),
		Ledger:    ledgerRepo,
		Snapshots: stack.Snapshots,
		Settings:  settings.NewRepository(stack.DB.DB()),
		State:     reconstructor,
		Orders:    orders,
		Lease:     lease,
		Metrics:   stack.Metrics,
		LeaseWait: cfg.Reconcile.LeaseWait,
	})
	if err != nil {
		return stack, fmt.Errorf("reconcile engine: %w", err)
	}

	stack.Forecast, err = forecast.NewService(orders, stack.Redis, cfg.Shopify.CacheTTL, logg)
	if err != nil {
		return stack, fmt.Errorf("forecast service: %w", err)
	}
	return stack, nil
}

// Close releases redis and the database, combining both errors.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	var errs error
	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = multierr.Append(errs, s.DB.Close())
	}
	return errs
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
