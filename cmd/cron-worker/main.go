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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mosly/envelope-stock/internal/bootstrap"
	"github.com/mosly/envelope-stock/internal/cron"
	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/metrics"
)

const serviceName = "cron-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "service_kind", cfg.Service.Kind)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron_worker.failed", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron_worker.stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	reg := prometheus.DefaultRegisterer

	stack, err := bootstrap.New(ctx, cfg, logg, reg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logg.Error(ctx, "cron_worker.close_failed", err)
		}
	}()

	service, err := buildService(cfg, logg, stack, metrics.NewCronJobMetrics(reg))
	if err != nil {
		return err
	}

	if cfg.Cron.MetricsAddr != "" {
		srv := serveMetrics(ctx, logg, cfg.Cron.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	return service.Run(ctx)
}

// buildService wires the stock-sync job behind the worker-wide Redis lock.
// The lock TTL doubles as the cycle deadline.
func buildService(cfg *config.Config, logg *logger.Logger, stack *bootstrap.Stack, m *metrics.CronJobMetrics) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(stack.Redis, stack.Redis.LockKey(serviceName, cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	syncJob, err := cron.NewStockSyncJob(cron.StockSyncJobParams{Logger: logg, Engine: stack.Engine})
	if err != nil {
		return nil, fmt.Errorf("stock sync job: %w", err)
	}
	registry, err := cron.NewRegistry(syncJob)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Registry:     registry,
		Lock:         lock,
		Metrics:      m,
		Interval:     cfg.Cron.Interval,
		CycleTimeout: cfg.Cron.LockTTL,
	})
}

func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "cron_worker.metrics_failed", err)
		}
	}()
	return srv
}
