package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

// HolderReporter is implemented by locks that can name their current owner.
type HolderReporter interface {
	Holder(ctx context.Context) (string, error)
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// CycleTimeout bounds one locked cycle. Set it to the lock TTL so jobs
	// stop before another worker can take the lease over. Zero uses Interval.
	CycleTimeout time.Duration
}

// Service runs every registered job once per interval while holding Lock.
// Cycles start at fixed offsets from the first one; a cycle that overruns
// its slot drops the ticks it missed instead of queueing them.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron service: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron service: lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		timeout:  params.CycleTimeout,
		now:      time.Now,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.timeout <= 0 {
		s.timeout = s.interval
	}
	return s, nil
}

// Run executes a cycle immediately and then on every interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":          s.registry.Names(),
		"interval":      s.interval.String(),
		"cycle_timeout": s.timeout.String(),
	}), "cron.started")

	next := s.now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		var missed int
		next, missed = nextSlot(next, s.now(), s.interval)
		if missed > 0 {
			s.logg.Warn(s.logg.WithField(ctx, "missed_cycles", missed), "cron.cycle_overran")
		}
		timer.Reset(next.Sub(s.now()))
	}
}

// nextSlot returns the first slot after now on the grid that starts at
// prev, and how many slots were skipped to reach it.
func nextSlot(prev, now time.Time, interval time.Duration) (time.Time, int) {
	next := prev.Add(interval)
	if !next.After(now) {
		missed := int(now.Sub(next)/interval) + 1
		return next.Add(time.Duration(missed) * interval), missed
	}
	return next, 0
}

// RunOnce executes a single locked cycle. Jobs all run even when an earlier
// one fails; their errors are combined.
func (s *Service) RunOnce(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !locked {
		s.skip(ctx)
		return nil
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() {
		// released with the parent ctx so a timed-out cycle still frees the lease
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	var errs error
	for _, job := range s.registry.Jobs() {
		if err := cycleCtx.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return multierr.Append(errs, err)
		}
		if err := s.runJob(cycleCtx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

func (s *Service) skip(ctx context.Context) {
	s.metrics.CycleSkipped()
	if reporter, ok := s.lock.(HolderReporter); ok {
		if holder, err := reporter.Holder(ctx); err == nil && holder != "" {
			ctx = s.logg.WithField(ctx, "lock_holder", holder)
		}
	}
	s.logg.Info(ctx, "cron.cycle_skipped")
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	started := s.now()
	err := job.Run(ctx)
	elapsed := s.now().Sub(started)
	s.metrics.ObserveRun(job.Name(), elapsed, err)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return err
	}
	s.logg.Info(ctx, "cron.job_completed")
	return nil
}
