package cron

import (
	"context"
	"fmt"

	"github.com/mosly/envelope-stock/internal/reconcile"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/logger"
)

const stockSyncJobName = "stock-sync"

type stockSyncer interface {
	SyncLatest(ctx context.Context) (*reconcile.SyncReport, error)
}

type StockSyncJobParams struct {
	Logger *logger.Logger
	Engine stockSyncer
}

// NewStockSyncJob builds the job that ingests new Shopify orders from the
// effective baseline.
func NewStockSyncJob(params StockSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("reconcile engine required")
	}
	return &stockSyncJob{logg: params.Logger, engine: params.Engine}, nil
}

type stockSyncJob struct {
	logg   *logger.Logger
	engine stockSyncer
}

func (j *stockSyncJob) Name() string { return stockSyncJobName }

func (j *stockSyncJob) Run(ctx context.Context) error {
	ctx = reconcile.WithTrigger(ctx, reconcile.TriggerCron)
	report, err := j.engine.SyncLatest(ctx)
	if err != nil {
		switch pkgerrors.CodeOf(err) {
		case pkgerrors.CodeStateConflict:
			j.logg.Warn(ctx, "no baseline recorded yet; record a snapshot to start syncing")
			return nil
		case pkgerrors.CodeConflict:
			j.logg.Info(ctx, "reconciliation already running elsewhere; skipping")
			return nil
		}
	}
	if report != nil {
		ctx = j.logg.WithFields(ctx, map[string]any{
			"run_id":            report.RunID,
			"new_orders":        report.NewOrders,
			"material_deducted": report.MaterialDeducted,
			"duplicates":        report.Duplicates,
			"invalid":           report.Invalid,
			"committed":         report.Committed,
			"remaining":         report.Remaining,
		})
	}
	if err != nil {
		if report != nil {
			j.logg.Warn(ctx, "stock sync stopped with a partial report")
		}
		return fmt.Errorf("stock sync: %w", err)
	}
	j.logg.Info(ctx, "stock sync completed")
	return nil
}
