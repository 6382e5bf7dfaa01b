package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/mosly/envelope-stock/pkg/enums"
)

// RecordSnapshot stores a full physical count, re-baselines to its timestamp
// and rebuilds the projection from it.
func (e *Engine) RecordSnapshot(ctx context.Context, input SnapshotInput) (*SnapshotReport, error) {
	if err := validateQuantities(input.Quantities); err != nil {
		return nil, err
	}
	at, err := e.operatorTime(input.At)
	if err != nil {
		return nil, err
	}
	note := strings.TrimSpace(input.Note)

	var report *SnapshotReport
	err = e.withLock(ctx, func(ctx context.Context) error {
		if err := e.requireAfterLatestSnapshot(ctx, at); err != nil {
			return err
		}
		snap, err := e.snapshots.Record(ctx, at, input.Quantities, note)
		if err != nil {
			return persistenceError(err, StepSnapshot, 0, 0)
		}
		if err := e.settings.SetBaseline(ctx, at); err != nil {
			return persistenceError(err, StepBaseline, 0, 0)
		}
		state, err := e.state.ComputeState(ctx)
		if err != nil {
			return persistenceError(err, StepComputeState, 0, 0)
		}
		if err := e.state.PersistState(ctx, state); err != nil {
			return persistenceError(err, StepPersistState, 0, 0)
		}
		for _, item := range state.Items() {
			e.metrics.SetStockLevel(item.String(), state[item])
		}

		report = &SnapshotReport{Snapshot: snap, Baseline: at, State: state}
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{
			"snapshot_id": snap.ID.String(),
			"taken_at":    snap.TakenAt,
		}), "stock snapshot recorded")
		return nil
	})
	return report, err
}

func validateQuantities(quantities map[enums.StockItem]int) error {
	if len(quantities) == 0 {
		return validationError("quantities are required")
	}
	for item, qty := range quantities {
		if !item.IsValid() {
			return validationError(fmt.Sprintf("unknown item %q", item))
		}
		if qty < 0 {
			return validationError(fmt.Sprintf("quantity for %s cannot be negative", item))
		}
	}
	var missing []string
	for _, item := range enums.StockItems() {
		if _, ok := quantities[item]; !ok {
			missing = append(missing, item.String())
		}
	}
	if len(missing) > 0 {
		return validationError("snapshot must count every item").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

