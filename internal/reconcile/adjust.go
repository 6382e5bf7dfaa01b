package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mosly/envelope-stock/internal/ledger"
	"github.com/mosly/envelope-stock/internal/snapshots"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/db/models"
	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
)

// maxClockSkew bounds how far into the future an operator timestamp may be.
const maxClockSkew = time.Minute

// Adjust appends one manual movement, advances the baseline to its timestamp
// and folds in any orders newer than it. The movement and the baseline commit
// together; validation errors are returned before anything is written.
func (e *Engine) Adjust(ctx context.Context, input AdjustInput) (*AdjustReport, error) {
	input.Reason = strings.TrimSpace(input.Reason)
	if err := e.validateAdjust(&input); err != nil {
		return nil, err
	}

	var report *AdjustReport
	err := e.withLock(WithTrigger(ctx, TriggerAdjust), func(ctx context.Context) error {
		if err := e.requireAfterLatestSnapshot(ctx, input.At); err != nil {
			return err
		}

		current, err := e.state.ComputeState(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconstruct stock")
		}
		previous := current[input.Item]
		// orders may already have driven an item negative; only removals are checked
		if input.Delta < 0 && previous+input.Delta < 0 {
			return validationError(fmt.Sprintf("insufficient stock for %s: have %d, change %d", input.Item, previous, input.Delta)).
				WithDetails(map[string]any{"item": input.Item, "available": previous, "delta": input.Delta})
		}

		baseline, err := e.advancedBaseline(ctx, input.At)
		if err != nil {
			return err
		}
		movement, err := ledger.BuildMovement(ledger.RecordMovementInput{
			OccurredAt: input.At,
			Item:       input.Item,
			Change:     input.Delta,
			Reason:     input.Reason,
			Source:     enums.MovementSourceManual,
		})
		if err != nil {
			return err
		}
		if err := e.appendWithBaseline(ctx, movement, baseline); err != nil {
			return err
		}

		report = &AdjustReport{Movement: *movement, Previous: previous, Baseline: baseline}
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{
			"item":     input.Item,
			"delta":    input.Delta,
			"seq":      movement.Seq,
			"baseline": baseline.Format(time.RFC3339),
		}), "manual adjustment recorded")

		syncReport, syncErr := e.syncLocked(ctx, baseline)
		report.Sync = syncReport
		if syncErr != nil {
			// keep the projection showing the adjustment even when the order fetch failed
			if pkgerrors.CodeOf(syncErr) == pkgerrors.CodeDependency {
				if refreshErr := e.refreshState(ctx, syncReport); refreshErr != nil {
					e.logg.Error(ctx, "projection refresh after adjustment failed", refreshErr)
				}
			}
			return syncErr
		}
		return nil
	})
	return report, err
}

// advancedBaseline returns the later of at and the stored baseline. An
// adjustment back-dated before the baseline never moves it backwards.
func (e *Engine) advancedBaseline(ctx context.Context, at time.Time) (time.Time, error) {
	stored, ok, err := e.settings.Baseline(ctx)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read baseline")
	}
	if ok && stored.After(at) {
		return stored, nil
	}
	return at, nil
}

// appendWithBaseline writes the movement and the baseline in one transaction.
// On failure nothing is committed and the movement's seq is cleared.
func (e *Engine) appendWithBaseline(ctx context.Context, movement *models.StockMovement, baseline time.Time) error {
	step := StepAppend
	err := e.store.Atomic(ctx, func(tx *gorm.DB) error {
		if err := e.ledger.WithTx(tx).Append(ctx, movement); err != nil {
			return err
		}
		step = StepBaseline
		return e.settings.WithTx(tx).SetBaseline(ctx, baseline)
	})
	if err != nil {
		movement.Seq = 0
		return persistenceError(err, step, 0, 1)
	}
	return nil
}

func (e *Engine) validateAdjust(input *AdjustInput) error {
	if !input.Item.IsValid() {
		return validationError(fmt.Sprintf("unknown item %q", input.Item))
	}
	if input.Reason == "" {
		return validationError("reason is required")
	}
	if input.Delta == 0 {
		return validationError("delta must be non-zero")
	}
	at, err := e.operatorTime(input.At)
	if err != nil {
		return err
	}
	input.At = at
	return nil
}

// operatorTime defaults a zero timestamp to now and rejects future ones.
func (e *Engine) operatorTime(at time.Time) (time.Time, error) {
	now := e.now()
	if at.IsZero() {
		at = now
	}
	if at.After(now.Add(maxClockSkew)) {
		return time.Time{}, validationError("timestamp cannot be in the future")
	}
	return db.Timestamp(at), nil
}

func (e *Engine) requireAfterLatestSnapshot(ctx context.Context, at time.Time) error {
	latest, err := e.snapshots.Latest(ctx)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read latest snapshot")
	}
	if !at.After(latest.TakenAt) {
		return validationError(fmt.Sprintf("timestamp must be after the latest snapshot (%s)", latest.TakenAt.Format(time.RFC3339))).
			WithDetails(map[string]any{"latest_snapshot": latest.TakenAt})
	}
	return nil
}
