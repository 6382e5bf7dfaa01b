package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mosly/envelope-stock/internal/classifier"
	"github.com/mosly/envelope-stock/internal/ledger"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/db/models"
	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/metrics"
	"github.com/mosly/envelope-stock/pkg/types"
)

type triggerKey struct{}

// Triggers label runs in logs and metrics.
const (
	TriggerAPI    = "api"
	TriggerCron   = "cron"
	TriggerCLI    = "cli"
	TriggerAdjust = "adjust"
)

// WithTrigger tags ctx with what started the run.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger tagged on ctx, "unknown" when absent.
func TriggerFrom(ctx context.Context) string {
	if trigger, ok := ctx.Value(triggerKey{}).(string); ok && trigger != "" {
		return trigger
	}
	return "unknown"
}

// Sync ingests every order created strictly after baseline that the ledger has
// not seen, then rebuilds the projection. On a PersistenceError the returned
// report holds the counts committed before the failure.
func (e *Engine) Sync(ctx context.Context, baseline time.Time) (*SyncReport, error) {
	if baseline.IsZero() {
		return nil, validationError("baseline is required")
	}
	var report *SyncReport
	err := e.withLock(ctx, func(ctx context.Context) error {
		var err error
		report, err = e.syncLocked(ctx, baseline.UTC())
		return err
	})
	if err != nil && pkgerrors.CodeOf(err) == pkgerrors.CodeConflict {
		e.metrics.ObserveRun(TriggerFrom(ctx), metrics.SyncResultContended, 0)
	}
	return report, err
}

// SyncLatest runs Sync from the stored baseline.
func (e *Engine) SyncLatest(ctx context.Context) (*SyncReport, error) {
	baseline, err := e.Baseline(ctx)
	if err != nil {
		return nil, err
	}
	return e.Sync(ctx, baseline)
}

type datedOrder struct {
	order     types.OrderEvent
	createdAt time.Time
}

func (e *Engine) syncLocked(ctx context.Context, baseline time.Time) (report *SyncReport, err error) {
	trigger := TriggerFrom(ctx)
	startedAt := e.now().UTC()
	report = newSyncReport(uuid.NewString(), baseline, startedAt)
	ctx = e.logg.WithSyncRun(ctx, report.RunID, baseline)
	ctx = e.logg.WithField(ctx, "trigger", trigger)

	defer func() {
		report.FinishedAt = e.now().UTC()
		result := metrics.SyncResultSuccess
		if err != nil {
			result = metrics.SyncResultPersist
			if pkgerrors.CodeOf(err) == pkgerrors.CodeDependency {
				result = metrics.SyncResultFetchError
			}
		}
		e.metrics.ObserveRun(trigger, result, report.FinishedAt.Sub(startedAt))
		e.metrics.AddIngested(report.NewOrders, report.MaterialDeducted)
		e.metrics.AddSkipped("duplicate", report.Duplicates)
		e.metrics.AddSkipped("ignored", report.Ignored)
		e.metrics.AddSkipped("invalid", report.Invalid)
		e.metrics.AddSkipped("empty", report.Empty)
	}()

	seen, err := e.ledger.SourceIDs(ctx, enums.MovementSourceExternalOrder)
	if err != nil {
		return report, persistenceError(err, StepDedupScan, 0, 0)
	}

	events, err := e.orders.FetchOrdersSince(ctx, baseline)
	if err != nil {
		e.logg.Error(ctx, "order fetch failed", err)
		return report, fetchError(err)
	}
	report.Fetched = len(events)

	candidates := make([]datedOrder, 0, len(events))
	for _, event := range events {
		createdAt, parseErr := parseCreatedAt(event.CreatedAt)
		if parseErr != nil || strings.TrimSpace(event.ID) == "" {
			report.Invalid++
			if parseErr == nil {
				parseErr = fmt.Errorf("order id is empty")
			}
			e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
				"order_id":   event.ID,
				"order_name": event.Name,
				"created_at": event.CreatedAt,
				"reason":     parseErr.Error(),
			}), "skipping malformed order")
			continue
		}
		if !createdAt.After(baseline) {
			report.Ignored++
			continue
		}
		candidates = append(candidates, datedOrder{order: event, createdAt: createdAt})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	processedAt := db.Timestamp(e.now())
	for i, candidate := range candidates {
		order := candidate.order
		if _, dup := seen[order.ID]; dup {
			report.Duplicates++
			continue
		}

		classification := classifier.Classify(order)
		if classification.Quantity <= 0 {
			report.Empty++
			seen[order.ID] = struct{}{}
			continue
		}

		group := deductionGroup(order, classification, processedAt)
		if appendErr := e.ledger.AppendGroup(ctx, group); appendErr != nil {
			if errors.Is(appendErr, ledger.ErrDuplicateSource) {
				report.Duplicates++
				seen[order.ID] = struct{}{}
				continue
			}
			report.Remaining = len(candidates) - i
			e.logg.Error(e.logg.WithFields(ctx, map[string]any{
				"order_id":  order.ID,
				"committed": report.Committed,
				"remaining": report.Remaining,
			}), "ledger append failed", appendErr)
			return report, persistenceError(appendErr, StepAppend, report.Committed, report.Remaining)
		}

		seen[order.ID] = struct{}{}
		report.Committed++
		report.NewOrders++
		report.MaterialDeducted += classification.Quantity
		if !classification.Category.IsNone() {
			report.PerCategory[classification.Category]++
		}
		report.Orders = append(report.Orders, IngestedOrder{
			ID:       order.ID,
			Name:     order.Name,
			Quantity: classification.Quantity,
			Category: classification.Category,
		})
	}

	if err := e.refreshState(ctx, report); err != nil {
		return report, err
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"fetched":           report.Fetched,
		"new_orders":        report.NewOrders,
		"material_deducted": report.MaterialDeducted,
		"duplicates":        report.Duplicates,
		"ignored":           report.Ignored,
		"invalid":           report.Invalid,
		"empty":             report.Empty,
	}), "stock sync complete")
	return report, nil
}

// refreshState recomputes stock and overwrites the projection.
func (e *Engine) refreshState(ctx context.Context, report *SyncReport) error {
	state, err := e.state.ComputeState(ctx)
	if err != nil {
		return persistenceError(err, StepComputeState, report.Committed, 0)
	}
	if err := e.state.PersistState(ctx, state); err != nil {
		return persistenceError(err, StepPersistState, report.Committed, 0)
	}
	report.State = state
	for _, item := range state.Items() {
		e.metrics.SetStockLevel(item.String(), state[item])
	}
	return nil
}

func deductionGroup(order types.OrderEvent, classification classifier.Classification, at time.Time) []models.StockMovement {
	reason := "Shopify order " + orderLabel(order)
	group := []models.StockMovement{{
		OccurredAt: at,
		ItemName:   enums.MaterialItem(),
		Change:     -classification.Quantity,
		Reason:     reason,
		Source:     enums.MovementSourceExternalOrder,
		SourceID:   order.ID,
	}}
	if item, ok := classification.Category.StockItem(); ok {
		group = append(group, models.StockMovement{
			OccurredAt: at,
			ItemName:   item,
			Change:     -1,
			Reason:     reason,
			Source:     enums.MovementSourceExternalOrder,
			SourceID:   order.ID,
		})
	}
	return group
}

func orderLabel(order types.OrderEvent) string {
	if name := strings.TrimSpace(order.Name); name != "" {
		return name
	}
	return "#" + order.ID
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05Z07:00",
}

func parseCreatedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("created_at %q is not a timestamp", raw)
}
