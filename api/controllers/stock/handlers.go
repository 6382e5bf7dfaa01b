package stock

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mosly/envelope-stock/api/responses"
	"github.com/mosly/envelope-stock/api/validators"
	"github.com/mosly/envelope-stock/internal/ledger"
	"github.com/mosly/envelope-stock/internal/reconcile"
	"github.com/mosly/envelope-stock/internal/snapshots"
	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/pagination"
)

const (
	defaultSnapshotLimit = 10
	maxSnapshotLimit     = 100
	maxTextLen           = 500
)

// Engine is the reconciliation surface the stock endpoints drive.
type Engine interface {
	GetState(ctx context.Context) (*reconcile.StateView, error)
	ComputeState(ctx context.Context) (*reconcile.StateView, error)
	Sync(ctx context.Context, baseline time.Time) (*reconcile.SyncReport, error)
	SyncLatest(ctx context.Context) (*reconcile.SyncReport, error)
	Adjust(ctx context.Context, input reconcile.AdjustInput) (*reconcile.AdjustReport, error)
	RecordSnapshot(ctx context.Context, input reconcile.SnapshotInput) (*reconcile.SnapshotReport, error)
	Baseline(ctx context.Context) (time.Time, error)
	Status() reconcile.Status
}

// SnapshotReader lists recorded physical counts.
type SnapshotReader interface {
	Latest(ctx context.Context) (*snapshots.Snapshot, error)
	List(ctx context.Context, limit int) ([]snapshots.Snapshot, error)
}

// MovementLister pages through the ledger.
type MovementLister interface {
	ListMovements(ctx context.Context, params ledger.ListParams) (*ledger.ListResult, error)
}

type syncRequest struct {
	Baseline *time.Time `json:"baseline"`
}

type adjustRequest struct {
	Item   string     `json:"item" validate:"required,stock_item"`
	Delta  int        `json:"delta" validate:"ne=0"`
	Reason string     `json:"reason" validate:"required,max=500"`
	At     *time.Time `json:"at"`
}

type snapshotRequest struct {
	At         *time.Time     `json:"at"`
	Quantities map[string]int `json:"quantities" validate:"required"`
	Note       string         `json:"note" validate:"max=500"`
}

type baselineResponse struct {
	Baseline time.Time        `json:"baseline"`
	Status   reconcile.Status `json:"status"`
}

// State returns the projection, or a fresh reconstruction with ?source=ledger.
func State(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			view *reconcile.StateView
			err  error
		)
		switch source := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("source"))); source {
		case "", reconcile.StateSourceProjection:
			view, err = engine.GetState(r.Context())
		case reconcile.StateSourceLedger:
			view, err = engine.ComputeState(r.Context())
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "source must be projection or ledger")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Sync ingests new orders from the given baseline or the stored one.
func Sync(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		ctx := reconcile.WithTrigger(r.Context(), reconcile.TriggerAPI)
		var (
			report *reconcile.SyncReport
			err    error
		)
		if req.Baseline != nil {
			report, err = engine.Sync(ctx, *req.Baseline)
		} else {
			report, err = engine.SyncLatest(ctx)
		}
		if err != nil {
			if report != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"run_id":    report.RunID,
					"committed": report.Committed,
					"remaining": report.Remaining,
				}), "sync failed after partial commit")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// Adjust records a manual correction. Once the movement is committed the
// response is 201 even if the follow-up sync failed, so a retry with the same
// Idempotency-Key replays instead of appending twice.
func Adjust(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := enums.ParseStockItem(req.Item)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item"))
			return
		}

		input := reconcile.AdjustInput{Item: item, Delta: req.Delta, Reason: validators.SanitizeString(req.Reason, maxTextLen)}
		if req.At != nil {
			input.At = *req.At
		}
		report, err := engine.Adjust(r.Context(), input)
		if err != nil {
			if report == nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			logg.Error(r.Context(), "follow-up sync after adjustment failed", err)
			report.SyncError = pkgerrors.PublicMessage(err)
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, report)
	}
}

// RecordSnapshot stores a full physical count.
func RecordSnapshot(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req snapshotRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quantities := make(map[enums.StockItem]int, len(req.Quantities))
		for key, qty := range req.Quantities {
			item, err := enums.ParseStockItem(key)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quantities"))
				return
			}
			if _, dup := quantities[item]; dup {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "duplicate item "+item.String()))
				return
			}
			quantities[item] = qty
		}

		input := reconcile.SnapshotInput{Quantities: quantities, Note: validators.SanitizeString(req.Note, maxTextLen)}
		if req.At != nil {
			input.At = *req.At
		}
		report, err := engine.RecordSnapshot(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, report)
	}
}

// LatestSnapshot returns the most recent physical count.
func LatestSnapshot(reader SnapshotReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := reader.Latest(r.Context())
		if err != nil {
			if errors.Is(err, snapshots.ErrNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no snapshot recorded"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read latest snapshot"))
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// ListSnapshots returns recent snapshots, newest first.
func ListSnapshots(reader SnapshotReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultSnapshotLimit, 1, maxSnapshotLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := reader.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list snapshots"))
			return
		}
		if list == nil {
			list = []snapshots.Snapshot{}
		}
		responses.WriteSuccess(w, map[string]any{"snapshots": list})
	}
}

// Movements pages through the ledger newest first, optionally for one item.
func Movements(lister MovementLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := ledger.ListParams{
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("item")); raw != "" {
			item, err := enums.ParseStockItem(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item"))
				return
			}
			params.Item = item
		}

		result, err := lister.ListMovements(r.Context(), params)
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list movements")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Baseline returns the effective sync cutoff and the engine status.
func Baseline(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, err := engine.Baseline(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, baselineResponse{Baseline: at, Status: engine.Status()})
	}
}
