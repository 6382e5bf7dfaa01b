package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mosly/envelope-stock/internal/repo"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/db/models"
	"github.com/mosly/envelope-stock/pkg/enums"
	"github.com/mosly/envelope-stock/pkg/pagination"
)

// ExternalOrderIndex is the partial unique index that makes an order's
// deductions append-if-absent.
const ExternalOrderIndex = "ux_stock_movements_external_order"

// ErrDuplicateSource is returned when a group would repeat an already ingested order.
var ErrDuplicateSource = errors.New("ledger: source already recorded")

// Repository manages the append-only stock movement log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, movement *models.StockMovement) error
	AppendGroup(ctx context.Context, movements []models.StockMovement) error
	ScanBySource(ctx context.Context, source enums.MovementSource) ([]models.StockMovement, error)
	SourceIDs(ctx context.Context, source enums.MovementSource) (map[string]struct{}, error)
	AllAfter(ctx context.Context, after time.Time) ([]models.StockMovement, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// ListParams drives the newest-first audit listing.
type ListParams struct {
	pagination.Params
	Item enums.StockItem
}

type ListResult struct {
	Movements  []models.StockMovement `json:"movements"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Append(ctx context.Context, movement *models.StockMovement) error {
	if movement == nil {
		return fmt.Errorf("movement is required")
	}
	movement.OccurredAt = db.Timestamp(movement.OccurredAt)
	if err := r.DB(ctx).Create(movement).Error; err != nil {
		if db.IsUniqueViolation(err, ExternalOrderIndex) {
			return ErrDuplicateSource
		}
		return err
	}
	return nil
}

// AppendGroup inserts every movement or none of them. Seq values are written
// back into the slice.
func (r *repository) AppendGroup(ctx context.Context, movements []models.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	err := r.Atomic(ctx, func(tx *gorm.DB) error {
		for i := range movements {
			movements[i].OccurredAt = db.Timestamp(movements[i].OccurredAt)
			if err := tx.Create(&movements[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for i := range movements {
			movements[i].Seq = 0
		}
		if db.IsUniqueViolation(err, ExternalOrderIndex) {
			return ErrDuplicateSource
		}
		return err
	}
	return nil
}

func (r *repository) ScanBySource(ctx context.Context, source enums.MovementSource) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	if err := r.DB(ctx).
		Where("source = ?", source).
		Order("seq ASC").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) SourceIDs(ctx context.Context, source enums.MovementSource) (map[string]struct{}, error) {
	var ids []string
	if err := r.DB(ctx).
		Model(&models.StockMovement{}).
		Where("source = ? AND source_id <> ''", source).
		Distinct().
		Pluck("source_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// AllAfter returns movements strictly newer than after in fold order.
func (r *repository) AllAfter(ctx context.Context, after time.Time) ([]models.StockMovement, error) {
	query := r.DB(ctx).Order("occurred_at ASC").Order("seq ASC")
	if !after.IsZero() {
		query = query.Where("occurred_at > ?", db.Timestamp(after))
	}
	var movements []models.StockMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseScopedCursor(params.Cursor, string(params.Item))
	if err != nil {
		return nil, err
	}

	query := r.DB(ctx).Order("seq DESC").Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where("seq < ?", cursor.Seq)
	}
	if params.Item != "" {
		query = query.Where("item_name = ?", params.Item)
	}

	var movements []models.StockMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, err
	}

	page, next := pagination.Page(movements, params.Limit, string(params.Item), func(m models.StockMovement) int64 { return m.Seq })
	return &ListResult{Movements: page, NextCursor: next}, nil
}
