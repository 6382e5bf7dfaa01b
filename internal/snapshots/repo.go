package snapshots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mosly/envelope-stock/internal/repo"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/db/models"
	"github.com/mosly/envelope-stock/pkg/enums"
)

// ErrNotFound is returned by Latest when no snapshot has been recorded.
var ErrNotFound = errors.New("snapshots: none recorded")

// Snapshot is one operator-declared count of every stock item.
type Snapshot struct {
	ID         uuid.UUID               `json:"id"`
	TakenAt    time.Time               `json:"taken_at"`
	Quantities map[enums.StockItem]int `json:"quantities"`
	Note       string                  `json:"note"`
}

// Repository persists snapshots as append-only groups of item rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, takenAt time.Time, quantities map[enums.StockItem]int, note string) (*Snapshot, error)
	Latest(ctx context.Context) (*Snapshot, error)
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a snapshot repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Record(ctx context.Context, takenAt time.Time, quantities map[enums.StockItem]int, note string) (*Snapshot, error) {
	if takenAt.IsZero() {
		return nil, fmt.Errorf("snapshot time is required")
	}
	if len(quantities) == 0 {
		return nil, fmt.Errorf("snapshot quantities are required")
	}

	snapshot := &Snapshot{
		ID:         uuid.New(),
		TakenAt:    db.Timestamp(takenAt),
		Quantities: make(map[enums.StockItem]int, len(quantities)),
		Note:       note,
	}
	rows := make([]models.StockSnapshot, 0, len(quantities))
	for _, item := range sortedItems(quantities) {
		qty := quantities[item]
		snapshot.Quantities[item] = qty
		rows = append(rows, models.StockSnapshot{
			SnapshotID: snapshot.ID,
			TakenAt:    snapshot.TakenAt,
			ItemName:   item,
			Quantity:   qty,
			Note:       note,
		})
	}

	if err := r.Atomic(ctx, func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	}); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Latest returns the snapshot with the greatest taken_at; ties resolve to the
// most recently inserted.
func (r *repository) Latest(ctx context.Context) (*Snapshot, error) {
	var head models.StockSnapshot
	err := r.DB(ctx).
		Order("taken_at DESC").
		Order("id DESC").
		Limit(1).
		Take(&head).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rows []models.StockSnapshot
	if err := r.DB(ctx).
		Where("snapshot_id = ?", head.SnapshotID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return group(rows)[0], nil
}

// List returns up to limit snapshots, newest first.
func (r *repository) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}

	latestRows := r.DB(ctx).Model(&models.StockSnapshot{}).Select("MAX(id)").Group("snapshot_id")
	var heads []models.StockSnapshot
	if err := r.DB(ctx).
		Where("id IN (?)", latestRows).
		Order("taken_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&heads).Error; err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return []Snapshot{}, nil
	}

	ids := make([]uuid.UUID, 0, len(heads))
	for _, head := range heads {
		ids = append(ids, head.SnapshotID)
	}
	var rows []models.StockSnapshot
	if err := r.DB(ctx).
		Where("snapshot_id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*Snapshot, len(heads))
	for _, snap := range group(rows) {
		byID[snap.ID] = snap
	}
	out := make([]Snapshot, 0, len(heads))
	for _, head := range heads {
		if snap, ok := byID[head.SnapshotID]; ok {
			out = append(out, *snap)
		}
	}
	return out, nil
}

// group folds item rows into snapshots, preserving first-seen order.
func group(rows []models.StockSnapshot) []*Snapshot {
	var out []*Snapshot
	index := map[uuid.UUID]*Snapshot{}
	for _, row := range rows {
		snap, ok := index[row.SnapshotID]
		if !ok {
			snap = &Snapshot{
				ID:         row.SnapshotID,
				TakenAt:    row.TakenAt.UTC(),
				Quantities: map[enums.StockItem]int{},
				Note:       row.Note,
			}
			index[row.SnapshotID] = snap
			out = append(out, snap)
		}
		snap.Quantities[row.ItemName] = row.Quantity
	}
	return out
}

func sortedItems(quantities map[enums.StockItem]int) []enums.StockItem {
	items := make([]enums.StockItem, 0, len(quantities))
	for item := range quantities {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}
