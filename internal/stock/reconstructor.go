// Package stock derives on-hand quantities from the latest snapshot and the ledger.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/mosly/envelope-stock/internal/ledger"
	"github.com/mosly/envelope-stock/internal/snapshots"
	"github.com/mosly/envelope-stock/pkg/db/models"
	"github.com/mosly/envelope-stock/pkg/enums"
)

// State maps every stock item to its quantity.
type State map[enums.StockItem]int

// NewState returns a state with every known item at zero.
func NewState() State {
	state := make(State, len(enums.StockItems()))
	for _, item := range enums.StockItems() {
		state[item] = 0
	}
	return state
}

// Clone returns an independent copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for item, qty := range s {
		out[item] = qty
	}
	return out
}

// Items returns the item names in stable order.
func (s State) Items() []enums.StockItem {
	items := make([]enums.StockItem, 0, len(s))
	for item := range s {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

// Reconstruction is the full derivation behind a computed state.
type Reconstruction struct {
	Snapshot  *snapshots.Snapshot    `json:"snapshot,omitempty"`
	Movements []models.StockMovement `json:"-"`
	State     State                  `json:"state"`
}

// Reconstructor folds snapshots and ledger movements into State and maintains
// the stock_current projection.
type Reconstructor struct {
	db        *gorm.DB
	ledger    ledger.Repository
	snapshots snapshots.Repository
	now       func() time.Time
}

// NewReconstructor wires a reconstructor over the shared connection.
func NewReconstructor(db *gorm.DB, ledgerRepo ledger.Repository, snapshotRepo snapshots.Repository) (*Reconstructor, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if snapshotRepo == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	return &Reconstructor{db: db, ledger: ledgerRepo, snapshots: snapshotRepo, now: time.Now}, nil
}

// ComputeState reads the latest snapshot and folds every later movement into it.
// It never writes.
func (r *Reconstructor) ComputeState(ctx context.Context) (State, error) {
	rec, err := r.Reconstruct(ctx)
	if err != nil {
		return nil, err
	}
	return rec.State, nil
}

// Reconstruct is ComputeState plus the snapshot and movements it was folded from.
func (r *Reconstructor) Reconstruct(ctx context.Context) (*Reconstruction, error) {
	state := NewState()
	var after time.Time

	snap, err := r.snapshots.Latest(ctx)
	switch {
	case errors.Is(err, snapshots.ErrNotFound):
		snap = nil
	case err != nil:
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	default:
		for item, qty := range snap.Quantities {
			state[item] = qty
		}
		after = snap.TakenAt
	}

	movements, err := r.ledger.AllAfter(ctx, after)
	if err != nil {
		return nil, fmt.Errorf("load movements: %w", err)
	}
	for _, movement := range movements {
		state[movement.ItemName] += movement.Change
	}

	return &Reconstruction{Snapshot: snap, Movements: movements, State: state}, nil
}

// PersistState replaces the projection in one transaction so readers see
// either the previous map or the new one.
func (r *Reconstructor) PersistState(ctx context.Context, state State) error {
	if len(state) == 0 {
		return fmt.Errorf("state is empty")
	}
	updatedAt := r.now().UTC()
	rows := make([]models.StockCurrent, 0, len(state))
	for _, item := range state.Items() {
		rows = append(rows, models.StockCurrent{ItemName: item, Quantity: state[item], UpdatedAt: updatedAt})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.StockCurrent{}).Error; err != nil {
			return fmt.Errorf("clear stock_current: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("write stock_current: %w", err)
		}
		return nil
	})
}

// CurrentState reads the projection. ok is false when it has never been written.
func (r *Reconstructor) CurrentState(ctx context.Context) (State, time.Time, bool, error) {
	var rows []models.StockCurrent
	if err := r.db.WithContext(ctx).Order("item_name ASC").Find(&rows).Error; err != nil {
		return nil, time.Time{}, false, err
	}
	if len(rows) == 0 {
		return nil, time.Time{}, false, nil
	}
	state := NewState()
	var updatedAt time.Time
	for _, row := range rows {
		state[row.ItemName] = row.Quantity
		if row.UpdatedAt.After(updatedAt) {
			updatedAt = row.UpdatedAt.UTC()
		}
	}
	return state, updatedAt, true, nil
}
