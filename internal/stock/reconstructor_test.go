package stock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosly/envelope-stock/internal/ledger"
	"github.com/mosly/envelope-stock/internal/snapshots"
	"github.com/mosly/envelope-stock/pkg/db/dbtest"
	"github.com/mosly/envelope-stock/pkg/db/models"
	"github.com/mosly/envelope-stock/pkg/enums"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	ledger    ledger.Repository
	snapshots snapshots.Repository
	rec       *Reconstructor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	ledgerRepo := ledger.NewRepository(client.DB())
	snapshotRepo := snapshots.NewRepository(client.DB())
	rec, err := NewReconstructor(client.DB(), ledgerRepo, snapshotRepo)
	require.NoError(t, err)
	return fixture{ledger: ledgerRepo, snapshots: snapshotRepo, rec: rec}
}

func manual(at time.Time, item enums.StockItem, change int) *models.StockMovement {
	return &models.StockMovement{OccurredAt: at, ItemName: item, Change: change, Reason: "count fix", Source: enums.MovementSourceManual}
}

func TestComputeStateWithoutSnapshotStartsAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.rec.ComputeState(ctx)
	require.NoError(t, err)
	assert.Equal(t, NewState(), state)

	require.NoError(t, f.ledger.Append(ctx, manual(t0, enums.StockItemMosolap, 100)))
	state, err = f.rec.ComputeState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, state[enums.StockItemMosolap])
	assert.Len(t, state, len(enums.StockItems()))
}

func TestComputeStateFoldsOnlyMovementsAfterSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, manual(t0, enums.StockItemMosolap, 999)))
	snapAt := t0.Add(time.Hour)
	require.NoError(t, f.ledger.Append(ctx, manual(snapAt, enums.StockItemMosolap, 7)))
	_, err := f.snapshots.Record(ctx, snapAt, map[enums.StockItem]int{
		enums.StockItemMosolap: 200,
		enums.StockItemF16:     10,
		enums.StockItemH18:     10,
	}, "count")
	require.NoError(t, err)

	require.NoError(t, f.ledger.AppendGroup(ctx, []models.StockMovement{
		{OccurredAt: snapAt.Add(time.Minute), ItemName: enums.StockItemMosolap, Change: -3, Reason: "Shopify order #1", Source: enums.MovementSourceExternalOrder, SourceID: "1"},
		{OccurredAt: snapAt.Add(time.Minute), ItemName: enums.StockItemH18, Change: -1, Reason: "Shopify order #1", Source: enums.MovementSourceExternalOrder, SourceID: "1"},
	}))
	require.NoError(t, f.ledger.Append(ctx, manual(snapAt.Add(2*time.Minute), enums.StockItemF16, 5)))

	state, err := f.rec.ComputeState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 197, state[enums.StockItemMosolap])
	assert.Equal(t, 9, state[enums.StockItemH18])
	assert.Equal(t, 15, state[enums.StockItemF16])
	assert.Equal(t, 0, state[enums.StockItemK20])

	again, err := f.rec.ComputeState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, again)
}

func TestReconstructReportsMovementsInFoldOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, manual(t0.Add(time.Minute), enums.StockItemI19, 2)))
	require.NoError(t, f.ledger.Append(ctx, manual(t0, enums.StockItemI19, 3)))

	rec, err := f.rec.Reconstruct(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec.Snapshot)
	require.Len(t, rec.Movements, 2)
	assert.Equal(t, 3, rec.Movements[0].Change)
	assert.Equal(t, 5, rec.State[enums.StockItemI19])
}

func TestPersistStateReplacesProjection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, ok, err := f.rec.CurrentState(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first := NewState()
	first[enums.StockItemMosolap] = 50
	require.NoError(t, f.rec.PersistState(ctx, first))

	second := first.Clone()
	second[enums.StockItemMosolap] = 47
	second[enums.StockItemK20] = -1
	require.NoError(t, f.rec.PersistState(ctx, second))

	current, updatedAt, ok, err := f.rec.CurrentState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, updatedAt.IsZero())
	assert.Equal(t, second, current)
	assert.Equal(t, 50, first[enums.StockItemMosolap], "clone must not alias")
}

func TestPersistStateRejectsEmptyState(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.rec.PersistState(context.Background(), State{}))
}
