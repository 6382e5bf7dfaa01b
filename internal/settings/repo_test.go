package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosly/envelope-stock/pkg/db/dbtest"
)

func TestBaselineRoundTrip(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	_, ok, err := repo.Baseline(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2025, 3, 1, 10, 30, 0, 123456789, time.FixedZone("CET", 3600))
	require.NoError(t, repo.SetBaseline(ctx, at))

	got, ok, err := repo.Baseline(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(at.Truncate(time.Microsecond)))

	later := at.Add(time.Hour)
	require.NoError(t, repo.SetBaseline(ctx, later))
	got, _, err = repo.Baseline(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(later.Truncate(time.Microsecond)))

	var count int64
	require.NoError(t, client.DB().Table("settings").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestBaselineRejectsCorruptValue(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, KeyBaseline, "yesterday"))
	_, _, err := repo.Baseline(ctx)
	assert.Error(t, err)
}

func TestSetBaselineRequiresTime(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	assert.Error(t, repo.SetBaseline(context.Background(), time.Time{}))
}
