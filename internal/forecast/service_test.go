package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/types"
)

type stubLister struct {
	orders []types.OrderEvent
	err    error
	calls  int
	from   time.Time
	to     time.Time
}

func (s *stubLister) ListOrders(_ context.Context, from, to time.Time) ([]types.OrderEvent, error) {
	s.calls++
	s.from, s.to = from, to
	return s.orders, s.err
}

type memoryCache struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) CacheKey(parts ...string) string {
	return "mosly:cache:" + strings.Join(parts, ":")
}

func (m *memoryCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), dest)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = string(payload)
	m.ttls[key] = ttl
	return nil
}

func order(id string, qty int) types.OrderEvent {
	return types.OrderEvent{
		ID:        id,
		Name:      "#" + id,
		CreatedAt: "2025-03-01T10:00:00Z",
		LineItems: []types.OrderLineItem{{Title: "Herbal tea", Quantity: qty}},
	}
}

func TestSummarizeAggregatesOrders(t *testing.T) {
	summary := Summarize([]types.OrderEvent{
		order("1", 1),
		order("2", 2),
		order("3", 3),
		order("4", 0),
	})

	assert.Equal(t, 4, summary.TotalOrders)
	assert.Equal(t, 6, summary.TotalQuantity)
	assert.Equal(t, "1.5", summary.AverageQuantity.String())
	require.Len(t, summary.Orders, 4)
	assert.Equal(t, OrderRow{Name: "#3", Quantity: 3, Category: enums.CategoryH18}, summary.Orders[2])
	assert.Equal(t, enums.CategoryNone, summary.Orders[3].Category)

	require.Len(t, summary.Categories, 3)
	assert.Equal(t, enums.CategoryH18, summary.Categories[0].Category)
	assert.Equal(t, 2, summary.Categories[0].Count)
	assert.Equal(t, "50", summary.Categories[0].Percent.String())
	assert.Equal(t, enums.CategoryF16, summary.Categories[1].Category)
	assert.Equal(t, enums.CategoryNone, summary.Categories[2].Category)
	assert.Equal(t, "25", summary.Categories[2].Percent.String())
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Zero(t, summary.TotalOrders)
	assert.True(t, summary.AverageQuantity.IsZero())
	assert.Empty(t, summary.Categories)
}

func TestSummarizePercentRounding(t *testing.T) {
	summary := Summarize([]types.OrderEvent{order("1", 1), order("2", 1), order("3", 4)})
	require.Len(t, summary.Categories, 2)
	assert.Equal(t, "66.7", summary.Categories[0].Percent.String())
	assert.Equal(t, "33.3", summary.Categories[1].Percent.String())
	assert.Equal(t, "2", summary.AverageQuantity.String())
}

func TestParseRange(t *testing.T) {
	from, to, err := ParseRange("2025-03-01", "2025-03-07")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 3, 7, 23, 59, 59, 0, time.UTC), to)

	cases := [][2]string{
		{"03/01/2025", "2025-03-07"},
		{"2025-03-01", "tomorrow"},
		{"2025-03-07", "2025-03-01"},
		{"2023-01-01", "2025-01-01"},
	}
	for _, tc := range cases {
		_, _, err := ParseRange(tc[0], tc[1])
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err), "%v", tc)
	}
}

func TestServiceSummaryUsesCache(t *testing.T) {
	lister := &stubLister{orders: []types.OrderEvent{order("1", 1), order("2", 5)}}
	cache := newMemoryCache()
	svc, err := NewService(lister, cache, 0, nil)
	require.NoError(t, err)

	first, err := svc.Summary(context.Background(), "2025-03-01", "2025-03-02")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", first.From)
	assert.Equal(t, "2025-03-02", first.To)
	assert.Equal(t, 2, first.TotalOrders)
	assert.Equal(t, time.Date(2025, 3, 2, 23, 59, 59, 0, time.UTC), lister.to)

	second, err := svc.Summary(context.Background(), "2025-03-01", "2025-03-02")
	require.NoError(t, err)
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, first.TotalQuantity, second.TotalQuantity)
	assert.Equal(t, defaultCacheTTL, cache.ttls["mosly:cache:orders:2025-03-01:2025-03-02"])
}

func TestServiceSummaryWrapsFetchErrors(t *testing.T) {
	svc, err := NewService(&stubLister{err: errors.New("timeout")}, nil, time.Minute, nil)
	require.NoError(t, err)

	_, err = svc.Summary(context.Background(), "2025-03-01", "2025-03-01")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}

func TestNewServiceRequiresLister(t *testing.T) {
	_, err := NewService(nil, nil, 0, nil)
	require.Error(t, err)
}
