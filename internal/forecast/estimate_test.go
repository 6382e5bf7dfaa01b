package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/types"
)

func needs(estimate *Estimate) map[enums.Category]int64 {
	out := map[enums.Category]int64{}
	for _, entry := range estimate.Envelopes {
		out[entry.Category] = entry.Need
	}
	return out
}

func TestProjectSplitsByHistoricalShare(t *testing.T) {
	summary := Summarize([]types.OrderEvent{order("1", 1), order("2", 2), order("3", 3), order("4", 0)})

	estimate, err := Project(summary, 30)
	require.NoError(t, err)
	assert.Equal(t, "20", estimate.EstimatedOrders.String())
	assert.Equal(t, "1.5", estimate.AverageQuantity.String())
	require.Len(t, estimate.Envelopes, 4)
	assert.Equal(t, enums.CategoryF16, estimate.Envelopes[0].Category)
	assert.Equal(t, map[enums.Category]int64{
		enums.CategoryF16: 7,
		enums.CategoryH18: 13,
		enums.CategoryI19: 0,
		enums.CategoryK20: 0,
	}, needs(estimate))
}

func TestProjectRoundsHalfToEven(t *testing.T) {
	summary := Summarize([]types.OrderEvent{order("1", 1), order("2", 5)})

	estimate, err := Project(summary, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(2), needs(estimate)[enums.CategoryF16])
	assert.Equal(t, int64(2), needs(estimate)[enums.CategoryK20])

	estimate, err = Project(summary, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(2), needs(estimate)[enums.CategoryF16])
}

func TestProjectWithoutEnvelopeHistory(t *testing.T) {
	summary := Summarize([]types.OrderEvent{order("1", 9)})

	estimate, err := Project(summary, 10)
	require.NoError(t, err)
	for _, entry := range estimate.Envelopes {
		assert.Zero(t, entry.Need)
	}
}

func TestProjectRejectsInvalidInput(t *testing.T) {
	summary := Summarize([]types.OrderEvent{order("1", 2)})

	_, err := Project(summary, 0)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = Project(Summarize([]types.OrderEvent{order("1", 0)}), 10)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	_, err = Project(nil, 10)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}
