package impact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLinearEstimates(t *testing.T) {
	layer := New(Config{RevenuePerRecord: 10, CostPerRecord: 2, Currency: "EUR"})

	bi, err := layer.Apply(map[string]any{"total_records": 50.0})
	require.NoError(t, err)

	assert.Equal(t, 500.0, bi.RevenueUpliftEstimate)
	assert.Equal(t, 100.0, bi.CostSavingEstimate)
	assert.Equal(t, "EUR", bi.Currency)
}

func TestApplyScoreClamped(t *testing.T) {
	layer := New(DefaultConfig())

	huge, err := layer.Apply(map[string]any{
		"total_records": 1e9,
		"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6, "g": 7, "h": 8, "i": 9, "j": 10, "k": 11,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, huge.BusinessImpactScore, 100.0)

	empty, err := layer.Apply(map[string]any{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, empty.BusinessImpactScore, 0.0)
	assert.Equal(t, 0.0, empty.RevenueUpliftEstimate)
}

func TestApplyScoreMonotonicInVolume(t *testing.T) {
	layer := New(DefaultConfig())

	small, err := layer.Apply(map[string]any{"total_records": 10.0})
	require.NoError(t, err)
	large, err := layer.Apply(map[string]any{"total_records": 500.0})
	require.NoError(t, err)

	assert.Greater(t, large.BusinessImpactScore, small.BusinessImpactScore)
}
