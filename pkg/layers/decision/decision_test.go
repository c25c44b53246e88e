package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

func TestApplyHighRiskScenario(t *testing.T) {
	// 50% at risk exceeds both the 10% and 20% thresholds.
	layer := New(DefaultConfig())
	result := map[string]any{
		"total_records": 2.0,
		"at_risk_count": 1.0,
	}

	d, err := layer.Apply(result, "customer_segmentation")
	require.NoError(t, err)

	assert.Equal(t, domain.ActionExecuteNow, d.Action)
	assert.Equal(t, domain.PriorityHigh, d.Priority)
	assert.NotEmpty(t, d.Deadline)
	assert.NotEmpty(t, d.NextSteps)
}

func TestApplyPriorityBands(t *testing.T) {
	layer := New(DefaultConfig())

	cases := []struct {
		name     string
		atRisk   float64
		total    float64
		action   domain.Action
		priority domain.Priority
	}{
		{"no risk", 0, 100, domain.ActionReviewRequired, domain.PriorityLow},
		{"below medium", 5, 100, domain.ActionReviewRequired, domain.PriorityLow},
		{"medium band", 15, 100, domain.ActionExecuteNow, domain.PriorityMedium},
		{"high band", 30, 100, domain.ActionExecuteNow, domain.PriorityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := layer.Apply(map[string]any{
				"total_records": tc.total,
				"at_risk_count": tc.atRisk,
			}, "customer_segmentation")
			require.NoError(t, err)
			assert.Equal(t, tc.action, d.Action)
			assert.Equal(t, tc.priority, d.Priority)
		})
	}
}

func TestApplyIdempotent(t *testing.T) {
	layer := New(DefaultConfig())
	result := map[string]any{"total_records": 10.0, "at_risk_count": 5.0}

	first, err := layer.Apply(result, "customer_segmentation")
	require.NoError(t, err)

	// Decorate the result and re-apply: the existing decision must come back
	// unchanged even if the clock moved.
	result["decision"] = first
	layer.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	second, err := layer.Apply(result, "customer_segmentation")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestConfidenceMonotonicAndClamped(t *testing.T) {
	layer := New(DefaultConfig())

	small, err := layer.Apply(map[string]any{"total_records": 2.0, "at_risk_count": 0.0}, "a")
	require.NoError(t, err)
	large, err := layer.Apply(map[string]any{"total_records": 90.0, "at_risk_count": 0.0}, "a")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, large.Confidence, small.Confidence)

	huge, err := layer.Apply(map[string]any{
		"total_records": 1e9, "at_risk_count": 0.0,
		"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6, "g": 7, "h": 8, "i": 9,
	}, "a")
	require.NoError(t, err)
	assert.LessOrEqual(t, huge.Confidence, DefaultConfig().ConfidenceCap)
}

func TestDeadlineKeyedByPriority(t *testing.T) {
	cfg := DefaultConfig()
	layer := New(cfg)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	layer.now = func() time.Time { return base }

	d, err := layer.Apply(map[string]any{"total_records": 100.0, "at_risk_count": 30.0}, "a")
	require.NoError(t, err)
	assert.Equal(t, base.Add(cfg.DeadlineHigh).Format(time.RFC3339), d.Deadline)

	d, err = layer.Apply(map[string]any{"total_records": 100.0, "at_risk_count": 0.0}, "a")
	require.NoError(t, err)
	assert.Equal(t, base.Add(cfg.DeadlineLow).Format(time.RFC3339), d.Deadline)
}
