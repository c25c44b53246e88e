package authority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

func TestApplyThresholdScenario(t *testing.T) {
	layer := New(Config{MinImprovement: 0.05, MinConfidence: 0.70, MaxRecommendations: 5, EffortWeight: 0.1})

	report, err := layer.Apply([]any{
		map[string]any{"action": "A", "expected_improvement": 0.03, "confidence": 0.9},
		map[string]any{"action": "B", "expected_improvement": 0.08, "confidence": 0.95},
	})
	require.NoError(t, err)

	require.Len(t, report.ApprovedRecommendations, 1)
	assert.Equal(t, "B", report.ApprovedRecommendations[0].Action)
	assert.InDelta(t, 0.08*0.95, report.ApprovedRecommendations[0].AuthorityScore, 1e-9)

	require.Len(t, report.Rejections, 1)
	assert.Equal(t, "A", report.Rejections[0].Action)
	assert.Equal(t, domain.RejectBelowImprovement, report.Rejections[0].Reason)

	assert.Equal(t, domain.AuthorityExecute, report.Decision)
	assert.Contains(t, report.Rationale, `"B"`)
}

func TestApplyRejectionReasons(t *testing.T) {
	layer := New(DefaultConfig())

	report, err := layer.Apply([]any{
		map[string]any{"expected_improvement": 0.5, "confidence": 0.9},           // no action
		map[string]any{"action": "C", "confidence": 0.9},                          // no improvement
		map[string]any{"action": "D", "expected_improvement": 0.5, "confidence": 0.1}, // low confidence
		"not-an-object",
	})
	require.NoError(t, err)

	assert.Empty(t, report.ApprovedRecommendations)
	require.Len(t, report.Rejections, 4)
	assert.Equal(t, domain.RejectMissingFields, report.Rejections[0].Reason)
	assert.Equal(t, domain.RejectMissingFields, report.Rejections[1].Reason)
	assert.Equal(t, domain.RejectBelowConfidence, report.Rejections[2].Reason)
	assert.Equal(t, domain.RejectMissingFields, report.Rejections[3].Reason)

	assert.Equal(t, domain.AuthorityHold, report.Decision)
	assert.NotEmpty(t, report.Rationale)
}

func TestApplyEffortPenaltyAffectsRanking(t *testing.T) {
	layer := New(Config{MinImprovement: 0.01, MinConfidence: 0.5, MaxRecommendations: 5, EffortWeight: 0.5})

	report, err := layer.Apply([]any{
		map[string]any{"action": "cheap", "expected_improvement": 0.10, "confidence": 0.9, "effort": 0.0},
		map[string]any{"action": "expensive", "expected_improvement": 0.12, "confidence": 0.9, "effort": 0.2},
	})
	require.NoError(t, err)

	require.Len(t, report.ApprovedRecommendations, 2)
	assert.Equal(t, "cheap", report.ApprovedRecommendations[0].Action)
}

func TestApplyInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		minImp := rapid.Float64Range(0, 0.5).Draw(t, "min_improvement")
		minConf := rapid.Float64Range(0, 1).Draw(t, "min_confidence")
		maxRecs := rapid.IntRange(1, 10).Draw(t, "max_recommendations")

		layer := New(Config{
			MinImprovement:     minImp,
			MinConfidence:      minConf,
			MaxRecommendations: maxRecs,
			EffortWeight:       rapid.Float64Range(0, 1).Draw(t, "effort_weight"),
		})

		n := rapid.IntRange(0, 30).Draw(t, "n")
		candidates := make([]any, n)
		for i := range candidates {
			candidates[i] = map[string]any{
				"action":               rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "action"),
				"expected_improvement": rapid.Float64Range(0, 1).Draw(t, "improvement"),
				"confidence":           rapid.Float64Range(0, 1).Draw(t, "confidence"),
				"effort":               rapid.Float64Range(0, 1).Draw(t, "effort"),
			}
		}

		report, err := layer.Apply(candidates)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}

		if len(report.ApprovedRecommendations) > maxRecs {
			t.Fatalf("approved %d exceeds max %d", len(report.ApprovedRecommendations), maxRecs)
		}
		for _, rec := range report.ApprovedRecommendations {
			if rec.ExpectedImprovement < minImp {
				t.Fatalf("approved %q below improvement threshold", rec.Action)
			}
			if rec.Confidence < minConf {
				t.Fatalf("approved %q below confidence threshold", rec.Action)
			}
		}
		for i := 1; i < len(report.ApprovedRecommendations); i++ {
			if report.ApprovedRecommendations[i-1].AuthorityScore < report.ApprovedRecommendations[i].AuthorityScore {
				t.Fatal("approved list not sorted by authority score")
			}
		}

		// Every candidate is accounted for: approved + rejected + truncated.
		kept := len(report.ApprovedRecommendations) + len(report.Rejections)
		if kept > n {
			t.Fatalf("more outcomes (%d) than candidates (%d)", kept, n)
		}
	})
}
