package reasoncodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

func TestNewRejectsBadPartitions(t *testing.T) {
	cases := []struct {
		name    string
		buckets []Bucket
	}{
		{"gap", []Bucket{{Label: "a", Min: 0, Max: 40}, {Label: "b", Min: 50, Max: 100}}},
		{"overlap", []Bucket{{Label: "a", Min: 0, Max: 60}, {Label: "b", Min: 50, Max: 100}}},
		{"not from zero", []Bucket{{Label: "a", Min: 10, Max: 100}}},
		{"not to hundred", []Bucket{{Label: "a", Min: 0, Max: 90}}},
		{"empty", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Buckets = tc.buckets
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewRejectsOverweightRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = append(cfg.Rules, FactorRule{Name: "extra", Weight: 0.5})
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}

func TestBucketPartitionCoversRange(t *testing.T) {
	layer, err := New(DefaultConfig())
	require.NoError(t, err)

	// Every score in [0,100] lands in exactly one bucket.
	for score := 0.0; score <= 100.0; score += 0.5 {
		label := layer.bucketFor(score)
		assert.NotEmpty(t, label, "score %v has no bucket", score)
	}
	assert.Equal(t, "poor", layer.bucketFor(0))
	assert.Equal(t, "fair", layer.bucketFor(40))
	assert.Equal(t, "good", layer.bucketFor(79.99))
	assert.Equal(t, "excellent", layer.bucketFor(100))
}

func TestApplyProducesSignedCodes(t *testing.T) {
	layer, err := New(DefaultConfig())
	require.NoError(t, err)

	report, err := layer.Apply(60, map[string]float64{
		"payment_history":    0.95, // above baseline: positive
		"credit_utilization": 0.80, // above baseline, negative scale: negative
		"account_age_months": 24,   // at baseline: neutral
	})
	require.NoError(t, err)

	require.Len(t, report.ReasonCodes, 3)

	byFactor := map[string]domain.ReasonCode{}
	for _, rc := range report.ReasonCodes {
		byFactor[rc.Factor] = rc
	}

	assert.Equal(t, "PAYMENT_HISTORY_POSITIVE", byFactor["payment_history"].Code)
	assert.Greater(t, byFactor["payment_history"].Impact, 0.0)
	assert.Equal(t, "CREDIT_UTILIZATION_NEGATIVE", byFactor["credit_utilization"].Code)
	assert.Less(t, byFactor["credit_utilization"].Impact, 0.0)
	assert.Equal(t, string(domain.DirectionNeutral), byFactor["account_age_months"].Category)

	require.Len(t, report.TopNegative, 1)
	require.Len(t, report.Improvements, 1)
	assert.Contains(t, report.Improvements[0], "30%")

	// 3 of 3 required factors present.
	assert.Equal(t, 1.0, report.Confidence)
}

func TestApplyConfidenceTracksMissingFactors(t *testing.T) {
	layer, err := New(DefaultConfig())
	require.NoError(t, err)

	report, err := layer.Apply(50, map[string]float64{"payment_history": 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, report.Confidence, 1e-9)
}

func TestApplyScoreMonotonicInPositiveFactor(t *testing.T) {
	layer, err := New(DefaultConfig())
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		base := map[string]float64{
			"payment_history":    rapid.Float64Range(0, 1).Draw(t, "ph"),
			"credit_utilization": rapid.Float64Range(0, 1).Draw(t, "util"),
			"account_age_months": rapid.Float64Range(0, 240).Draw(t, "age"),
		}

		lo, err := layer.Apply(50, base)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}

		// payment_history has a positive scale: raising it must never lower
		// the aggregate score.
		bumped := map[string]float64{}
		for k, v := range base {
			bumped[k] = v
		}
		bumped["payment_history"] = base["payment_history"] + rapid.Float64Range(0, 1).Draw(t, "delta")

		hi, err := layer.Apply(50, bumped)
		if err != nil {
			t.Fatalf("apply bumped: %v", err)
		}

		if hi.Score < lo.Score {
			t.Fatalf("score decreased from %v to %v after improving a positive factor", lo.Score, hi.Score)
		}
	})
}

func TestRecommendationKeyedOffBucket(t *testing.T) {
	layer, err := New(DefaultConfig())
	require.NoError(t, err)

	strong, err := layer.Apply(85, map[string]float64{"payment_history": 0.99, "credit_utilization": 0.05, "account_age_months": 120})
	require.NoError(t, err)
	assert.Equal(t, "excellent", strong.Bucket)
	assert.Contains(t, strong.Recommendation, "approve")

	weak, err := layer.Apply(20, map[string]float64{"payment_history": 0.2, "credit_utilization": 0.95, "account_age_months": 3, "delinquencies": 4})
	require.NoError(t, err)
	assert.Equal(t, "poor", weak.Bucket)
	assert.Contains(t, weak.Recommendation, "decline")
}
