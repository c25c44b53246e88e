package agents

import (
	"context"
	"fmt"
)

// Segmentation thresholds. Records are classified high_value first, so a
// valuable but quiet customer is not also flagged at risk.
const (
	highValueLTV      = 1000.0
	highValueRecency  = 30.0
	atRiskRecencyDays = 90.0
)

// NewSegmentationAgent returns the customer segmentation agent. Its core
// buckets each user record into high_value, at_risk, or standard, and
// surfaces the aggregate counts the decision layer reads.
func NewSegmentationAgent() Agent {
	return Agent{
		ID:             "customer_segmentation",
		Version:        "2.0",
		Kind:           KindOrchestrator,
		RequiredFields: []string{"users"},
		Regulations:    []string{"GDPR", "PII"},
		Core:           segmentUsers,
	}
}

func segmentUsers(ctx context.Context, input map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users, ok := input["users"].([]any)
	if !ok {
		return nil, fmt.Errorf("users must be a list, got %T", input["users"])
	}

	segments := map[string][]any{
		"high_value": {},
		"at_risk":    {},
		"standard":   {},
	}

	for i, raw := range users {
		user, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("users[%d] must be an object, got %T", i, raw)
		}
		segments[classify(user)] = append(segments[classify(user)], user)
	}

	total := float64(len(users))
	atRisk := float64(len(segments["at_risk"]))

	result := map[string]any{
		"total_records":    total,
		"at_risk_count":    atRisk,
		"high_value_count": float64(len(segments["high_value"])),
		"standard_count":   float64(len(segments["standard"])),
		"segments":         segments,
	}

	// Candidate recommendations supplied by an upstream orchestrator pass
	// through untouched; otherwise synthesize one when churn risk exists.
	if recs, ok := input["recommendations"].([]any); ok {
		result["recommendations"] = recs
	} else if atRisk > 0 {
		fraction := atRisk / total
		result["recommendations"] = []any{
			map[string]any{
				"action":               "launch_winback_campaign",
				"expected_improvement": 0.04 + 0.08*fraction,
				"confidence":           0.75,
				"effort":               0.2,
			},
		}
	}

	return result, nil
}

func classify(user map[string]any) string {
	ltv := num(user["ltv"])
	recency := num(user["recency_days"])
	trend, _ := user["engagement_trend"].(string)

	switch {
	case ltv >= highValueLTV && recency <= highValueRecency:
		return "high_value"
	case recency > atRiskRecencyDays || trend == "decreasing":
		return "at_risk"
	}
	return "standard"
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
