package agents

import (
	"context"
	"fmt"
	"math"
)

// NewCreditRiskAgent returns the credit risk agent. Its core folds the
// applicant's factor values into a scalar score; the reason codes layer
// explains the score factor by factor downstream.
func NewCreditRiskAgent() Agent {
	return Agent{
		ID:             "credit_risk",
		Version:        "2.0",
		Kind:           KindRisk,
		RequiredFields: []string{"applicant"},
		Regulations:    []string{"GDPR", "CCPA", "PII"},
		Core:           scoreApplicant,
	}
}

func scoreApplicant(ctx context.Context, input map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	applicant, ok := input["applicant"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("applicant must be an object, got %T", input["applicant"])
	}

	factors := map[string]float64{}
	for _, name := range []string{"payment_history", "credit_utilization", "account_age_months", "recent_inquiries", "delinquencies"} {
		if v, ok := applicant[name]; ok {
			factors[name] = num(v)
		}
	}

	score := 50.0
	score += 40 * factors["payment_history"]
	score -= 30 * factors["credit_utilization"]
	score += math.Min(factors["account_age_months"]/240, 1) * 10
	score -= 2 * factors["recent_inquiries"]
	score -= 5 * factors["delinquencies"]
	score = math.Max(0, math.Min(100, score))

	return map[string]any{
		"score":         score,
		"factors":       factors,
		"total_records": 1.0,
	}, nil
}
