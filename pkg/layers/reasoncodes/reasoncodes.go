// Package reasoncodes produces transparent, factor-level score explanations
// for risk and eligibility agents. The layer is entirely rule driven: a fixed
// rule table maps each recognized factor to a signed impact, a direction, and
// a human explanation. No statistical estimation happens here.
package reasoncodes

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// FactorRule describes how one recognized factor contributes to the score.
// Impact is linear: (value − Baseline) × Scale, clamped to ±MaxAbs. The sign
// of Scale encodes whether higher values help or hurt.
type FactorRule struct {
	Name       string
	Weight     float64
	Required   bool
	Baseline   float64
	Scale      float64
	MaxAbs     float64
	Label      string
	Suggestion string
}

// Bucket is one segment of the score partition.
type Bucket struct {
	Label string  `yaml:"label"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// Config holds the rule table and the bucket partition.
type Config struct {
	Rules   []FactorRule
	Buckets []Bucket
	// TopN bounds the positive/negative contributor lists.
	TopN int
}

// DefaultConfig returns the credit-risk rule table. Weights sum to 1.0.
func DefaultConfig() Config {
	return Config{
		TopN: 3,
		Rules: []FactorRule{
			{Name: "payment_history", Weight: 0.35, Required: true, Baseline: 0.7, Scale: 100, MaxAbs: 30,
				Label: "on-time payment rate", Suggestion: "bring recent accounts current and keep them current for six months"},
			{Name: "credit_utilization", Weight: 0.30, Required: true, Baseline: 0.3, Scale: -100, MaxAbs: 30,
				Label: "revolving utilization", Suggestion: "pay balances down below 30% of available credit"},
			{Name: "account_age_months", Weight: 0.15, Required: true, Baseline: 24, Scale: 0.25, MaxAbs: 15,
				Label: "average account age", Suggestion: "keep the oldest accounts open"},
			{Name: "recent_inquiries", Weight: 0.10, Required: false, Baseline: 2, Scale: -5, MaxAbs: 15,
				Label: "hard inquiries in the last year", Suggestion: "avoid new credit applications for six months"},
			{Name: "delinquencies", Weight: 0.10, Required: false, Baseline: 0, Scale: -10, MaxAbs: 20,
				Label: "delinquent accounts", Suggestion: "resolve outstanding delinquencies"},
		},
		Buckets: []Bucket{
			{Label: "poor", Min: 0, Max: 40},
			{Label: "fair", Min: 40, Max: 60},
			{Label: "good", Min: 60, Max: 80},
			{Label: "excellent", Min: 80, Max: 100},
		},
	}
}

// Report is the layer's aggregate output.
type Report struct {
	Score          float64             `json:"score"`
	Bucket         string              `json:"bucket"`
	ReasonCodes    []domain.ReasonCode `json:"reason_codes"`
	TopPositive    []domain.ReasonCode `json:"top_positive"`
	TopNegative    []domain.ReasonCode `json:"top_negative"`
	Recommendation string              `json:"recommendation"`
	Improvements   []string            `json:"improvements"`
	Confidence     float64             `json:"confidence"`
}

// Layer evaluates the rule table.
type Layer struct {
	cfg Config
}

// New validates the configuration and creates the layer. Weights across the
// recognized factor set must sum to at most 1, and the buckets must form an
// exhaustive, contiguous partition of [0,100].
func New(cfg Config) (*Layer, error) {
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("reason codes: rule table is empty")
	}

	var weightSum float64
	for _, r := range cfg.Rules {
		if r.Weight < 0 {
			return nil, fmt.Errorf("reason codes: factor %q has negative weight", r.Name)
		}
		weightSum += r.Weight
	}
	if weightSum > 1+1e-9 {
		return nil, fmt.Errorf("reason codes: factor weights sum to %.4f, must be ≤ 1", weightSum)
	}

	if err := validateBuckets(cfg.Buckets); err != nil {
		return nil, err
	}

	return &Layer{cfg: cfg}, nil
}

func validateBuckets(buckets []Bucket) error {
	if len(buckets) == 0 {
		return fmt.Errorf("reason codes: bucket partition is empty")
	}
	if buckets[0].Min != 0 {
		return fmt.Errorf("reason codes: partition must start at 0, starts at %v", buckets[0].Min)
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Min != buckets[i-1].Max {
			return fmt.Errorf("reason codes: gap or overlap between %q and %q",
				buckets[i-1].Label, buckets[i].Label)
		}
	}
	if buckets[len(buckets)-1].Max != 100 {
		return fmt.Errorf("reason codes: partition must end at 100, ends at %v", buckets[len(buckets)-1].Max)
	}
	return nil
}

// Apply evaluates every recognized factor present in factors against the
// rule table and aggregates the result. baseScore seeds the aggregate; pass
// the agent's scalar score, or a negative value to use the neutral midpoint.
func (l *Layer) Apply(baseScore float64, factors map[string]float64) (*Report, error) {
	base := baseScore
	if base < 0 {
		base = 50
	}

	report := &Report{
		ReasonCodes:  []domain.ReasonCode{},
		TopPositive:  []domain.ReasonCode{},
		TopNegative:  []domain.ReasonCode{},
		Improvements: []string{},
	}

	score := base
	var requiredPresent, requiredTotal int
	suggestions := map[string]string{}

	for _, rule := range l.cfg.Rules {
		if rule.Required {
			requiredTotal++
		}
		value, ok := factors[rule.Name]
		if !ok {
			continue
		}
		if rule.Required {
			requiredPresent++
		}

		impact := clamp((value-rule.Baseline)*rule.Scale, -rule.MaxAbs, rule.MaxAbs)
		direction := directionOf(impact)
		contribution := rule.Weight * impact
		score += contribution

		report.ReasonCodes = append(report.ReasonCodes, domain.ReasonCode{
			Code:         codeFor(rule.Name, direction),
			Category:     string(direction),
			Description:  explain(rule, value, direction),
			Factor:       rule.Name,
			Value:        value,
			Contribution: contribution,
			Impact:       impact,
		})
		suggestions[rule.Name] = rule.Suggestion
	}

	report.Score = clamp(score, 0, 100)
	report.Bucket = l.bucketFor(report.Score)
	report.TopPositive = topByAbsImpact(report.ReasonCodes, domain.DirectionPositive, l.cfg.TopN)
	report.TopNegative = topByAbsImpact(report.ReasonCodes, domain.DirectionNegative, l.cfg.TopN)

	for _, rc := range report.TopNegative {
		if s := suggestions[rc.Factor]; s != "" {
			report.Improvements = append(report.Improvements, s)
		}
	}

	report.Recommendation = recommend(report.Bucket, len(report.TopNegative))
	if requiredTotal > 0 {
		report.Confidence = float64(requiredPresent) / float64(requiredTotal)
	}

	return report, nil
}

func (l *Layer) bucketFor(score float64) string {
	last := len(l.cfg.Buckets) - 1
	for i, b := range l.cfg.Buckets {
		if score >= b.Min && (score < b.Max || (i == last && score <= b.Max)) {
			return b.Label
		}
	}
	// Unreachable once validateBuckets has passed.
	return l.cfg.Buckets[last].Label
}

func directionOf(impact float64) domain.Direction {
	switch {
	case impact > 1e-9:
		return domain.DirectionPositive
	case impact < -1e-9:
		return domain.DirectionNegative
	}
	return domain.DirectionNeutral
}

func codeFor(factor string, direction domain.Direction) string {
	return strings.ToUpper(factor) + "_" + strings.ToUpper(string(direction))
}

func explain(rule FactorRule, value float64, direction domain.Direction) string {
	switch direction {
	case domain.DirectionPositive:
		return fmt.Sprintf("%s of %.2f is above the %.2f baseline and raises the score", rule.Label, value, rule.Baseline)
	case domain.DirectionNegative:
		return fmt.Sprintf("%s of %.2f is worse than the %.2f baseline and lowers the score", rule.Label, value, rule.Baseline)
	}
	return fmt.Sprintf("%s of %.2f matches the %.2f baseline", rule.Label, value, rule.Baseline)
}

func topByAbsImpact(codes []domain.ReasonCode, direction domain.Direction, n int) []domain.ReasonCode {
	filtered := make([]domain.ReasonCode, 0, len(codes))
	for _, rc := range codes {
		if rc.Category == string(direction) {
			filtered = append(filtered, rc)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return math.Abs(filtered[i].Impact) > math.Abs(filtered[j].Impact)
	})
	if len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered
}

func recommend(bucket string, negatives int) string {
	switch {
	case bucket == "excellent":
		return "approve: profile is strong across all evaluated factors"
	case bucket == "good" && negatives == 0:
		return "approve: no negative factors identified"
	case bucket == "good":
		return "approve with monitoring: address the listed negative factors"
	case bucket == "fair":
		return "manual review: mixed factor profile"
	}
	return "decline or escalate: profile falls in the lowest band"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
