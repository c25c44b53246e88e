// Package decision turns analytic agent output into an actionable decision:
// what to do, how urgently, with what confidence, and by when.
package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Config holds the synthesis thresholds. All values are configuration, not
// business constants.
type Config struct {
	MediumRiskFraction float64
	HighRiskFraction   float64
	ConfidenceCap      float64
	DeadlineHigh       time.Duration
	DeadlineMedium     time.Duration
	DeadlineLow        time.Duration
}

// DefaultConfig returns thresholds satisfying the documented scenarios.
func DefaultConfig() Config {
	return Config{
		MediumRiskFraction: 0.10,
		HighRiskFraction:   0.20,
		ConfidenceCap:      0.95,
		DeadlineHigh:       24 * time.Hour,
		DeadlineMedium:     72 * time.Hour,
		DeadlineLow:        168 * time.Hour,
	}
}

// Layer synthesizes decisions from domain metrics in the agent result.
type Layer struct {
	cfg Config
	now func() time.Time
}

// New creates a decision layer.
func New(cfg Config) *Layer {
	if cfg.ConfidenceCap <= 0 || cfg.ConfidenceCap > 1 {
		cfg.ConfidenceCap = 0.95
	}
	if cfg.HighRiskFraction < cfg.MediumRiskFraction {
		cfg.HighRiskFraction = cfg.MediumRiskFraction
	}
	if cfg.DeadlineHigh <= 0 {
		cfg.DeadlineHigh = 24 * time.Hour
	}
	if cfg.DeadlineMedium <= 0 {
		cfg.DeadlineMedium = 72 * time.Hour
	}
	if cfg.DeadlineLow <= 0 {
		cfg.DeadlineLow = 168 * time.Hour
	}
	return &Layer{cfg: cfg, now: time.Now}
}

// Apply synthesizes a decision from the result's domain metrics. It never
// mutates the result. Applying the layer to an already decorated result
// (one carrying a "decision" key) returns the existing decision untouched,
// so re-application neither changes nor duplicates the decision.
func (l *Layer) Apply(result map[string]any, agentType string) (*domain.Decision, error) {
	if existing, ok := result["decision"].(*domain.Decision); ok {
		return existing, nil
	}

	total := metric(result, "total_records")
	atRisk := metric(result, "at_risk_count")

	fraction := 0.0
	if total > 0 {
		fraction = atRisk / total
	}

	action := domain.ActionReviewRequired
	priority := domain.PriorityLow
	switch {
	case fraction >= l.cfg.HighRiskFraction:
		action = domain.ActionExecuteNow
		priority = domain.PriorityHigh
	case fraction >= l.cfg.MediumRiskFraction:
		action = domain.ActionExecuteNow
		priority = domain.PriorityMedium
	}

	deadline := l.now().UTC().Add(l.deadlineFor(priority))

	return &domain.Decision{
		Action:         action,
		Priority:       priority,
		Confidence:     l.confidence(total, result),
		ExpectedImpact: expectedImpact(agentType, atRisk, fraction),
		Deadline:       deadline.Format(time.RFC3339),
		NextSteps:      nextSteps(action, priority),
		RiskIfIgnored:  riskIfIgnored(atRisk, fraction),
	}, nil
}

func (l *Layer) deadlineFor(p domain.Priority) time.Duration {
	switch p {
	case domain.PriorityHigh:
		return l.cfg.DeadlineHigh
	case domain.PriorityMedium:
		return l.cfg.DeadlineMedium
	}
	return l.cfg.DeadlineLow
}

// confidence is monotonic in record volume and in result richness, clamped
// to the configured cap.
func (l *Layer) confidence(total float64, result map[string]any) float64 {
	volume := math.Min(total, 100) / 100 // saturates at 100 records
	richness := math.Min(float64(len(result)), 10) / 10

	c := 0.5 + 0.3*volume + 0.15*richness
	return math.Min(c, l.cfg.ConfidenceCap)
}

func expectedImpact(agentType string, atRisk, fraction float64) string {
	if atRisk > 0 {
		return fmt.Sprintf("%s: addressing %d at-risk records (%.0f%% of volume) before churn materializes",
			agentType, int(atRisk), fraction*100)
	}
	return fmt.Sprintf("%s: maintain current trajectory, no at-risk records detected", agentType)
}

func nextSteps(action domain.Action, priority domain.Priority) []string {
	if action == domain.ActionExecuteNow {
		steps := []string{"trigger the approved intervention for flagged records"}
		if priority == domain.PriorityHigh {
			steps = append(steps, "notify the account owner before the deadline")
		}
		return steps
	}
	return []string{"queue result for analyst review", "re-run after the next data refresh"}
}

func riskIfIgnored(atRisk, fraction float64) string {
	if atRisk == 0 {
		return "none identified"
	}
	return fmt.Sprintf("%d records (%.0f%% of volume) likely to churn without intervention", int(atRisk), fraction*100)
}

func metric(result map[string]any, key string) float64 {
	switch v := result[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
