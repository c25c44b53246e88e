// Package authority filters and ranks candidate recommendations for
// orchestrator-style agents. Candidates that survive the thresholds are
// scored, sorted, and truncated; everything else lands in an explicit
// rejection log with a typed reason.
package authority

import (
	"fmt"
	"sort"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Config holds the filtering thresholds.
type Config struct {
	MinImprovement     float64
	MinConfidence      float64
	MaxRecommendations int
	// EffortWeight scales the effort penalty subtracted from the authority
	// score.
	EffortWeight float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinImprovement:     0.05,
		MinConfidence:      0.70,
		MaxRecommendations: 5,
		EffortWeight:       0.1,
	}
}

// Layer applies the authority filter.
type Layer struct {
	cfg Config
}

// New creates an authority layer.
func New(cfg Config) *Layer {
	if cfg.MaxRecommendations <= 0 {
		cfg.MaxRecommendations = 5
	}
	if cfg.EffortWeight < 0 {
		cfg.EffortWeight = 0
	}
	return &Layer{cfg: cfg}
}

// Apply validates, scores, ranks, and truncates the candidate list. The
// input is a raw slice as decoded from the agent result; structurally
// invalid entries are rejected, never dropped silently.
func (l *Layer) Apply(candidates []any) (*domain.AuthorityReport, error) {
	report := &domain.AuthorityReport{
		ApprovedRecommendations: []domain.Recommendation{},
		Rejections:              []domain.Rejection{},
	}

	for _, raw := range candidates {
		rec, rejection := l.evaluate(raw)
		if rejection != nil {
			report.Rejections = append(report.Rejections, *rejection)
			continue
		}
		report.ApprovedRecommendations = append(report.ApprovedRecommendations, rec)
	}

	// Rank by authority score, highest first; ties break on action name so
	// the ordering is deterministic.
	sort.SliceStable(report.ApprovedRecommendations, func(i, j int) bool {
		a, b := report.ApprovedRecommendations[i], report.ApprovedRecommendations[j]
		if a.AuthorityScore != b.AuthorityScore {
			return a.AuthorityScore > b.AuthorityScore
		}
		return a.Action < b.Action
	})

	if len(report.ApprovedRecommendations) > l.cfg.MaxRecommendations {
		report.ApprovedRecommendations = report.ApprovedRecommendations[:l.cfg.MaxRecommendations]
	}

	if len(report.ApprovedRecommendations) > 0 {
		top := report.ApprovedRecommendations[0]
		report.Decision = domain.AuthorityExecute
		report.Rationale = fmt.Sprintf("%q leads with authority score %.4f", top.Action, top.AuthorityScore)
	} else {
		report.Decision = domain.AuthorityHold
		report.Rationale = fmt.Sprintf("no candidate met improvement ≥ %.2f and confidence ≥ %.2f",
			l.cfg.MinImprovement, l.cfg.MinConfidence)
	}

	return report, nil
}

func (l *Layer) evaluate(raw any) (domain.Recommendation, *domain.Rejection) {
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.Recommendation{}, &domain.Rejection{
			Action: fmt.Sprintf("%v", raw),
			Reason: domain.RejectMissingFields,
			Detail: "candidate is not an object",
		}
	}

	action, _ := m["action"].(string)
	improvement, impOK := number(m["expected_improvement"])
	confidence, confOK := number(m["confidence"])

	if action == "" || !impOK || !confOK {
		return domain.Recommendation{}, &domain.Rejection{
			Action: action,
			Reason: domain.RejectMissingFields,
			Detail: "requires action, expected_improvement, and confidence",
		}
	}

	if improvement < l.cfg.MinImprovement {
		return domain.Recommendation{}, &domain.Rejection{
			Action: action,
			Reason: domain.RejectBelowImprovement,
			Detail: fmt.Sprintf("expected_improvement %.4f below threshold %.4f", improvement, l.cfg.MinImprovement),
		}
	}
	if confidence < l.cfg.MinConfidence {
		return domain.Recommendation{}, &domain.Rejection{
			Action: action,
			Reason: domain.RejectBelowConfidence,
			Detail: fmt.Sprintf("confidence %.4f below threshold %.4f", confidence, l.cfg.MinConfidence),
		}
	}

	effort, _ := number(m["effort"])
	return domain.Recommendation{
		Action:              action,
		ExpectedImprovement: improvement,
		Confidence:          confidence,
		Effort:              effort,
		AuthorityScore:      improvement*confidence - l.cfg.EffortWeight*effort,
	}, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
