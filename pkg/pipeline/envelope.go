package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// envelopeBuilder accumulates per-request state and produces exactly one of
// the four canonical envelope shapes. Every shape carries the same identity
// block, a non-nil decision trace, and non-nil reason codes so consumers
// never branch on missing keys.
type envelopeBuilder struct {
	agent        string
	tenantID     string
	analysisID   string
	started      time.Time
	trace        []string
	fallbackUsed bool
	now          func() time.Time
}

func newEnvelopeBuilder(agent, tenantID string, now func() time.Time) *envelopeBuilder {
	return &envelopeBuilder{
		agent:      agent,
		tenantID:   tenantID,
		analysisID: uuid.NewString(),
		started:    now(),
		trace:      []string{},
		now:        now,
	}
}

func (b *envelopeBuilder) mark(stage string) {
	b.trace = append(b.trace, stage)
}

func (b *envelopeBuilder) base(status domain.Status) *domain.Envelope {
	elapsed := b.now().Sub(b.started)
	latency := float64(elapsed) / float64(time.Millisecond)
	if latency < 0 {
		latency = 0
	}

	trace := make([]string, len(b.trace))
	copy(trace, b.trace)

	return &domain.Envelope{
		Version:       domain.EnvelopeVersion,
		Status:        status,
		Agent:         b.agent,
		AnalysisID:    b.analysisID,
		TenantID:      b.tenantID,
		Timestamp:     b.now().UTC().Format(time.RFC3339),
		LatencyMS:     latency,
		DecisionTrace: trace,
		ReasonCodes:   []domain.ReasonCode{},
	}
}

func (b *envelopeBuilder) success(result map[string]any, quality domain.DataQuality) *domain.Envelope {
	env := b.base(domain.StatusSuccess)
	env.Result = result
	env.DataQuality = quality
	env.ComplianceStatus = complianceStatusSkipped
	return env
}

func (b *envelopeBuilder) validationError(missing []string, quality domain.DataQuality) *domain.Envelope {
	env := b.base(domain.StatusValidationError)
	env.ValidationErrors = missing
	env.DataQuality = quality
	env.ComplianceStatus = complianceStatusNotEvaluated
	return env
}

func (b *envelopeBuilder) complianceBlocked(report domain.ComplianceReport, quality domain.DataQuality) *domain.Envelope {
	env := b.base(domain.StatusComplianceBlocked)
	env.BlockingIssues = report.BlockingIssues
	if len(env.BlockingIssues) == 0 {
		env.BlockingIssues = []string{"compliance gate blocked the request"}
	}
	env.Compliance = &report
	env.ComplianceStatus = complianceStatusBlocked
	env.DataQuality = quality
	env.ReasonCodes = blockedReasonCodes(report)
	return env
}

func (b *envelopeBuilder) errorEnvelope(errType, message string, recoverable bool, quality domain.DataQuality) *domain.Envelope {
	env := b.base(domain.StatusError)
	env.Error = &domain.ErrorDetail{
		Type:         errType,
		Message:      message,
		Recoverable:  recoverable,
		FallbackUsed: b.fallbackUsed,
	}
	env.ComplianceStatus = complianceStatusNotEvaluated
	env.DataQuality = quality
	return env
}

const (
	complianceStatusPass         = "pass"
	complianceStatusSkipped      = "skipped"
	complianceStatusBlocked      = "blocked"
	complianceStatusNotEvaluated = "not_evaluated"
)

// blockedReasonCodes synthesizes the fixed BLOCKED and PRIVACY codes carried
// on every compliance_blocked envelope. Factor fields stay zero: these codes
// explain a gate verdict, not a scored factor.
func blockedReasonCodes(report domain.ComplianceReport) []domain.ReasonCode {
	desc := "request blocked by compliance gate"
	if len(report.BlockingIssues) > 0 {
		desc = report.BlockingIssues[0]
	}
	return []domain.ReasonCode{
		{Code: "BLOCKED", Category: "compliance", Description: desc},
		{Code: "PRIVACY", Category: "compliance", Description: "personal data handling prevented execution"},
	}
}

// assessQuality derives the data-quality block from how much of the agent's
// required surface the payload actually covered.
func assessQuality(payload map[string]any, required []string, missing []string) domain.DataQuality {
	completeness := 1.0
	if len(required) > 0 {
		present := len(required) - len(missing)
		if present < 0 {
			present = 0
		}
		completeness = float64(present) / float64(len(required))
	}

	issues := make([]string, len(missing))
	copy(issues, missing)

	score := completeness * 70
	if len(issues) == 0 {
		score += 30
	}
	confidence := completeness
	if len(payload) == 0 {
		confidence = 0
	}

	return domain.DataQuality{
		QualityScore:          score,
		CompletenessPct:       completeness * 100,
		Confidence:            confidence,
		Issues:                issues,
		SufficientForAnalysis: len(missing) == 0,
	}
}
