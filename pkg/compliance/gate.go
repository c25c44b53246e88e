package compliance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Gate checks a normalized payload against the regulations that apply to the
// requesting tenant and agent. A non-empty BlockingIssues list halts the
// pipeline.
type Gate interface {
	Check(ctx context.Context, data map[string]any, tenantID, agentType string, regulations []string) (domain.ComplianceReport, error)
}

// StatusPass and StatusBlocked are the two gate verdicts.
const (
	StatusPass    = "pass"
	StatusBlocked = "blocked"
)

// piiFields are treated as personal data wherever they appear in the payload.
var piiFields = map[string]string{
	"email":         "GDPR Art. 4(1)",
	"phone":         "GDPR Art. 4(1)",
	"full_name":     "GDPR Art. 4(1)",
	"address":       "GDPR Art. 4(1)",
	"date_of_birth": "GDPR Art. 4(1)",
	"ip_address":    "GDPR Recital 30",
}

// prohibitedFields must never reach an agent core regardless of consent.
var prohibitedFields = map[string]string{
	"ssn":         "sensitive identifier",
	"password":    "credential",
	"credit_card": "payment credential",
}

// maxRetentionDays bounds the retention window a payload may declare.
const maxRetentionDays = 730

// RuleGateConfig tunes the built-in rule checks.
type RuleGateConfig struct {
	MaxRetentionDays int
}

// RuleGate evaluates the built-in regulation rule set. It is a pure function
// over the payload: no network calls, deterministic output.
type RuleGate struct {
	maxRetentionDays int
}

// NewRuleGate creates the built-in rule gate.
func NewRuleGate(cfg RuleGateConfig) *RuleGate {
	days := cfg.MaxRetentionDays
	if days <= 0 {
		days = maxRetentionDays
	}
	return &RuleGate{maxRetentionDays: days}
}

// Check runs every rule for the requested regulations and reports the
// aggregate verdict.
func (g *RuleGate) Check(ctx context.Context, data map[string]any, tenantID, agentType string, regulations []string) (domain.ComplianceReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.ComplianceReport{}, err
	}

	report := domain.ComplianceReport{
		Status:               StatusPass,
		ChecksPerformed:      []string{},
		RegulatoryReferences: []string{},
		PIIHandling:          "none_detected",
	}

	pii := collectFields(data, piiFields)
	if len(pii) > 0 {
		report.PIIHandling = "fields_detected"
	}

	for _, reg := range regulations {
		switch strings.ToUpper(strings.TrimSpace(reg)) {
		case "GDPR":
			report.ChecksPerformed = append(report.ChecksPerformed, "gdpr_consent", "gdpr_retention")
			report.RegulatoryReferences = append(report.RegulatoryReferences, "GDPR Art. 6(1)(a)")
			if len(pii) > 0 && !consentGiven(data) {
				report.BlockingIssues = append(report.BlockingIssues,
					fmt.Sprintf("GDPR: personal data (%s) present without recorded consent", strings.Join(pii, ", ")))
			}
			if days, ok := numberField(data, "retention_days"); ok && int(days) > g.maxRetentionDays {
				report.BlockingIssues = append(report.BlockingIssues,
					fmt.Sprintf("GDPR: declared retention of %d days exceeds the %d day limit", int(days), g.maxRetentionDays))
			}
		case "CCPA":
			report.ChecksPerformed = append(report.ChecksPerformed, "ccpa_opt_out")
			report.RegulatoryReferences = append(report.RegulatoryReferences, "CCPA §1798.120")
			if optedOut, ok := boolField(data, "ccpa_opt_out"); ok && optedOut {
				report.BlockingIssues = append(report.BlockingIssues,
					"CCPA: consumer has opted out of data processing")
			}
		case "PII":
			report.ChecksPerformed = append(report.ChecksPerformed, "pii_prohibited_fields")
			for _, field := range collectFields(data, prohibitedFields) {
				report.BlockingIssues = append(report.BlockingIssues,
					fmt.Sprintf("prohibited field %q (%s) must not reach the pipeline", field, prohibitedFields[field]))
			}
		}
	}

	report.ComplianceRiskScore = riskScore(len(report.BlockingIssues), len(pii))
	if len(report.BlockingIssues) > 0 {
		report.Status = StatusBlocked
	}

	return report, nil
}

func riskScore(blocking, piiCount int) float64 {
	score := float64(blocking)*25 + float64(piiCount)*5
	if score > 100 {
		score = 100
	}
	return score
}

func consentGiven(data map[string]any) bool {
	for _, key := range []string{"consent_given", "data_processing_consent"} {
		if v, ok := boolField(data, key); ok && v {
			return true
		}
	}
	return false
}

func boolField(data map[string]any, key string) (bool, bool) {
	v, ok := data[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func numberField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// collectFields finds which of the named fields occur at the top level of the
// payload or inside any list of records one level down.
func collectFields(data map[string]any, fields map[string]string) []string {
	found := map[string]struct{}{}

	scan := func(m map[string]any) {
		for key := range m {
			if _, watch := fields[strings.ToLower(key)]; watch {
				found[strings.ToLower(key)] = struct{}{}
			}
		}
	}

	scan(data)
	for _, v := range data {
		switch inner := v.(type) {
		case map[string]any:
			scan(inner)
		case []any:
			for _, item := range inner {
				if m, ok := item.(map[string]any); ok {
					scan(m)
				}
			}
		}
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
