package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

const defaultEntrypoint = "compliance/decision"

// RegoOptions control construction of the OPA-backed gate.
type RegoOptions struct {
	// Entrypoint is the policy decision path (e.g. "compliance/decision").
	Entrypoint string
	// Modules contains the Rego modules loaded into the engine.
	Modules map[string]string
}

// RegoGate delegates the compliance verdict to embedded OPA modules. The
// decision document is expected to carry `allow`, `blocking_issues`,
// `checks_performed`, `regulatory_references`, and `risk_score`.
type RegoGate struct {
	prepared rego.PreparedEvalQuery
}

// NewRegoGate compiles the supplied modules and prepares the decision query.
// Compilation errors surface here rather than at request time.
func NewRegoGate(ctx context.Context, opts RegoOptions) (*RegoGate, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}

	if len(opts.Modules) == 0 {
		return nil, errors.New("rego gate requires at least one module")
	}

	regoOpts := []func(*rego.Rego){
		rego.Query("data." + strings.ReplaceAll(entry, "/", ".")),
	}

	names := make([]string, 0, len(opts.Modules))
	for name := range opts.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		module, err := ast.ParseModuleWithOpts(name, opts.Modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		regoOpts = append(regoOpts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}

	return &RegoGate{prepared: prepared}, nil
}

// Check evaluates the policy against the payload and converts the decision
// document into a compliance report.
func (g *RegoGate) Check(ctx context.Context, data map[string]any, tenantID, agentType string, regulations []string) (domain.ComplianceReport, error) {
	input := map[string]any{
		"payload":     data,
		"tenant_id":   tenantID,
		"agent_type":  agentType,
		"regulations": regulations,
	}

	results, err := g.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.ComplianceReport{}, fmt.Errorf("opa decision: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// Undefined decision: fail closed, the gate cannot vouch for the
		// request.
		return domain.ComplianceReport{
			Status:               StatusBlocked,
			ChecksPerformed:      []string{"rego_decision"},
			BlockingIssues:       []string{"compliance policy produced no decision"},
			RegulatoryReferences: []string{},
			PIIHandling:          "unknown",
			ComplianceRiskScore:  100,
		}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return domain.ComplianceReport{}, fmt.Errorf("unexpected decision document type %T", results[0].Expressions[0].Value)
	}

	report := domain.ComplianceReport{
		Status:               StatusPass,
		ChecksPerformed:      stringSlice(doc["checks_performed"]),
		BlockingIssues:       stringSlice(doc["blocking_issues"]),
		RegulatoryReferences: stringSlice(doc["regulatory_references"]),
		PIIHandling:          stringOr(doc["pii_handling"], "none_detected"),
	}
	if score, ok := doc["risk_score"].(float64); ok {
		report.ComplianceRiskScore = score
	}

	allow, _ := doc["allow"].(bool)
	if !allow || len(report.BlockingIssues) > 0 {
		report.Status = StatusBlocked
		if len(report.BlockingIssues) == 0 {
			report.BlockingIssues = []string{"compliance policy denied the request"}
		}
	}

	return report, nil
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
