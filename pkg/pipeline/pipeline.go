// Package pipeline executes one agent request end to end: circuit breaker
// gate, normalization, validation, compliance gate, agent core, then the
// enrichment layers, finishing with a schema-validated response envelope.
//
// The compliance gate fails closed. Every other enrichment layer fails open:
// a layer error or budget overrun downgrades the response instead of
// aborting it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arbiterai/arbiter-oss/internal/governance"
	"github.com/arbiterai/arbiter-oss/pkg/agents"
	"github.com/arbiterai/arbiter-oss/pkg/compliance"
	"github.com/arbiterai/arbiter-oss/pkg/config"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/layers/audit"
	"github.com/arbiterai/arbiter-oss/pkg/layers/authority"
	"github.com/arbiterai/arbiter-oss/pkg/layers/decision"
	"github.com/arbiterai/arbiter-oss/pkg/layers/impact"
	"github.com/arbiterai/arbiter-oss/pkg/layers/reasoncodes"
	"github.com/arbiterai/arbiter-oss/pkg/schema"
)

// Stage names recorded in the decision trace, in pipeline order.
const (
	StageCircuitOpen    = "circuit_breaker_open"
	StageCircuitPass    = "circuit_breaker_pass"
	StageNormalized     = "input_normalized"
	StageValidated      = "input_validated"
	StageValidationFail = "validation_failed"
	StageCompliancePass = "compliance_pass"
	StageComplianceFail = "compliance_blocked"
	StageAgentExecuted  = "agent_executed"
	StageAgentError     = "agent_error"
	StageDecision       = "decision_applied"
	StageAuthority      = "authority_applied"
	StageReasonCodes    = "reason_codes_applied"
	StageImpact         = "business_impact_applied"
	StageAudit          = "audit_trail_generated"
)

// Options configures a Pipeline. Zero-value collaborators are replaced with
// defaults; a nil Gate disables compliance checking entirely (degraded, not
// fatal, so a missing policy backend does not take the agent down).
type Options struct {
	Agent       agents.Agent
	Breakers    *governance.CircuitBreakerManager
	Resolver    *config.TenantResolver
	Gate        compliance.Gate
	Decision    *decision.Layer
	Authority   *authority.Layer
	ReasonCodes *reasoncodes.Layer
	Impact      *impact.Layer
	Audit       *audit.Layer
	Validator   *schema.Validator
	Budget      config.BudgetConfig
	Logger      *slog.Logger
}

// Pipeline executes requests for a single agent. It is safe for concurrent
// use; all per-request state lives on the stack.
type Pipeline struct {
	agent       agents.Agent
	breakers    *governance.CircuitBreakerManager
	resolver    *config.TenantResolver
	gate        compliance.Gate
	decision    *decision.Layer
	authority   *authority.Layer
	reasonCodes *reasoncodes.Layer
	impact      *impact.Layer
	audit       *audit.Layer
	validator   *schema.Validator
	budget      config.BudgetConfig
	logger      *slog.Logger
	now         func() time.Time
}

// New assembles a pipeline around an agent, filling in defaults for any
// collaborator the caller leaves nil.
func New(opts Options) (*Pipeline, error) {
	if opts.Agent.ID == "" || opts.Agent.Core == nil {
		return nil, fmt.Errorf("pipeline: agent must have an ID and a core")
	}

	p := &Pipeline{
		agent:       opts.Agent,
		breakers:    opts.Breakers,
		resolver:    opts.Resolver,
		gate:        opts.Gate,
		decision:    opts.Decision,
		authority:   opts.Authority,
		reasonCodes: opts.ReasonCodes,
		impact:      opts.Impact,
		audit:       opts.Audit,
		validator:   opts.Validator,
		budget:      opts.Budget,
		logger:      opts.Logger,
		now:         time.Now,
	}

	defaults := config.Default()
	if p.breakers == nil {
		p.breakers = governance.NewCircuitBreakerManager(governance.DefaultCircuitBreakerConfig())
	}
	if p.resolver == nil {
		p.resolver = config.NewTenantResolver(defaults.Tenants)
	}
	if p.decision == nil {
		p.decision = decision.New(decision.DefaultConfig())
	}
	if p.authority == nil {
		p.authority = authority.New(authority.DefaultConfig())
	}
	if p.reasonCodes == nil {
		layer, err := reasoncodes.New(reasoncodes.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("pipeline: default reason codes: %w", err)
		}
		p.reasonCodes = layer
	}
	if p.impact == nil {
		p.impact = impact.New(impact.DefaultConfig())
	}
	if p.audit == nil {
		p.audit = audit.New()
	}
	if p.validator == nil {
		v, err := schema.NewValidator()
		if err != nil {
			return nil, fmt.Errorf("pipeline: envelope schemas: %w", err)
		}
		p.validator = v
	}
	if p.budget.Compliance <= 0 {
		p.budget.Compliance = defaults.Budget.Compliance
	}
	if p.budget.Layer <= 0 {
		p.budget.Layer = defaults.Budget.Layer
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p, nil
}

// Agent returns the agent this pipeline executes.
func (p *Pipeline) Agent() agents.Agent { return p.agent }

// BreakerStats exposes per-key circuit breaker counters for health reporting.
func (p *Pipeline) BreakerStats() map[string]governance.CircuitBreakerStats {
	return p.breakers.Stats()
}

// Health is the static pipeline descriptor returned by the health surface.
type Health struct {
	AgentID        string                                    `json:"agent_id"`
	Version        string                                    `json:"version"`
	Status         string                                    `json:"status"`
	CircuitBreaker map[string]governance.CircuitBreakerStats `json:"circuit_breaker"`
	LayersEnabled  map[string]bool                           `json:"layers_enabled"`
}

// Health reports the pipeline descriptor. It has no side effects.
func (p *Pipeline) Health() Health {
	flags := p.resolver.Resolve(domain.DefaultTenantID).Flags
	return Health{
		AgentID:        p.agent.ID,
		Version:        p.agent.Version,
		Status:         "healthy",
		CircuitBreaker: p.breakers.Stats(),
		LayersEnabled: map[string]bool{
			"compliance":      flags.EnableCompliance && p.gate != nil,
			"decision":        flags.EnableDecisionLayer,
			"business_impact": flags.EnableBusinessImpact,
			"audit_trail":     flags.EnableAuditTrail,
		},
	}
}

// Execute runs one request through every stage and always returns an
// envelope; failures surface as the error shape, never as a Go error.
func (p *Pipeline) Execute(ctx context.Context, input map[string]any, reqCtx map[string]any) *domain.Envelope {
	tenantID := domain.DefaultTenantID
	if v, ok := reqCtx["tenant_id"].(string); ok && v != "" {
		tenantID = v
	}
	tenant := p.resolver.Resolve(tenantID)

	ctx, span := otel.Tracer("arbiter.pipeline").Start(ctx, "pipeline.execute",
		trace.WithAttributes(
			attribute.String("agent.id", p.agent.ID),
			attribute.String("tenant.id", tenant.TenantID),
		))
	defer span.End()

	b := newEnvelopeBuilder(p.agent.ID, tenant.TenantID, p.now)
	env := p.execute(ctx, b, input, tenant)

	span.SetAttributes(attribute.String("envelope.status", string(env.Status)))
	if env.Status == domain.StatusError {
		span.SetStatus(codes.Error, env.Error.Type)
	}

	if err := p.validator.Validate(env); err != nil {
		p.logger.ErrorContext(ctx, "envelope failed shape validation",
			"agent_id", p.agent.ID, "status", env.Status, "error", err)
	}
	recordExecution(ctx, executionMetrics{
		AgentID:  p.agent.ID,
		TenantID: tenant.TenantID,
		Status:   env.Status,
		Duration: p.now().Sub(b.started),
	})
	return env
}

func (p *Pipeline) execute(ctx context.Context, b *envelopeBuilder, input map[string]any, tenant domain.TenantContext) *domain.Envelope {
	breaker := p.breakers.Get(tenant.TenantID, p.agent.ID)
	if !breaker.AllowRequest() {
		b.mark(StageCircuitOpen)
		recordCircuitOpen(ctx, p.agent.ID, tenant.TenantID)
		p.logger.WarnContext(ctx, "circuit breaker open, rejecting request",
			"agent_id", p.agent.ID, "tenant_id", tenant.TenantID)
		return b.errorEnvelope("circuit_open",
			"circuit breaker is open for this agent, retry later", true,
			unevaluatedQuality())
	}
	p.stage(ctx, b, StageCircuitPass)

	payload, contentHash, err := normalize(input, tenant.TenantID)
	if err != nil {
		breaker.RecordSuccess()
		p.logger.WarnContext(ctx, "input normalization failed",
			"agent_id", p.agent.ID, "error", err)
		return b.errorEnvelope("malformed_input", err.Error(), false, unevaluatedQuality())
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("input.content_hash", contentHash))
	p.stage(ctx, b, StageNormalized)

	if missing := validateRequired(payload, p.agent.RequiredFields); len(missing) > 0 {
		b.mark(StageValidationFail)
		breaker.RecordSuccess()
		return b.validationError(missing, assessQuality(payload, p.agent.RequiredFields, missing))
	}
	p.stage(ctx, b, StageValidated)
	quality := assessQuality(payload, p.agent.RequiredFields, nil)

	var complianceReport *domain.ComplianceReport
	if tenant.Flags.EnableCompliance && p.gate != nil {
		report, err := p.checkCompliance(ctx, payload, tenant.TenantID)
		if err != nil {
			// Fail closed: an unreachable or failing gate blocks the request.
			b.mark(StageComplianceFail)
			breaker.RecordSuccess()
			p.logger.ErrorContext(ctx, "compliance gate failed, blocking request",
				"agent_id", p.agent.ID, "tenant_id", tenant.TenantID, "error", err)
			return b.complianceBlocked(failedGateReport(err), quality)
		}
		if report.Status == compliance.StatusBlocked {
			b.mark(StageComplianceFail)
			breaker.RecordSuccess()
			return b.complianceBlocked(report, quality)
		}
		p.stage(ctx, b, StageCompliancePass)
		complianceReport = &report
	}

	result, err := p.runCore(ctx, payload)
	if err != nil {
		b.mark(StageAgentError)
		breaker.RecordFailure()
		p.logger.ErrorContext(ctx, "agent core failed",
			"agent_id", p.agent.ID, "tenant_id", tenant.TenantID, "error", err)
		return b.errorEnvelope("execution_error", err.Error(), recoverable(err), quality)
	}
	p.stage(ctx, b, StageAgentExecuted)

	env := p.enrich(ctx, b, input, payload, result, tenant, quality)
	if complianceReport != nil {
		env.Compliance = complianceReport
		env.ComplianceStatus = complianceStatusPass
	}
	breaker.RecordSuccess()
	return env
}

// enrich runs the optional layers over a successful core result. Each layer
// is bounded by the layer budget and fails open: a layer that errors or
// overruns is absent from both the envelope and the decision trace.
func (p *Pipeline) enrich(ctx context.Context, b *envelopeBuilder, input, payload, result map[string]any, tenant domain.TenantContext, quality domain.DataQuality) *domain.Envelope {
	var (
		dec      *domain.Decision
		auth     *domain.AuthorityReport
		rcReport *reasoncodes.Report
		biz      *domain.BusinessImpact
		trail    []domain.AuditEntry
	)

	if tenant.Flags.EnableDecisionLayer {
		dec, _ = optional(ctx, p, b, "decision", StageDecision, func(context.Context) (*domain.Decision, error) {
			return p.decision.Apply(result, string(p.agent.Kind))
		})

		switch p.agent.Kind {
		case agents.KindOrchestrator:
			if candidates, ok := result["recommendations"].([]any); ok && len(candidates) > 0 {
				auth, _ = optional(ctx, p, b, "authority", StageAuthority, func(context.Context) (*domain.AuthorityReport, error) {
					return p.authority.Apply(candidates)
				})
			}
		case agents.KindRisk:
			if score, factors, ok := riskInputs(result); ok {
				rcReport, _ = optional(ctx, p, b, "reason_codes", StageReasonCodes, func(context.Context) (*reasoncodes.Report, error) {
					return p.reasonCodes.Apply(score, factors)
				})
			}
		}
	}

	if tenant.Flags.EnableBusinessImpact {
		biz, _ = optional(ctx, p, b, "business_impact", StageImpact, func(context.Context) (*domain.BusinessImpact, error) {
			return p.impact.Apply(result)
		})
	}

	if tenant.Flags.EnableAuditTrail {
		trail, _ = optional(ctx, p, b, "audit_trail", StageAudit, func(context.Context) ([]domain.AuditEntry, error) {
			entry, err := p.audit.Generate("execute", input, result,
				p.agent.ID, p.agent.Version, tenant.TenantID)
			if err != nil {
				return nil, err
			}
			return []domain.AuditEntry{entry}, nil
		})
	}

	// Attach the score analysis on a shallow copy: a timed-out layer goroutine
	// may still be reading the original result map.
	if rcReport != nil {
		enriched := make(map[string]any, len(result)+1)
		for k, v := range result {
			enriched[k] = v
		}
		enriched["score_analysis"] = rcReport
		result = enriched
	}

	env := b.success(result, quality)
	env.Decision = dec
	env.Authority = auth
	env.BusinessImpact = biz
	env.AuditTrail = trail
	if rcReport != nil {
		env.ReasonCodes = rcReport.ReasonCodes
	}
	env.Actionable = (dec != nil && dec.Action == domain.ActionExecuteNow) ||
		(auth != nil && auth.Decision == domain.AuthorityExecute)
	return env
}

// optional runs fn under the layer budget. On error or timeout the layer's
// output is simply absent from the envelope and the fallback flag is set.
func optional[T any](ctx context.Context, p *Pipeline, b *envelopeBuilder, name, stage string, fn func(context.Context) (T, error)) (T, bool) {
	out, err := runBudget(ctx, p.budget.Layer, fn)
	if err != nil {
		b.fallbackUsed = true
		recordLayerFallback(ctx, p.agent.ID, name)
		p.logger.WarnContext(ctx, "optional layer skipped",
			"agent_id", p.agent.ID, "layer", name, "error", err)
		var zero T
		return zero, false
	}
	p.stage(ctx, b, stage)
	return out, true
}

func (p *Pipeline) checkCompliance(ctx context.Context, payload map[string]any, tenantID string) (domain.ComplianceReport, error) {
	report, err := runBudget(ctx, p.budget.Compliance, func(ctx context.Context) (domain.ComplianceReport, error) {
		return p.gate.Check(ctx, payload, tenantID, string(p.agent.Kind), p.agent.Regulations)
	})
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", domain.ErrComplianceTimeout, err)
	}
	return report, err
}

// runBudget runs fn with a deadline. After a timeout the goroutine is left
// to finish on its own and its result is discarded: the value travels over
// the channel, so a late completion can never surface in the response or
// race with the caller. fn must not mutate shared state.
func runBudget[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if budget <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn(ctx)
		done <- outcome{val: val, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *Pipeline) runCore(ctx context.Context, payload map[string]any) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent core panic: %v", r)
		}
	}()
	return p.agent.Core(ctx, payload)
}

func (p *Pipeline) stage(ctx context.Context, b *envelopeBuilder, stage string) {
	b.mark(stage)
	recordStage(ctx, p.agent.ID, stage)
}

func failedGateReport(err error) domain.ComplianceReport {
	return domain.ComplianceReport{
		Status:               compliance.StatusBlocked,
		ChecksPerformed:      []string{},
		BlockingIssues:       []string{fmt.Sprintf("compliance check unavailable: %v", err)},
		RegulatoryReferences: []string{},
		PIIHandling:          "unknown",
		ComplianceRiskScore:  100,
	}
}

func unevaluatedQuality() domain.DataQuality {
	return domain.DataQuality{
		Issues:                []string{},
		SufficientForAnalysis: false,
	}
}

// riskInputs pulls the base score and factor map out of a risk agent's
// result, tolerating both native float maps and JSON-decoded payloads.
func riskInputs(result map[string]any) (float64, map[string]float64, bool) {
	score, ok := toFloat(result["score"])
	if !ok {
		return 0, nil, false
	}
	switch raw := result["factors"].(type) {
	case map[string]float64:
		return score, raw, true
	case map[string]any:
		factors := make(map[string]float64, len(raw))
		for k, v := range raw {
			f, ok := toFloat(v)
			if !ok {
				return 0, nil, false
			}
			factors[k] = f
		}
		return score, factors, true
	}
	return 0, nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func recoverable(err error) bool {
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		return derr.Recoverable()
	}
	return true
}
