package domain

// EnvelopeVersion identifies the response envelope schema in use. Bump it
// whenever a field is added, removed, or changes meaning.
const EnvelopeVersion = "2.0"

// Status classifies the terminal outcome of one pipeline invocation.
// The set is closed: every envelope carries exactly one of these values.
type Status string

const (
	// StatusSuccess indicates the agent core ran and enrichment completed.
	StatusSuccess Status = "success"
	// StatusValidationError indicates required input fields were missing.
	StatusValidationError Status = "validation_error"
	// StatusComplianceBlocked indicates the compliance gate halted the request.
	StatusComplianceBlocked Status = "compliance_blocked"
	// StatusError indicates an execution failure (agent core, circuit open,
	// or unnormalizable input).
	StatusError Status = "error"
)

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusValidationError, StatusComplianceBlocked, StatusError:
		return true
	}
	return false
}

// Action is the decision layer's verdict on what to do with the result.
type Action string

const (
	// ActionExecuteNow indicates the result warrants immediate execution.
	ActionExecuteNow Action = "EXECUTE_NOW"
	// ActionReviewRequired indicates a human should look before acting.
	ActionReviewRequired Action = "REVIEW_REQUIRED"
)

// Priority ranks the urgency attached to a decision.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Direction classifies how a factor moved a score.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

// Decision is the actionable synthesis the decision layer attaches to a
// successful result.
type Decision struct {
	Action         Action   `json:"action"`
	Priority       Priority `json:"priority"`
	Confidence     float64  `json:"confidence"`
	ExpectedImpact string   `json:"expected_impact"`
	Deadline       string   `json:"deadline"`
	NextSteps      []string `json:"next_steps"`
	RiskIfIgnored  string   `json:"risk_if_ignored"`
}

// ReasonCode is a labeled, signed, weighted explanation of one factor's
// contribution to an outcome. Synthesized codes (compliance blocks) leave the
// factor fields zero.
type ReasonCode struct {
	Code         string  `json:"code"`
	Category     string  `json:"category"`
	Description  string  `json:"description"`
	Factor       string  `json:"factor,omitempty"`
	Value        float64 `json:"value,omitempty"`
	Contribution float64 `json:"contribution,omitempty"`
	Impact       float64 `json:"impact,omitempty"`
}

// Recommendation is a candidate action scored and filtered by the authority
// layer. AuthorityScore is derived, never supplied by callers.
type Recommendation struct {
	Action              string  `json:"action"`
	ExpectedImprovement float64 `json:"expected_improvement"`
	Confidence          float64 `json:"confidence"`
	Effort              float64 `json:"effort,omitempty"`
	AuthorityScore      float64 `json:"authority_score"`
}

// RejectionReason is the closed set of reasons the authority layer rejects a
// candidate recommendation.
type RejectionReason string

const (
	RejectMissingFields    RejectionReason = "missing_required_fields"
	RejectBelowImprovement RejectionReason = "below_improvement_threshold"
	RejectBelowConfidence  RejectionReason = "below_confidence_threshold"
)

// Rejection records why one candidate was dropped from the approved list.
type Rejection struct {
	Action string          `json:"action"`
	Reason RejectionReason `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

// AuthorityDecision is the authority layer's overall verdict.
type AuthorityDecision string

const (
	AuthorityExecute AuthorityDecision = "EXECUTE"
	AuthorityHold    AuthorityDecision = "HOLD"
)

// AuthorityReport carries the filtered recommendation set plus the explicit
// rejection log.
type AuthorityReport struct {
	ApprovedRecommendations []Recommendation  `json:"approved_recommendations"`
	Rejections              []Rejection       `json:"rejections"`
	Decision                AuthorityDecision `json:"authority_decision"`
	Rationale               string            `json:"rationale"`
}

// ComplianceReport is the compliance gate's output, attached to the envelope
// for audit purposes whether or not the request was blocked.
type ComplianceReport struct {
	Status               string   `json:"status"`
	ChecksPerformed      []string `json:"checks_performed"`
	BlockingIssues       []string `json:"blocking_issues,omitempty"`
	RegulatoryReferences []string `json:"regulatory_references"`
	PIIHandling          string   `json:"pii_handling"`
	ComplianceRiskScore  float64  `json:"compliance_risk_score"`
}

// BusinessImpact quantifies the monetary consequence of acting on a result.
type BusinessImpact struct {
	RevenueUpliftEstimate float64 `json:"revenue_uplift_estimate"`
	CostSavingEstimate    float64 `json:"cost_saving_estimate"`
	BusinessImpactScore   float64 `json:"business_impact_score"`
	Currency              string  `json:"currency"`
}

// AuditEntry is one append-only trail record. Hashes are truncated digests of
// the canonical serialization of the input and output payloads.
type AuditEntry struct {
	EntryID    string `json:"entry_id"`
	Step       string `json:"step"`
	Timestamp  string `json:"timestamp"`
	InputHash  string `json:"input_hash"`
	OutputHash string `json:"output_hash"`
	AgentID    string `json:"agent_id"`
	Version    string `json:"version"`
	TenantID   string `json:"tenant_id"`
}

// DataQuality summarizes how trustworthy the input was.
type DataQuality struct {
	QualityScore          float64  `json:"quality_score"`
	CompletenessPct       float64  `json:"completeness_pct"`
	Confidence            float64  `json:"confidence"`
	Issues                []string `json:"issues"`
	SufficientForAnalysis bool     `json:"sufficient_for_analysis"`
}

// ErrorDetail describes an execution failure in the error envelope shape.
type ErrorDetail struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	Recoverable  bool   `json:"recoverable"`
	FallbackUsed bool   `json:"fallback_used"`
}

// Envelope is the complete structured response returned by one pipeline
// invocation. It is created once per request, finalized at pipeline exit,
// and never mutated after return. Exactly one of the four canonical shapes
// applies; the shape is selected by Status and its shape-specific fields
// (ValidationErrors, BlockingIssues, Error).
type Envelope struct {
	Status        Status   `json:"status"`
	Version       string   `json:"version"`
	Agent         string   `json:"agent"`
	LatencyMS     float64  `json:"latency_ms"`
	Actionable    bool     `json:"actionable"`
	AnalysisID    string   `json:"analysis_id"`
	TenantID      string   `json:"tenant_id"`
	Timestamp     string   `json:"timestamp"`
	DecisionTrace []string `json:"decision_trace"`

	Result         map[string]any    `json:"result,omitempty"`
	Decision       *Decision         `json:"decision,omitempty"`
	Authority      *AuthorityReport  `json:"authority,omitempty"`
	Compliance     *ComplianceReport `json:"compliance,omitempty"`
	BusinessImpact *BusinessImpact   `json:"business_impact,omitempty"`
	AuditTrail     []AuditEntry      `json:"audit_trail,omitempty"`

	ReasonCodes      []ReasonCode `json:"reason_codes"`
	ComplianceStatus string       `json:"compliance_status"`
	DataQuality      DataQuality  `json:"_data_quality"`

	ValidationErrors []string     `json:"validation_errors,omitempty"`
	BlockingIssues   []string     `json:"blocking_issues,omitempty"`
	Error            *ErrorDetail `json:"error,omitempty"`
}
