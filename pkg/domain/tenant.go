package domain

// FeatureFlags are the per-tenant toggles that switch optional pipeline
// layers on or off.
type FeatureFlags struct {
	EnableCompliance     bool `json:"enable_compliance" yaml:"enable_compliance"`
	EnableAuditTrail     bool `json:"enable_audit_trail" yaml:"enable_audit_trail"`
	EnableBusinessImpact bool `json:"enable_business_impact" yaml:"enable_business_impact"`
	EnableDecisionLayer  bool `json:"enable_decision_layer" yaml:"enable_decision_layer"`
}

// TenantContext carries the resolved identity and flags for one request.
// It is created per request from defaults merged with tenant overrides and
// is immutable for the request lifetime.
type TenantContext struct {
	TenantID string
	Flags    FeatureFlags
}

// DefaultTenantID is used when the caller supplies no tenant context.
const DefaultTenantID = "default"
