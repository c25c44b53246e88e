package config

import (
	"sync"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// TenantResolver resolves per-tenant feature flags by deterministically
// merging process-wide defaults with tenant-specific overrides. Resolution is
// a pure function over the in-memory mapping; no network calls are made.
//
// The mapping is swappable at runtime (hot reload) under a read lock, but a
// resolved TenantContext is immutable for the lifetime of its request.
type TenantResolver struct {
	mu      sync.RWMutex
	tenants TenantsConfig
}

// NewTenantResolver creates a resolver over the supplied tenant config.
func NewTenantResolver(tenants TenantsConfig) *TenantResolver {
	return &TenantResolver{tenants: tenants}
}

// Resolve returns the effective tenant context for tenantID. An empty id
// falls back to the default tenant.
func (r *TenantResolver) Resolve(tenantID string) domain.TenantContext {
	if tenantID == "" {
		tenantID = domain.DefaultTenantID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flags := r.tenants.Defaults
	if override, ok := r.tenants.Overrides[tenantID]; ok {
		if override.EnableCompliance != nil {
			flags.EnableCompliance = *override.EnableCompliance
		}
		if override.EnableAuditTrail != nil {
			flags.EnableAuditTrail = *override.EnableAuditTrail
		}
		if override.EnableBusinessImpact != nil {
			flags.EnableBusinessImpact = *override.EnableBusinessImpact
		}
		if override.EnableDecisionLayer != nil {
			flags.EnableDecisionLayer = *override.EnableDecisionLayer
		}
	}

	return domain.TenantContext{TenantID: tenantID, Flags: flags}
}

// Update atomically replaces the tenant mapping. In-flight requests keep the
// context they already resolved.
func (r *TenantResolver) Update(tenants TenantsConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = tenants
}
