package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 0.10, cfg.Decision.MediumRiskFraction)
	assert.Equal(t, 0.20, cfg.Decision.HighRiskFraction)
	assert.True(t, cfg.Tenants.Defaults.EnableCompliance)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arbiter.yaml")
	data := []byte(`
server:
  address: ":9999"
circuit_breaker:
  failure_threshold: 3
tenants:
  defaults:
    enable_compliance: true
    enable_audit_trail: true
    enable_business_impact: true
    enable_decision_layer: true
  overrides:
    acme:
      enable_audit_trail: false
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)

	override := cfg.Tenants.Overrides["acme"]
	require.NotNil(t, override.EnableAuditTrail)
	assert.False(t, *override.EnableAuditTrail)
	assert.Nil(t, override.EnableCompliance)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg := Default()
	cfg.Decision.HighRiskFraction = 0.05 // below medium
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "high_risk_fraction")
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestValidateWrapsConfigInvalid(t *testing.T) {
	cases := map[string]func(*Config){
		"empty address":      func(c *Config) { c.Server.Address = "" },
		"zero threshold":     func(c *Config) { c.Breaker.FailureThreshold = 0 },
		"confidence cap":     func(c *Config) { c.Decision.ConfidenceCap = 1.5 },
		"no recommendations": func(c *Config) { c.Authority.MaxRecommendations = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrConfigInvalid)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBITER_ADDR", ":7070")
	t.Setenv("ARBITER_BREAKER_THRESHOLD", "9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 9, cfg.Breaker.FailureThreshold)
}

func TestTenantResolverMerge(t *testing.T) {
	audit := false
	impact := false
	resolver := NewTenantResolver(TenantsConfig{
		Defaults: domain.FeatureFlags{
			EnableCompliance:     true,
			EnableAuditTrail:     true,
			EnableBusinessImpact: true,
			EnableDecisionLayer:  true,
		},
		Overrides: map[string]FlagOverrides{
			"acme": {EnableAuditTrail: &audit, EnableBusinessImpact: &impact},
		},
	})

	got := resolver.Resolve("acme")
	assert.Equal(t, "acme", got.TenantID)
	assert.True(t, got.Flags.EnableCompliance)
	assert.False(t, got.Flags.EnableAuditTrail)
	assert.False(t, got.Flags.EnableBusinessImpact)
	assert.True(t, got.Flags.EnableDecisionLayer)

	// Unknown tenants get the defaults; empty ids map to the default tenant.
	other := resolver.Resolve("globex")
	assert.True(t, other.Flags.EnableAuditTrail)
	assert.Equal(t, domain.DefaultTenantID, resolver.Resolve("").TenantID)

	// Resolution is deterministic.
	assert.Equal(t, got, resolver.Resolve("acme"))
}
