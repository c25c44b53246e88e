// Package config provides configuration structures and loading logic for the
// execution pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Config holds the global configuration for the pipeline service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	Budget    BudgetConfig    `yaml:"budget"`
	Decision  DecisionConfig  `yaml:"decision"`
	Authority AuthorityConfig `yaml:"authority"`
	Impact    ImpactConfig    `yaml:"business_impact"`
	Tenants   TenantsConfig   `yaml:"tenants"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	Environment  string `yaml:"environment"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	ResetTimeout      time.Duration `yaml:"reset_timeout"`
	MaxHalfOpenProbes int           `yaml:"max_half_open_probes"`
}

// BudgetConfig bounds the time spent inside optional collaborator calls.
// Optional layers fail open on expiry; the compliance gate fails closed.
type BudgetConfig struct {
	Compliance time.Duration `yaml:"compliance"`
	Layer      time.Duration `yaml:"layer"`
}

// DecisionConfig holds the decision layer thresholds. They are configuration,
// not literals: the defaults satisfy the documented scenarios but carry no
// further business rationale.
type DecisionConfig struct {
	// MediumRiskFraction and HighRiskFraction are the at-risk fractions at
	// which priority escalates to MEDIUM and HIGH respectively.
	MediumRiskFraction float64 `yaml:"medium_risk_fraction"`
	HighRiskFraction   float64 `yaml:"high_risk_fraction"`
	// ConfidenceCap bounds the synthesized confidence from above.
	ConfidenceCap float64 `yaml:"confidence_cap"`
	// Deadline offsets keyed by priority.
	DeadlineHigh   time.Duration `yaml:"deadline_high"`
	DeadlineMedium time.Duration `yaml:"deadline_medium"`
	DeadlineLow    time.Duration `yaml:"deadline_low"`
}

// AuthorityConfig holds the recommendation filtering thresholds.
type AuthorityConfig struct {
	MinImprovement     float64 `yaml:"min_improvement"`
	MinConfidence      float64 `yaml:"min_confidence"`
	MaxRecommendations int     `yaml:"max_recommendations"`
	EffortWeight       float64 `yaml:"effort_weight"`
}

// ImpactConfig holds the linear business-impact multipliers.
type ImpactConfig struct {
	RevenuePerRecord float64 `yaml:"revenue_per_record"`
	CostPerRecord    float64 `yaml:"cost_per_record"`
	Currency         string  `yaml:"currency"`
}

// TenantsConfig holds process-wide feature flag defaults plus per-tenant
// overrides.
type TenantsConfig struct {
	Defaults  domain.FeatureFlags      `yaml:"defaults"`
	Overrides map[string]FlagOverrides `yaml:"overrides"`
}

// FlagOverrides is a partial flag set: nil fields inherit the default.
type FlagOverrides struct {
	EnableCompliance     *bool `yaml:"enable_compliance"`
	EnableAuditTrail     *bool `yaml:"enable_audit_trail"`
	EnableBusinessImpact *bool `yaml:"enable_business_impact"`
	EnableDecisionLayer  *bool `yaml:"enable_decision_layer"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: ":8080"},
		Logging: LoggingConfig{
			Level: "info",
		},
		Breaker: BreakerConfig{
			FailureThreshold:  5,
			ResetTimeout:      30 * time.Second,
			MaxHalfOpenProbes: 1,
		},
		Budget: BudgetConfig{
			Compliance: 2 * time.Second,
			Layer:      time.Second,
		},
		Decision: DecisionConfig{
			MediumRiskFraction: 0.10,
			HighRiskFraction:   0.20,
			ConfidenceCap:      0.95,
			DeadlineHigh:       24 * time.Hour,
			DeadlineMedium:     72 * time.Hour,
			DeadlineLow:        168 * time.Hour,
		},
		Authority: AuthorityConfig{
			MinImprovement:     0.05,
			MinConfidence:      0.70,
			MaxRecommendations: 5,
			EffortWeight:       0.1,
		},
		Impact: ImpactConfig{
			RevenuePerRecord: 25,
			CostPerRecord:    4,
			Currency:         "USD",
		},
		Tenants: TenantsConfig{
			Defaults: domain.FeatureFlags{
				EnableCompliance:     true,
				EnableAuditTrail:     true,
				EnableBusinessImpact: true,
				EnableDecisionLayer:  true,
			},
		},
	}
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("ARBITER_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("ARBITER_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("ARBITER_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("ARBITER_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("ARBITER_BREAKER_THRESHOLD"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Breaker.FailureThreshold = n
		}
	}
	if val := os.Getenv("ARBITER_BREAKER_RESET"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Breaker.ResetTimeout = d
		}
	}
}

// Validate checks configuration invariants. Violations wrap
// domain.ErrConfigInvalid.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("%w: server.address must not be empty", domain.ErrConfigInvalid)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("%w: circuit_breaker.failure_threshold must be positive, got %d", domain.ErrConfigInvalid, c.Breaker.FailureThreshold)
	}
	if c.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("%w: circuit_breaker.reset_timeout must be positive, got %s", domain.ErrConfigInvalid, c.Breaker.ResetTimeout)
	}
	if c.Decision.MediumRiskFraction < 0 || c.Decision.MediumRiskFraction > 1 {
		return fmt.Errorf("%w: decision.medium_risk_fraction out of range: %v", domain.ErrConfigInvalid, c.Decision.MediumRiskFraction)
	}
	if c.Decision.HighRiskFraction < c.Decision.MediumRiskFraction {
		return fmt.Errorf("%w: decision.high_risk_fraction %v below medium_risk_fraction %v",
			domain.ErrConfigInvalid, c.Decision.HighRiskFraction, c.Decision.MediumRiskFraction)
	}
	if c.Decision.ConfidenceCap <= 0 || c.Decision.ConfidenceCap > 1 {
		return fmt.Errorf("%w: decision.confidence_cap out of range: %v", domain.ErrConfigInvalid, c.Decision.ConfidenceCap)
	}
	if c.Authority.MaxRecommendations <= 0 {
		return fmt.Errorf("%w: authority.max_recommendations must be positive, got %d", domain.ErrConfigInvalid, c.Authority.MaxRecommendations)
	}
	if c.Authority.MinConfidence < 0 || c.Authority.MinConfidence > 1 {
		return fmt.Errorf("%w: authority.min_confidence out of range: %v", domain.ErrConfigInvalid, c.Authority.MinConfidence)
	}
	return nil
}
