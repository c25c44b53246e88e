// Package impact quantifies the monetary consequence of acting on an agent
// result. Estimates are deliberately linear in processed volume; the layer
// forecasts order of magnitude, not cents.
package impact

import (
	"math"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Config holds the linear multipliers.
type Config struct {
	RevenuePerRecord float64
	CostPerRecord    float64
	Currency         string
}

// DefaultConfig returns the stock multipliers.
func DefaultConfig() Config {
	return Config{
		RevenuePerRecord: 25,
		CostPerRecord:    4,
		Currency:         "USD",
	}
}

// Layer computes business impact estimates.
type Layer struct {
	cfg Config
}

// New creates a business impact layer.
func New(cfg Config) *Layer {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Layer{cfg: cfg}
}

// Apply derives the impact estimate from the result's processed volume and
// richness. The impact score is clamped to [0,100].
func (l *Layer) Apply(result map[string]any) (*domain.BusinessImpact, error) {
	volume := volumeOf(result)

	// Volume saturates at 1000 records; richness at 10 result fields.
	volumeComponent := math.Min(volume, 1000) / 1000 * 70
	richnessComponent := math.Min(float64(len(result)), 10) / 10 * 30

	return &domain.BusinessImpact{
		RevenueUpliftEstimate: volume * l.cfg.RevenuePerRecord,
		CostSavingEstimate:    volume * l.cfg.CostPerRecord,
		BusinessImpactScore:   math.Min(volumeComponent+richnessComponent, 100),
		Currency:              l.cfg.Currency,
	}, nil
}

func volumeOf(result map[string]any) float64 {
	switch v := result["total_records"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
