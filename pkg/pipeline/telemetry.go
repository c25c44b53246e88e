package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	executionCounter      metric.Int64Counter
	stageCounter          metric.Int64Counter
	circuitOpenCounter    metric.Int64Counter
	layerFallbackCounter  metric.Int64Counter
	executionLatencyHisto metric.Float64Histogram
)

// executionMetrics captures the fields recorded for one invocation.
type executionMetrics struct {
	AgentID  string
	TenantID string
	Status   domain.Status
	Duration time.Duration
}

// recordExecution emits the counters and histogram describing one pipeline
// invocation.
func recordExecution(ctx context.Context, m executionMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("agent.id", m.AgentID),
		attribute.String("tenant.id", m.TenantID),
		attribute.String("envelope.status", string(m.Status)),
	}

	executionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.Duration > 0 {
		executionLatencyHisto.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

func recordStage(ctx context.Context, agentID, stage string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	stageCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("stage.name", stage),
	))
}

func recordCircuitOpen(ctx context.Context, agentID, tenantID string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	circuitOpenCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("tenant.id", tenantID),
	))
}

func recordLayerFallback(ctx context.Context, agentID, layer string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	layerFallbackCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("layer.name", layer),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("arbiter.pipeline")

		executionCounter, metricsInitErr = meter.Int64Counter(
			"arbiter.pipeline.executions_total",
			metric.WithDescription("Pipeline invocations partitioned by envelope status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageCounter, metricsInitErr = meter.Int64Counter(
			"arbiter.pipeline.stages_total",
			metric.WithDescription("Pipeline stages executed"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		circuitOpenCounter, metricsInitErr = meter.Int64Counter(
			"arbiter.pipeline.circuit_open_total",
			metric.WithDescription("Requests rejected by an open circuit breaker"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		layerFallbackCounter, metricsInitErr = meter.Int64Counter(
			"arbiter.pipeline.layer_fallbacks_total",
			metric.WithDescription("Optional layers skipped after a failure or timeout"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		executionLatencyHisto, metricsInitErr = meter.Float64Histogram(
			"arbiter.pipeline.execution_duration_ms",
			metric.WithDescription("End-to-end pipeline latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
