package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterai/arbiter-oss/internal/governance"
	"github.com/arbiterai/arbiter-oss/pkg/agents"
	"github.com/arbiterai/arbiter-oss/pkg/compliance"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts pipeline.Options) *Server {
	t.Helper()
	if opts.Agent.Core == nil {
		opts.Agent = agents.NewSegmentationAgent()
	}
	opts.Logger = testLogger()
	p, err := pipeline.New(opts)
	require.NoError(t, err)

	s, err := New(Options{Pipelines: []*pipeline.Pipeline{p}, Logger: testLogger()})
	require.NoError(t, err)
	return s
}

func postExecute(t *testing.T, h http.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) domain.Envelope {
	t.Helper()
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestExecuteEndpointSuccess(t *testing.T) {
	s := newTestServer(t, pipeline.Options{})
	h := s.Handler()

	rec := postExecute(t, h, map[string]any{
		"input_data": map[string]any{
			"users": []any{
				map[string]any{"ltv": 1500, "recency_days": 5, "tenure_days": 365},
			},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env := decodeEnvelope(t, rec)
	assert.Equal(t, domain.StatusSuccess, env.Status)
	assert.Equal(t, "customer_segmentation", env.Agent)
}

func TestExecuteEndpointValidationError(t *testing.T) {
	s := newTestServer(t, pipeline.Options{})

	rec := postExecute(t, s.Handler(), map[string]any{
		"input_data": map[string]any{"wrong_key": 1},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, domain.StatusValidationError, env.Status)
	assert.NotEmpty(t, env.ValidationErrors)
}

func TestExecuteEndpointComplianceBlocked(t *testing.T) {
	s := newTestServer(t, pipeline.Options{
		Gate: compliance.NewRuleGate(compliance.RuleGateConfig{}),
	})

	rec := postExecute(t, s.Handler(), map[string]any{
		"input_data": map[string]any{
			"users": []any{map[string]any{"ssn": "123-45-6789"}},
		},
		"context": map[string]any{"tenant_id": "acme"},
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, domain.StatusComplianceBlocked, env.Status)
	assert.Equal(t, "acme", env.TenantID)
}

func TestExecuteEndpointCircuitOpen(t *testing.T) {
	failing := agents.Agent{
		ID:      "flaky",
		Version: "0.1",
		Kind:    agents.KindOrchestrator,
		Core: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("downstream exploded")
		},
	}
	s := newTestServer(t, pipeline.Options{
		Agent: failing,
		Breakers: governance.NewCircuitBreakerManager(governance.CircuitBreakerConfig{
			FailureThreshold:  1,
			ResetTimeout:      time.Minute,
			MaxHalfOpenProbes: 1,
		}),
	})
	h := s.Handler()
	body := map[string]any{"input_data": map[string]any{"x": 1}}

	rec := postExecute(t, h, body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = postExecute(t, h, body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "circuit_open", env.Error.Type)
}

func TestExecuteEndpointUnknownAgent(t *testing.T) {
	s := newTestServer(t, pipeline.Options{})

	rec := postExecute(t, s.Handler(), map[string]any{
		"agent_id":   "nope",
		"input_data": map[string]any{},
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteEndpointRejectsBadJSON(t *testing.T) {
	s := newTestServer(t, pipeline.Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, pipeline.Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var health pipeline.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "customer_segmentation", health.AgentID)
	assert.Equal(t, "healthy", health.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, pipeline.Options{})
	h := s.Handler()

	postExecute(t, h, map[string]any{"input_data": map[string]any{"wrong": 1}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arbiter_envelopes_total")
}
