// Package server exposes the execution pipeline over HTTP: POST /v1/execute
// returns a response envelope with a status-mapped HTTP code, GET /healthz
// returns the static pipeline descriptor, GET /metrics serves Prometheus.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/pipeline"
)

// maxBodyBytes bounds request bodies to keep canonicalization and hashing
// costs predictable.
const maxBodyBytes = 4 << 20

// Server routes execute requests to per-agent pipelines.
type Server struct {
	pipelines map[string]*pipeline.Pipeline
	defaultID string
	metrics   *Metrics
	logger    *slog.Logger
}

// Options configures a Server.
type Options struct {
	// Pipelines maps agent IDs to their executors. DefaultAgent selects the
	// pipeline used when the request names no agent.
	Pipelines    []*pipeline.Pipeline
	DefaultAgent string
	Metrics      *Metrics
	Logger       *slog.Logger
}

// New creates a server over the supplied pipelines.
func New(opts Options) (*Server, error) {
	if len(opts.Pipelines) == 0 {
		return nil, fmt.Errorf("server: at least one pipeline is required")
	}

	s := &Server{
		pipelines: make(map[string]*pipeline.Pipeline, len(opts.Pipelines)),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	for _, p := range opts.Pipelines {
		s.pipelines[p.Agent().ID] = p
	}

	s.defaultID = opts.DefaultAgent
	if s.defaultID == "" {
		s.defaultID = opts.Pipelines[0].Agent().ID
	}
	if _, ok := s.pipelines[s.defaultID]; !ok {
		return nil, fmt.Errorf("server: default agent %q has no pipeline", s.defaultID)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Handler builds the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/execute", s.handleExecute)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return otelhttp.NewHandler(s.metrics.Middleware(mux), "arbiter.http")
}

// executeRequest is the POST /v1/execute body.
type executeRequest struct {
	AgentID   string         `json:"agent_id,omitempty"`
	InputData map[string]any `json:"input_data"`
	Context   map[string]any `json:"context,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	agentID := req.AgentID
	if agentID == "" {
		agentID = s.defaultID
	}
	p, ok := s.pipelines[agentID]
	if !ok {
		s.writeProblem(w, http.StatusNotFound,
			fmt.Sprintf("%v: %s", domain.ErrAgentNotFound, agentID))
		return
	}

	env := p.Execute(r.Context(), req.InputData, req.Context)
	s.metrics.RecordEnvelope(agentID, string(env.Status))

	code := statusCode(env)
	if code == http.StatusServiceUnavailable {
		s.metrics.RecordCircuitRejection(agentID)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	s.writeJSON(w, code, env)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if len(s.pipelines) == 1 {
		s.writeJSON(w, http.StatusOK, s.pipelines[s.defaultID].Health())
		return
	}
	health := make(map[string]pipeline.Health, len(s.pipelines))
	for id, p := range s.pipelines {
		health[id] = p.Health()
	}
	s.writeJSON(w, http.StatusOK, health)
}

// retryAfterSeconds matches the default breaker reset timeout.
const retryAfterSeconds = 30

// statusCode maps an envelope's terminal status to the HTTP response code.
func statusCode(env *domain.Envelope) int {
	switch env.Status {
	case domain.StatusSuccess:
		return http.StatusOK
	case domain.StatusValidationError:
		return http.StatusUnprocessableEntity
	case domain.StatusComplianceBlocked:
		return http.StatusForbidden
	case domain.StatusError:
		if env.Error != nil && env.Error.Type == "circuit_open" {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeProblem(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
