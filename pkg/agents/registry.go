// Package agents defines the pluggable agent core contract and the registry
// the pipeline selects cores from. An agent core is a pure domain function;
// the pipeline wraps it with every cross-cutting concern and only requires
// that its result be a flat mapping the enrichment layers can read metrics
// from.
package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Core is the swappable pure domain function at the center of the pipeline.
type Core func(ctx context.Context, input map[string]any) (map[string]any, error)

// Kind selects which enrichment branch applies to an agent's results.
type Kind string

const (
	// KindOrchestrator agents emit candidate recommendations; their results
	// flow through the authority layer.
	KindOrchestrator Kind = "orchestrator"
	// KindRisk agents emit a scalar score plus factors; their results flow
	// through the reason codes layer.
	KindRisk Kind = "risk"
)

// Agent couples a core with its pipeline contract: the fields its input must
// carry and the regulations its payloads are checked against.
type Agent struct {
	ID             string
	Version        string
	Kind           Kind
	RequiredFields []string
	Regulations    []string
	Core           Core
}

// Registry is a concurrency-safe name → agent mapping.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds or replaces an agent.
func (r *Registry) Register(agent Agent) error {
	if agent.ID == "" {
		return fmt.Errorf("agent id must not be empty")
	}
	if agent.Core == nil {
		return fmt.Errorf("agent %q has no core", agent.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
	return nil
}

// Get returns the agent registered under id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	return agent, ok
}

// IDs returns the registered agent ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
