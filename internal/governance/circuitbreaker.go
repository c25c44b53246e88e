package governance

import (
	"sync"
	"time"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed indicates the circuit is closed and requests are allowed.
	StateClosed CircuitBreakerState = "closed"
	// StateOpen indicates the circuit is open and requests are rejected.
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen indicates the circuit is testing if the service has recovered.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig defines thresholds for circuit breaking.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold int `yaml:"failure_threshold"`
	// ResetTimeout is how long the circuit stays open before transitioning
	// to half-open. Without it a tripped breaker would stay open forever,
	// so construction enforces a positive value.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	// MaxHalfOpenProbes is the number of test requests allowed in half-open
	// state before further requests are rejected again.
	MaxHalfOpenProbes int `yaml:"max_half_open_probes"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		MaxHalfOpenProbes: 1,
	}
}

// CircuitBreaker gates pipeline execution based on recent failure history.
//
// State machine: Closed allows requests; FailureThreshold consecutive
// recorded failures with no intervening success opens the circuit; an open
// circuit rejects requests until ResetTimeout elapses, at which point a
// bounded number of half-open probes are allowed. Any recorded success
// closes the circuit from any state; a failed probe re-opens it for another
// full timeout.
//
// The breaker is the only shared mutable state across concurrent
// invocations; all transitions happen under one mutex so a failure recorded
// by one caller is visible to the very next AllowRequest from any caller.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig

	state               CircuitBreakerState
	consecutiveFailures int
	totalFailures       int
	totalSuccesses      int
	halfOpenProbes      int
	openUntil           time.Time
	lastStateChange     time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the provided configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.MaxHalfOpenProbes <= 0 {
		config.MaxHalfOpenProbes = 1
	}

	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// AllowRequest reports whether a new request may proceed. Callers must treat
// a false return as a recoverable "service unavailable" condition, not a
// domain error.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.After(cb.openUntil) {
			cb.transitionToLocked(StateHalfOpen, now)
			cb.halfOpenProbes++
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenProbes < cb.config.MaxHalfOpenProbes {
			cb.halfOpenProbes++
			return true
		}
		return false
	}
	return false
}

// RecordSuccess notes a successful invocation and closes the circuit from
// any state.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++
	cb.consecutiveFailures = 0
	if cb.state != StateClosed {
		cb.transitionToLocked(StateClosed, cb.now())
	}
}

// RecordFailure notes a failed invocation. The circuit opens after
// FailureThreshold consecutive failures, or immediately when a half-open
// probe fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.totalFailures++
	cb.consecutiveFailures++

	switch cb.state {
	case StateHalfOpen:
		cb.transitionToLocked(StateOpen, now)
	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionToLocked(StateOpen, now)
		}
	}
}

func (cb *CircuitBreaker) transitionToLocked(newState CircuitBreakerState, now time.Time) {
	if cb.state == newState {
		return
	}

	cb.state = newState
	cb.lastStateChange = now
	cb.halfOpenProbes = 0

	switch newState {
	case StateOpen:
		cb.openUntil = now.Add(cb.config.ResetTimeout)
	case StateHalfOpen, StateClosed:
		cb.openUntil = time.Time{}
		cb.consecutiveFailures = 0
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns current circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:               string(cb.state),
		ConsecutiveFailures: cb.consecutiveFailures,
		Failures:            cb.totalFailures,
		Successes:           cb.totalSuccesses,
		FailureThreshold:    cb.config.FailureThreshold,
		ResetTimeout:        cb.config.ResetTimeout.String(),
		LastStateChange:     cb.lastStateChange.UTC().Format(time.RFC3339),
	}
}

// CircuitBreakerStats exposes circuit breaker status information.
type CircuitBreakerStats struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Failures            int    `json:"failures"`
	Successes           int    `json:"successes"`
	FailureThreshold    int    `json:"failure_threshold"`
	ResetTimeout        string `json:"reset_timeout"`
	LastStateChange     string `json:"last_state_change"`
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionToLocked(StateClosed, cb.now())
	cb.consecutiveFailures = 0
	cb.totalFailures = 0
	cb.totalSuccesses = 0
}

// CircuitBreakerManager scopes circuit breakers to a (tenant, agent) key so
// one noisy tenant cannot trip the breaker for everyone else.
type CircuitBreakerManager struct {
	mu       sync.RWMutex
	config   CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerManager creates a manager that hands out breakers built
// from the supplied configuration.
func NewCircuitBreakerManager(config CircuitBreakerConfig) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get retrieves the circuit breaker for a (tenant, agent) pair, creating one
// if needed.
func (m *CircuitBreakerManager) Get(tenantID, agentID string) *CircuitBreaker {
	key := tenantID + "/" + agentID

	m.mu.RLock()
	cb, exists := m.breakers[key]
	m.mu.RUnlock()

	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, exists := m.breakers[key]; exists {
		return cb
	}

	cb = NewCircuitBreaker(m.config)
	m.breakers[key] = cb
	return cb
}

// Stats returns statistics for all circuit breakers.
func (m *CircuitBreakerManager) Stats() map[string]CircuitBreakerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats, len(m.breakers))
	for key, cb := range m.breakers {
		stats[key] = cb.Stats()
	}
	return stats
}

// ResetAll resets all circuit breakers to closed state.
func (m *CircuitBreakerManager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cb := range m.breakers {
		cb.Reset()
	}
}
