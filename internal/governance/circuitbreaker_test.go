package governance

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if !cb.AllowRequest() {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}

	cb.RecordFailure()
	if cb.AllowRequest() {
		t.Fatal("breaker still allowing requests after threshold failures")
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}
}

func TestCircuitBreakerSuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if !cb.AllowRequest() {
		t.Fatal("intervening success should have reset the consecutive counter")
	}
}

func TestCircuitBreakerSuccessClosesOpenCircuit(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	cb.RecordFailure()
	if cb.AllowRequest() {
		t.Fatal("expected open circuit")
	}

	cb.RecordSuccess()
	if !cb.AllowRequest() {
		t.Fatal("one success should restore the circuit")
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:  1,
		ResetTimeout:      10 * time.Second,
		MaxHalfOpenProbes: 1,
	})

	base := time.Now()
	cb.now = func() time.Time { return base }

	cb.RecordFailure()
	if cb.AllowRequest() {
		t.Fatal("expected open circuit")
	}

	// Before the reset timeout the circuit stays open.
	cb.now = func() time.Time { return base.Add(5 * time.Second) }
	if cb.AllowRequest() {
		t.Fatal("circuit allowed a request before reset timeout elapsed")
	}

	// After the timeout a single probe is let through.
	cb.now = func() time.Time { return base.Add(11 * time.Second) }
	if !cb.AllowRequest() {
		t.Fatal("expected half-open probe to be allowed")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open state, got %s", cb.State())
	}
	if cb.AllowRequest() {
		t.Fatal("second concurrent probe should be rejected")
	}

	// Failed probe re-opens for another full timeout.
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("failed probe should re-open, got %s", cb.State())
	}
	cb.now = func() time.Time { return base.Add(15 * time.Second) }
	if cb.AllowRequest() {
		t.Fatal("re-opened circuit honored the stale deadline")
	}
}

func TestCircuitBreakerReadAfterWriteVisibility(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 50, ResetTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.RecordFailure()
		}()
	}
	wg.Wait()

	if cb.AllowRequest() {
		t.Fatal("50 recorded failures must be visible to the next AllowRequest")
	}
}

func TestCircuitBreakerManagerScoping(t *testing.T) {
	m := NewCircuitBreakerManager(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	m.Get("acme", "segmentation").RecordFailure()

	if m.Get("acme", "segmentation").AllowRequest() {
		t.Fatal("tripped breaker should reject")
	}
	if !m.Get("acme", "credit_risk").AllowRequest() {
		t.Fatal("a different agent's breaker should be unaffected")
	}
	if !m.Get("globex", "segmentation").AllowRequest() {
		t.Fatal("a different tenant's breaker should be unaffected")
	}

	stats := m.Stats()
	if stats["acme/segmentation"].State != string(StateOpen) {
		t.Fatalf("expected open breaker in stats, got %+v", stats["acme/segmentation"])
	}
}
