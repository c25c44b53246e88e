package domain

import "errors"

// Common domain errors
var (
	ErrMalformedInput    = errors.New("input cannot be normalized")
	ErrComplianceTimeout = errors.New("compliance gate timed out")
	ErrAgentNotFound     = errors.New("agent not found")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrEnvelopeInvalid   = errors.New("envelope failed schema validation")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Fatal   bool
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the caller may retry the request. Domain
// errors default to recoverable unless the agent marked them fatal.
func (e *DomainError) Recoverable() bool {
	return !e.Fatal
}
