// Package audit produces append-only trail entries correlating a pipeline
// invocation's input and output through truncated canonical hashes. Entries
// are never mutated once generated; the trail only grows.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterai/arbiter-oss/pkg/canonical"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Layer generates audit trail entries.
type Layer struct {
	now func() time.Time
}

// New creates an audit trail layer.
func New() *Layer {
	return &Layer{now: time.Now}
}

// Generate builds one trail entry for an invocation. Hashes come from the
// canonical serialization, so two logically identical payloads always
// correlate to the same hash regardless of key insertion order.
func (l *Layer) Generate(step string, input, output map[string]any, agentID, version, tenantID string) (domain.AuditEntry, error) {
	inputHash, err := canonical.TruncatedHash(input)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("hash input: %w", err)
	}
	outputHash, err := canonical.TruncatedHash(output)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("hash output: %w", err)
	}

	return domain.AuditEntry{
		EntryID:    uuid.NewString(),
		Step:       step,
		Timestamp:  l.now().UTC().Format(time.RFC3339Nano),
		InputHash:  inputHash,
		OutputHash: outputHash,
		AgentID:    agentID,
		Version:    version,
		TenantID:   tenantID,
	}, nil
}
