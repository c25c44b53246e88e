// Package schema pins the four canonical response envelope shapes to
// explicit, versioned JSON Schemas and validates envelopes against them
// before serialization. A schema violation here means a pipeline bug, not a
// caller error.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// common fields every canonical shape must populate.
const commonProperties = `
	"status": {"type": "string", "enum": ["success", "validation_error", "compliance_blocked", "error"]},
	"version": {"type": "string"},
	"agent": {"type": "string"},
	"latency_ms": {"type": "number", "minimum": 0},
	"actionable": {"type": "boolean"},
	"analysis_id": {"type": "string", "minLength": 1},
	"tenant_id": {"type": "string", "minLength": 1},
	"timestamp": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9:.]+Z$"},
	"decision_trace": {"type": "array", "items": {"type": "string"}, "minItems": 1},
	"reason_codes": {"type": "array", "items": {"type": "object", "required": ["code", "category", "description"]}},
	"compliance_status": {"type": "string"},
	"_data_quality": {
		"type": "object",
		"required": ["quality_score", "completeness_pct", "confidence", "issues", "sufficient_for_analysis"],
		"properties": {
			"quality_score": {"type": "number", "minimum": 0, "maximum": 100},
			"completeness_pct": {"type": "number", "minimum": 0, "maximum": 100},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1},
			"issues": {"type": "array", "items": {"type": "string"}},
			"sufficient_for_analysis": {"type": "boolean"}
		}
	}
`

const commonRequired = `"status", "version", "agent", "latency_ms", "analysis_id", "tenant_id", "timestamp", "decision_trace", "reason_codes", "compliance_status", "_data_quality"`

func shapeSchema(extraProperties, extraRequired string) string {
	required := commonRequired
	if extraRequired != "" {
		required += ", " + extraRequired
	}
	properties := commonProperties
	if extraProperties != "" {
		properties += ",\n" + extraProperties
	}
	return fmt.Sprintf(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": [%s],
	"properties": {%s}
}`, required, properties)
}

var shapeSchemas = map[domain.Status]string{
	domain.StatusSuccess: shapeSchema("", ""),
	domain.StatusValidationError: shapeSchema(
		`"validation_errors": {"type": "array", "items": {"type": "string"}, "minItems": 1}`,
		`"validation_errors"`),
	domain.StatusComplianceBlocked: shapeSchema(
		`"blocking_issues": {"type": "array", "items": {"type": "string"}, "minItems": 1}`,
		`"blocking_issues"`),
	domain.StatusError: shapeSchema(
		`"error": {
			"type": "object",
			"required": ["type", "message", "recoverable", "fallback_used"],
			"properties": {
				"type": {"type": "string", "minLength": 1},
				"message": {"type": "string"},
				"recoverable": {"type": "boolean"},
				"fallback_used": {"type": "boolean"}
			}
		}`,
		`"error"`),
}

// Validator holds the compiled envelope schemas.
type Validator struct {
	schemas map[domain.Status]*gojsonschema.Schema
}

// NewValidator compiles the four shape schemas. Compilation failure is a
// programming error and surfaces at startup.
func NewValidator() (*Validator, error) {
	compiled := make(map[domain.Status]*gojsonschema.Schema, len(shapeSchemas))
	for status, raw := range shapeSchemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s envelope schema: %w", status, err)
		}
		compiled[status] = s
	}
	return &Validator{schemas: compiled}, nil
}

// Validate checks env against the schema for its status. It returns
// domain.ErrEnvelopeInvalid wrapped with the violation list on failure.
func (v *Validator) Validate(env *domain.Envelope) error {
	s, ok := v.schemas[env.Status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", domain.ErrEnvelopeInvalid, env.Status)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate envelope: %w", err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return fmt.Errorf("%w (%s shape): %s", domain.ErrEnvelopeInvalid, env.Status, strings.Join(issues, "; "))
}
