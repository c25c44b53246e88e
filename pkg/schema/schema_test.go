package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

func baseEnvelope(status domain.Status) *domain.Envelope {
	return &domain.Envelope{
		Status:           status,
		Version:          domain.EnvelopeVersion,
		Agent:            "customer_segmentation",
		LatencyMS:        12.5,
		AnalysisID:       "a-1",
		TenantID:         "acme",
		Timestamp:        "2026-08-30T12:00:00Z",
		DecisionTrace:    []string{"circuit_breaker_pass", "input_normalized"},
		ReasonCodes:      []domain.ReasonCode{},
		ComplianceStatus: "pass",
		DataQuality: domain.DataQuality{
			QualityScore:          90,
			CompletenessPct:       100,
			Confidence:            0.9,
			Issues:                []string{},
			SufficientForAnalysis: true,
		},
	}
}

func TestValidatorAcceptsAllShapes(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	success := baseEnvelope(domain.StatusSuccess)
	assert.NoError(t, v.Validate(success))

	validation := baseEnvelope(domain.StatusValidationError)
	validation.ValidationErrors = []string{"missing required field: users"}
	assert.NoError(t, v.Validate(validation))

	blocked := baseEnvelope(domain.StatusComplianceBlocked)
	blocked.BlockingIssues = []string{"GDPR: personal data present without recorded consent"}
	blocked.ComplianceStatus = "blocked"
	assert.NoError(t, v.Validate(blocked))

	failed := baseEnvelope(domain.StatusError)
	failed.Error = &domain.ErrorDetail{Type: "circuit_open", Message: "circuit breaker is open", Recoverable: true}
	assert.NoError(t, v.Validate(failed))
}

func TestValidatorRejectsShapeMismatch(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	// validation_error without validation_errors is not a canonical shape.
	bad := baseEnvelope(domain.StatusValidationError)
	err = v.Validate(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEnvelopeInvalid)

	// error shape without the error detail object.
	bad = baseEnvelope(domain.StatusError)
	assert.ErrorIs(t, v.Validate(bad), domain.ErrEnvelopeInvalid)
}

func TestValidatorRejectsEmptyTrace(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	bad := baseEnvelope(domain.StatusSuccess)
	bad.DecisionTrace = []string{}
	assert.ErrorIs(t, v.Validate(bad), domain.ErrEnvelopeInvalid)
}

func TestValidatorRejectsUnknownStatus(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	bad := baseEnvelope(domain.Status("partial"))
	assert.ErrorIs(t, v.Validate(bad), domain.ErrEnvelopeInvalid)
}
