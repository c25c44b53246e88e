package pipeline

import (
	"fmt"
	"sort"

	"github.com/arbiterai/arbiter-oss/pkg/canonical"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// normalize unwraps one level of input_data nesting, stamps the tenant ID
// into the payload, and computes the canonical content hash. Inputs that
// cannot be hashed (non-finite numbers, unsupported value types) are
// malformed and non-recoverable.
func normalize(input map[string]any, tenantID string) (map[string]any, string, error) {
	if input == nil {
		return nil, "", fmt.Errorf("%w: input is null", domain.ErrMalformedInput)
	}

	payload := input
	if wrapped, ok := input["input_data"].(map[string]any); ok {
		payload = wrapped
	}

	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["tenant_id"] = tenantID

	hash, err := canonical.Hash(out)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	return out, hash, nil
}

// validateRequired reports one human-readable message per missing or null
// required field, sorted for deterministic envelopes.
func validateRequired(payload map[string]any, required []string) []string {
	var msgs []string
	for _, field := range required {
		v, ok := payload[field]
		if !ok || v == nil {
			msgs = append(msgs, fmt.Sprintf("missing required field: %s", field))
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			msgs = append(msgs, fmt.Sprintf("required field is empty: %s", field))
		}
	}
	sort.Strings(msgs)
	return msgs
}
