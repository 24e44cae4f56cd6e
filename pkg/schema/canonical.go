package schema

import (
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes v deterministically: object keys sorted
// lexicographically, no insignificant whitespace. Both HMAC signing and
// approval-key derivation depend on sender and receiver producing identical
// bytes for equal values.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	// Round-trip through untyped values so struct field order does not leak
	// into the output; encoding/json emits map keys sorted.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return out, nil
}
