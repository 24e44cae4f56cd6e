package security

import (
	"fmt"
	"strings"
)

// dangerousSubstrings are rejected anywhere in string input, matched
// case-insensitively. Inputs flow into adapters that talk to downstream
// systems, so anything resembling code injection fails closed.
var dangerousSubstrings = []string{
	"eval(",
	"exec(",
	"__import__",
	"<script",
	"javascript:",
	"data:text/html",
	"os.system(",
	"subprocess.",
}

// SanitizeInput rejects input containing dangerous substrings, scanning
// nested maps and slices recursively. Map keys are scanned as well as
// values. Returns ErrUnsafeInput wrapped with the offending path.
func SanitizeInput(input map[string]any) error {
	return sanitizeValue("", input)
}

func sanitizeValue(path string, v any) error {
	switch val := v.(type) {
	case string:
		return sanitizeString(path, val)
	case map[string]any:
		for key, child := range val {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if err := sanitizeString(childPath, key); err != nil {
				return err
			}
			if err := sanitizeValue(childPath, child); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range val {
			if err := sanitizeValue(fmt.Sprintf("%s[%d]", path, i), child); err != nil {
				return err
			}
		}
	case []string:
		for i, child := range val {
			if err := sanitizeString(fmt.Sprintf("%s[%d]", path, i), child); err != nil {
				return err
			}
		}
	}
	return nil
}

func sanitizeString(path, s string) error {
	lower := strings.ToLower(s)
	for _, pattern := range dangerousSubstrings {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: %q at %s", ErrUnsafeInput, pattern, path)
		}
	}
	return nil
}
