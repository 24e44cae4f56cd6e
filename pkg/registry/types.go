// Package registry holds the declarative catalog of executable actions:
// input schema, adapter binding, and security policy knobs for each. The
// engine consults it on every execution.
package registry

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/security"
)

// Category groups related actions for discovery.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryIncident      Category = "incident"
	CategoryWorkflow      Category = "workflow"
	CategoryDocumentation Category = "documentation"
	CategoryMonitoring    Category = "monitoring"
	CategorySecurity      Category = "security"
	CategoryGovernance    Category = "governance"
)

// FieldType is the JSON type expected for an input field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// InputField constrains one field of an action's input.
type InputField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Enum     []string  `json:"enum,omitempty"`
}

// InputSchema is the shape an action's input must satisfy.
type InputSchema struct {
	Fields []InputField `json:"fields"`
}

// Validate checks input against the schema, reporting the first offending
// field in declaration order as a *schema.ValidationError.
func (s InputSchema) Validate(input map[string]any) error {
	for _, field := range s.Fields {
		value, present := input[field.Name]
		if !present || value == nil {
			if field.Required {
				return &schema.ValidationError{
					Path:    field.Name,
					Message: "required field is missing",
				}
			}
			continue
		}
		if !typeMatches(field.Type, value) {
			return &schema.ValidationError{
				Path:    field.Name,
				Message: fmt.Sprintf("expected %s", field.Type),
			}
		}
		if len(field.Enum) > 0 {
			str, _ := value.(string)
			if !contains(field.Enum, str) {
				return &schema.ValidationError{
					Path:    field.Name,
					Message: fmt.Sprintf("must be one of %v", field.Enum),
				}
			}
		}
	}
	return nil
}

func typeMatches(t FieldType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case TypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	}
	return false
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ActionDefinition is one registered action. Immutable after registration.
type ActionDefinition struct {
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	InputSchema      InputSchema      `json:"input_schema"`
	OutputFields     []string         `json:"output_fields,omitempty"`
	Adapter          string           `json:"adapter"`
	Category         Category         `json:"category"`
	SecurityLevel    security.Level   `json:"security_level"`
	RateLimit        int              `json:"rate_limit"` // executions per minute, global
	Timeout          time.Duration    `json:"timeout"`
	RetryCount       int              `json:"retry_count"`
	RequiresApproval bool             `json:"requires_approval"`
	Examples         []map[string]any `json:"examples,omitempty"`
}
