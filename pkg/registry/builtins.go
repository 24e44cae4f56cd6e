package registry

import (
	"time"

	"github.com/codeready-toolchain/relay/pkg/security"
)

// Adapter identifiers the builtin actions bind to. The engine resolves
// these against the adapter registry at execution time.
const (
	AdapterChat          = "chat"
	AdapterEmail         = "email"
	AdapterEscalation    = "escalation"
	AdapterTicket        = "ticket"
	AdapterWorkflow      = "workflow"
	AdapterDocumentation = "documentation"
	AdapterMonitoring    = "monitoring"
	AdapterSecurityScan  = "security_scan"
)

// RegisterBuiltins installs the canonical action set. Safe to call more
// than once.
func RegisterBuiltins(r *Registry) {
	for _, def := range builtinDefinitions() {
		r.Register(def)
	}
}

func builtinDefinitions() []*ActionDefinition {
	return []*ActionDefinition{
		{
			Name:        "escalate_incident",
			Description: "Escalate an incident to the on-call chain with context",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "incident_id", Type: TypeString, Required: true},
				{Name: "severity", Type: TypeString, Required: true, Enum: []string{"low", "medium", "high", "critical"}},
				{Name: "summary", Type: TypeString, Required: true},
				{Name: "details", Type: TypeObject},
			}},
			OutputFields:  []string{"escalation_id", "notified"},
			Adapter:       AdapterEscalation,
			Category:      CategoryIncident,
			SecurityLevel: security.LevelElevated,
			RateLimit:     10,
			Timeout:       30 * time.Second,
			RetryCount:    2,
			Examples: []map[string]any{
				{"incident_id": "INC-2041", "severity": "high", "summary": "API error rate above 5%"},
			},
		},
		{
			Name:        "request_approval",
			Description: "Ask a set of approvers to authorize a gated action",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "action_name", Type: TypeString, Required: true},
				{Name: "approvers", Type: TypeArray, Required: true},
				{Name: "justification", Type: TypeString, Required: true},
				{Name: "input", Type: TypeObject},
			}},
			OutputFields:  []string{"approval_id", "status"},
			Adapter:       AdapterChat,
			Category:      CategoryGovernance,
			SecurityLevel: security.LevelStandard,
			RateLimit:     30,
			Timeout:       15 * time.Second,
			RetryCount:    1,
			Examples: []map[string]any{
				{"action_name": "trigger_workflow", "approvers": []string{"oncall-lead"}, "justification": "prod redeploy"},
			},
		},
		{
			Name:        "send_email",
			Description: "Send an email through the configured SMTP relay",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "to", Type: TypeString, Required: true},
				{Name: "subject", Type: TypeString, Required: true},
				{Name: "body", Type: TypeString, Required: true},
				{Name: "cc", Type: TypeArray},
			}},
			OutputFields:  []string{"message_id"},
			Adapter:       AdapterEmail,
			Category:      CategoryCommunication,
			SecurityLevel: security.LevelStandard,
			RateLimit:     60,
			Timeout:       30 * time.Second,
			RetryCount:    3,
			Examples: []map[string]any{
				{"to": "ops@example.com", "subject": "Nightly report", "body": "All checks green."},
			},
		},
		{
			Name:        "send_chat_message",
			Description: "Post a message to a chat channel",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "channel", Type: TypeString, Required: true},
				{Name: "message", Type: TypeString, Required: true},
				{Name: "thread_ts", Type: TypeString},
			}},
			OutputFields:  []string{"channel", "timestamp"},
			Adapter:       AdapterChat,
			Category:      CategoryCommunication,
			SecurityLevel: security.LevelStandard,
			RateLimit:     120,
			Timeout:       15 * time.Second,
			RetryCount:    3,
			Examples: []map[string]any{
				{"channel": "#sre-alerts", "message": "Deploy of relay v2.3 complete"},
			},
		},
		{
			Name:        "trigger_workflow",
			Description: "Start a named automation workflow",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "workflow_id", Type: TypeString, Required: true},
				{Name: "parameters", Type: TypeObject},
				{Name: "environment", Type: TypeString, Enum: []string{"dev", "staging", "prod"}},
			}},
			OutputFields:     []string{"run_id", "status"},
			Adapter:          AdapterWorkflow,
			Category:         CategoryWorkflow,
			SecurityLevel:    security.LevelElevated,
			RateLimit:        20,
			Timeout:          60 * time.Second,
			RetryCount:       2,
			RequiresApproval: true,
			Examples: []map[string]any{
				{"workflow_id": "redeploy-api", "environment": "prod"},
			},
		},
		{
			Name:        "stop_workflow",
			Description: "Stop a running automation workflow",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "run_id", Type: TypeString, Required: true},
				{Name: "reason", Type: TypeString, Required: true},
			}},
			OutputFields:     []string{"run_id", "status"},
			Adapter:          AdapterWorkflow,
			Category:         CategoryWorkflow,
			SecurityLevel:    security.LevelElevated,
			RateLimit:        20,
			Timeout:          30 * time.Second,
			RetryCount:       2,
			RequiresApproval: true,
			Examples: []map[string]any{
				{"run_id": "run-8812", "reason": "wrong target environment"},
			},
		},
		{
			Name:        "create_ticket",
			Description: "Open a ticket in the issue tracker",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "title", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString, Required: true},
				{Name: "priority", Type: TypeString, Enum: []string{"low", "medium", "high", "critical"}},
				{Name: "labels", Type: TypeArray},
			}},
			OutputFields:  []string{"ticket_id", "url"},
			Adapter:       AdapterTicket,
			Category:      CategoryIncident,
			SecurityLevel: security.LevelStandard,
			RateLimit:     30,
			Timeout:       30 * time.Second,
			RetryCount:    3,
			Examples: []map[string]any{
				{"title": "Investigate pod restarts", "description": "payments-api restarted 14 times in 1h", "priority": "high"},
			},
		},
		{
			Name:        "update_documentation",
			Description: "Append or amend a runbook or knowledge-base page",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "page_id", Type: TypeString, Required: true},
				{Name: "content", Type: TypeString, Required: true},
				{Name: "mode", Type: TypeString, Enum: []string{"append", "replace"}},
			}},
			OutputFields:  []string{"page_id", "revision"},
			Adapter:       AdapterDocumentation,
			Category:      CategoryDocumentation,
			SecurityLevel: security.LevelStandard,
			RateLimit:     30,
			Timeout:       30 * time.Second,
			RetryCount:    3,
			Examples: []map[string]any{
				{"page_id": "runbooks/api-errors", "content": "## Mitigation\nScale the worker pool first.", "mode": "append"},
			},
		},
		{
			Name:        "create_alert",
			Description: "Create an alert rule in the monitoring system",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "query", Type: TypeString, Required: true},
				{Name: "threshold", Type: TypeNumber, Required: true},
				{Name: "duration_seconds", Type: TypeInteger},
			}},
			OutputFields:  []string{"alert_id"},
			Adapter:       AdapterMonitoring,
			Category:      CategoryMonitoring,
			SecurityLevel: security.LevelElevated,
			RateLimit:     15,
			Timeout:       30 * time.Second,
			RetryCount:    2,
			Examples: []map[string]any{
				{"name": "api-5xx-rate", "query": "rate(http_errors_total[5m])", "threshold": 0.05},
			},
		},
		{
			Name:        "trigger_security_scan",
			Description: "Run a security scan against a target service",
			InputSchema: InputSchema{Fields: []InputField{
				{Name: "target", Type: TypeString, Required: true},
				{Name: "scan_type", Type: TypeString, Required: true, Enum: []string{"dependency", "container", "dynamic"}},
				{Name: "notify_channel", Type: TypeString},
			}},
			OutputFields:     []string{"scan_id", "status"},
			Adapter:          AdapterSecurityScan,
			Category:         CategorySecurity,
			SecurityLevel:    security.LevelAdmin,
			RateLimit:        5,
			Timeout:          60 * time.Second,
			RetryCount:       1,
			RequiresApproval: true,
			Examples: []map[string]any{
				{"target": "payments-api", "scan_type": "container"},
			},
		},
	}
}
