package schema

// FieldDescriptor describes one field of a payload shape for the
// GET /schemas endpoints.
type FieldDescriptor struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Required   bool   `json:"required"`
	Constraint string `json:"constraint,omitempty"`
}

// Descriptor is a JSON-renderable description of one payload shape.
type Descriptor struct {
	Kind   PayloadKind       `json:"payload_type"`
	Fields []FieldDescriptor `json:"fields"`
}

// Schemas returns the full payload catalog, keyed by kind.
func Schemas() map[PayloadKind]Descriptor {
	return map[PayloadKind]Descriptor{
		KindTaskExecution:       taskExecutionDescriptor(),
		KindTaskBatch:           taskBatchDescriptor(),
		KindNotification:        notificationDescriptor(),
		KindWebhookRegistration: webhookRegistrationDescriptor(),
		KindStatusRequest:       statusRequestDescriptor(),
		KindAgentEndTask:        agentEndTaskDescriptor(),
	}
}

// Schema returns the descriptor for a single kind; ok is false for unknown kinds.
func Schema(kind PayloadKind) (Descriptor, bool) {
	d, ok := Schemas()[kind]
	return d, ok
}

func taskExecutionDescriptor() Descriptor {
	return Descriptor{
		Kind: KindTaskExecution,
		Fields: []FieldDescriptor{
			{Name: "task_id", Type: "string", Required: true, Constraint: "^[A-Za-z0-9_-]{1,100}$"},
			{Name: "task_type", Type: "string", Required: true, Constraint: "enum: code_generation|code_debugging|data_analysis|documentation|testing|deployment|configuration|monitoring|research|general"},
			{Name: "description", Type: "string", Required: true, Constraint: "length 10..10000"},
			{Name: "priority", Type: "string", Required: true, Constraint: "enum: low|normal|high|critical"},
			{Name: "orchestrator_info.agent_id", Type: "string", Required: true},
			{Name: "orchestrator_info.timestamp", Type: "string", Required: true, Constraint: "RFC3339"},
			{Name: "context", Type: "object", Required: false},
			{Name: "deadline", Type: "string", Required: false, Constraint: "RFC3339"},
			{Name: "tags", Type: "array[string]", Required: false},
		},
	}
}

func taskBatchDescriptor() Descriptor {
	return Descriptor{
		Kind: KindTaskBatch,
		Fields: []FieldDescriptor{
			{Name: "batch_id", Type: "string", Required: true, Constraint: "^[A-Za-z0-9_-]{1,100}$"},
			{Name: "tasks", Type: "array[task_execution]", Required: true, Constraint: "size 1..100"},
			{Name: "orchestrator_info.agent_id", Type: "string", Required: true},
			{Name: "orchestrator_info.timestamp", Type: "string", Required: true, Constraint: "RFC3339"},
		},
	}
}

func notificationDescriptor() Descriptor {
	return Descriptor{
		Kind: KindNotification,
		Fields: []FieldDescriptor{
			{Name: "id", Type: "string", Required: true},
			{Name: "type", Type: "string", Required: true, Constraint: "enum: task_started|task_progress|task_completed|task_failed|task_escalation|agent_status|system_alert"},
			{Name: "priority", Type: "string", Required: true, Constraint: "enum: low|medium|high|critical"},
			{Name: "source", Type: "string", Required: true},
			{Name: "target", Type: "string", Required: false},
			{Name: "timestamp", Type: "string", Required: true, Constraint: "RFC3339"},
			{Name: "data", Type: "object", Required: true, Constraint: "shape selected by type discriminator"},
			{Name: "metadata", Type: "object", Required: false},
			{Name: "retry_count", Type: "integer", Required: false},
			{Name: "expires_at", Type: "string", Required: false, Constraint: "RFC3339"},
		},
	}
}

func webhookRegistrationDescriptor() Descriptor {
	return Descriptor{
		Kind: KindWebhookRegistration,
		Fields: []FieldDescriptor{
			{Name: "url", Type: "string", Required: true, Constraint: "http(s) URL"},
			{Name: "secret", Type: "string", Required: false, Constraint: "HMAC-SHA256 signing key"},
			{Name: "event_types", Type: "array[string]", Required: true, Constraint: "event type filters, or [\"all\"]"},
			{Name: "active", Type: "boolean", Required: false},
		},
	}
}

func statusRequestDescriptor() Descriptor {
	return Descriptor{
		Kind: KindStatusRequest,
		Fields: []FieldDescriptor{
			{Name: "task_id", Type: "string", Required: true, Constraint: "^[A-Za-z0-9_-]{1,100}$"},
		},
	}
}

func agentEndTaskDescriptor() Descriptor {
	return Descriptor{
		Kind: KindAgentEndTask,
		Fields: []FieldDescriptor{
			{Name: "task_id", Type: "string", Required: true, Constraint: "^[A-Za-z0-9_-]{1,100}$"},
			{Name: "agent_id", Type: "string", Required: true},
			{Name: "completion_status", Type: "string", Required: true, Constraint: "enum: success|failure|timeout|cancelled|escalated|resource_exhausted"},
			{Name: "execution_summary", Type: "string", Required: true},
			{Name: "cleanup_actions", Type: "array[string]", Required: false},
			{Name: "next_steps", Type: "array[string]", Required: false},
			{Name: "metadata", Type: "object", Required: false},
		},
	}
}
