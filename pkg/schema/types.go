// Package schema holds the canonical payload shapes exchanged between
// orchestrators and executors, a structural validator for each shape, and
// builders whose output is guaranteed to validate.
package schema

import "time"

// PayloadKind identifies one of the fixed payload shapes in the catalog.
type PayloadKind string

const (
	KindTaskExecution       PayloadKind = "task_execution"
	KindTaskBatch           PayloadKind = "task_batch"
	KindNotification        PayloadKind = "notification"
	KindWebhookRegistration PayloadKind = "webhook_registration"
	KindStatusRequest       PayloadKind = "status_request"
	KindAgentEndTask        PayloadKind = "agent_end_task"
)

// IsValid checks if the payload kind is part of the catalog.
func (k PayloadKind) IsValid() bool {
	switch k {
	case KindTaskExecution, KindTaskBatch, KindNotification,
		KindWebhookRegistration, KindStatusRequest, KindAgentEndTask:
		return true
	default:
		return false
	}
}

// TaskType defines the closed set of task categories an orchestrator may dispatch.
type TaskType string

const (
	TaskTypeCodeGeneration TaskType = "code_generation"
	TaskTypeCodeDebugging  TaskType = "code_debugging"
	TaskTypeDataAnalysis   TaskType = "data_analysis"
	TaskTypeDocumentation  TaskType = "documentation"
	TaskTypeTesting        TaskType = "testing"
	TaskTypeDeployment     TaskType = "deployment"
	TaskTypeConfiguration  TaskType = "configuration"
	TaskTypeMonitoring     TaskType = "monitoring"
	TaskTypeResearch       TaskType = "research"
	TaskTypeGeneral        TaskType = "general"
)

// IsValid checks if the task type is part of the closed set.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeCodeGeneration, TaskTypeCodeDebugging, TaskTypeDataAnalysis,
		TaskTypeDocumentation, TaskTypeTesting, TaskTypeDeployment,
		TaskTypeConfiguration, TaskTypeMonitoring, TaskTypeResearch,
		TaskTypeGeneral:
		return true
	default:
		return false
	}
}

// TaskPriority defines task dispatch priorities.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityNormal   TaskPriority = "normal"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// IsValid checks if the priority is valid.
func (p TaskPriority) IsValid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityNormal, TaskPriorityHigh, TaskPriorityCritical:
		return true
	default:
		return false
	}
}

// NotificationType defines the lifecycle notification discriminator.
// The type selects the required shape of the Data field — see validateNotificationData.
type NotificationType string

const (
	NotificationTaskStarted    NotificationType = "task_started"
	NotificationTaskProgress   NotificationType = "task_progress"
	NotificationTaskCompleted  NotificationType = "task_completed"
	NotificationTaskFailed     NotificationType = "task_failed"
	NotificationTaskEscalation NotificationType = "task_escalation"
	NotificationAgentStatus    NotificationType = "agent_status"
	NotificationSystemAlert    NotificationType = "system_alert"
)

// IsValid checks if the notification type is valid.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTaskStarted, NotificationTaskProgress, NotificationTaskCompleted,
		NotificationTaskFailed, NotificationTaskEscalation, NotificationAgentStatus,
		NotificationSystemAlert:
		return true
	default:
		return false
	}
}

// NotificationPriority defines notification urgency levels.
type NotificationPriority string

const (
	NotificationPriorityLow      NotificationPriority = "low"
	NotificationPriorityMedium   NotificationPriority = "medium"
	NotificationPriorityHigh     NotificationPriority = "high"
	NotificationPriorityCritical NotificationPriority = "critical"
)

// IsValid checks if the notification priority is valid.
func (p NotificationPriority) IsValid() bool {
	switch p {
	case NotificationPriorityLow, NotificationPriorityMedium,
		NotificationPriorityHigh, NotificationPriorityCritical:
		return true
	default:
		return false
	}
}

// EndTaskReason defines why an executor ended a task.
type EndTaskReason string

const (
	EndReasonSuccess           EndTaskReason = "success"
	EndReasonFailure           EndTaskReason = "failure"
	EndReasonTimeout           EndTaskReason = "timeout"
	EndReasonCancelled         EndTaskReason = "cancelled"
	EndReasonEscalated         EndTaskReason = "escalated"
	EndReasonResourceExhausted EndTaskReason = "resource_exhausted"
)

// IsValid checks if the end-task reason is valid.
func (r EndTaskReason) IsValid() bool {
	switch r {
	case EndReasonSuccess, EndReasonFailure, EndReasonTimeout,
		EndReasonCancelled, EndReasonEscalated, EndReasonResourceExhausted:
		return true
	default:
		return false
	}
}

// Description length bounds for task dispatch.
const (
	MinDescriptionLength = 10
	MaxDescriptionLength = 10000
)

// Batch size bounds for task batches.
const (
	MinBatchSize = 1
	MaxBatchSize = 100
)

// MaxTaskIDLength bounds the task_id field (shape is checked by taskIDPattern).
const MaxTaskIDLength = 100

// OrchestratorInfo identifies the issuing orchestrator.
type OrchestratorInfo struct {
	AgentID   string `json:"agent_id"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// TaskExecution is the payload dispatching a single task to an executor.
type TaskExecution struct {
	TaskID           string           `json:"task_id"`
	TaskType         TaskType         `json:"task_type"`
	Description      string           `json:"description"`
	Priority         TaskPriority     `json:"priority"`
	OrchestratorInfo OrchestratorInfo `json:"orchestrator_info"`
	Context          map[string]any   `json:"context,omitempty"`
	Deadline         string           `json:"deadline,omitempty"` // RFC3339, optional
	Tags             []string         `json:"tags,omitempty"`
}

// TaskBatch dispatches multiple tasks in one payload.
type TaskBatch struct {
	BatchID          string           `json:"batch_id"`
	Tasks            []TaskExecution  `json:"tasks"`
	OrchestratorInfo OrchestratorInfo `json:"orchestrator_info"`
}

// Notification is a lifecycle event flowing from executors to the orchestrator.
// Immutable after creation; the marked-processed flag is a separate record.
type Notification struct {
	ID         string               `json:"id"`
	Type       NotificationType     `json:"type"`
	Priority   NotificationPriority `json:"priority"`
	Source     string               `json:"source"`
	Target     string               `json:"target,omitempty"`
	Timestamp  string               `json:"timestamp"` // RFC3339
	Data       map[string]any       `json:"data"`
	Metadata   map[string]any       `json:"metadata,omitempty"`
	RetryCount int                  `json:"retry_count,omitempty"`
	ExpiresAt  *time.Time           `json:"expires_at,omitempty"`
}

// WebhookRegistration registers an outbound HTTP sink for lifecycle events.
type WebhookRegistration struct {
	URL        string   `json:"url"`
	Secret     string   `json:"secret,omitempty"`
	EventTypes []string `json:"event_types"` // event type filters, or ["all"]
	Active     bool     `json:"active"`
}

// StatusRequest asks for the current status of a dispatched task.
type StatusRequest struct {
	TaskID string `json:"task_id"`
}

// AgentEndTask reports task completion from an executor, triggering the
// end-task lifecycle (cleanup, notification fan-out, webhook delivery).
type AgentEndTask struct {
	TaskID           string         `json:"task_id"`
	AgentID          string         `json:"agent_id"`
	Reason           EndTaskReason  `json:"completion_status"`
	ExecutionSummary string         `json:"execution_summary"`
	CleanupActions   []string       `json:"cleanup_actions,omitempty"`
	NextSteps        []string       `json:"next_steps,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}
