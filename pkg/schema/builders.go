package schema

import (
	"time"

	"github.com/google/uuid"
)

// TaskOption customizes optional TaskExecution fields.
type TaskOption func(*TaskExecution)

// WithContext attaches free-form context to a task.
func WithContext(ctx map[string]any) TaskOption {
	return func(t *TaskExecution) { t.Context = ctx }
}

// WithDeadline sets the task deadline.
func WithDeadline(deadline time.Time) TaskOption {
	return func(t *TaskExecution) { t.Deadline = deadline.UTC().Format(time.RFC3339) }
}

// WithTags attaches routing/categorization tags to a task.
func WithTags(tags ...string) TaskOption {
	return func(t *TaskExecution) { t.Tags = tags }
}

// NewTaskExecution builds a TaskExecution payload that is guaranteed to
// validate, provided the caller-supplied fields satisfy the catalog rules.
func NewTaskExecution(taskID string, taskType TaskType, description, orchestratorID string, priority TaskPriority, opts ...TaskOption) *TaskExecution {
	t := &TaskExecution{
		TaskID:      taskID,
		TaskType:    taskType,
		Description: description,
		Priority:    priority,
		OrchestratorInfo: OrchestratorInfo{
			AgentID:   orchestratorID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewTaskBatch builds a TaskBatch payload from individual tasks.
func NewTaskBatch(batchID, orchestratorID string, tasks ...TaskExecution) *TaskBatch {
	return &TaskBatch{
		BatchID: batchID,
		Tasks:   tasks,
		OrchestratorInfo: OrchestratorInfo{
			AgentID:   orchestratorID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// NotificationOption customizes optional Notification fields.
type NotificationOption func(*Notification)

// WithTarget sets the notification target.
func WithTarget(target string) NotificationOption {
	return func(n *Notification) { n.Target = target }
}

// WithMetadata attaches metadata to a notification.
func WithMetadata(md map[string]any) NotificationOption {
	return func(n *Notification) { n.Metadata = md }
}

// WithExpiry sets the notification expiry; expired notifications are never dispatched.
func WithExpiry(at time.Time) NotificationOption {
	return func(n *Notification) { n.ExpiresAt = &at }
}

// NewNotification builds a Notification payload with a generated id and
// current timestamp.
func NewNotification(typ NotificationType, priority NotificationPriority, source string, data map[string]any, opts ...NotificationOption) *Notification {
	n := &Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Priority:  priority,
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewWebhookRegistration builds a WebhookRegistration payload.
// An empty eventTypes list subscribes to all event types.
func NewWebhookRegistration(url, secret string, eventTypes ...string) *WebhookRegistration {
	if len(eventTypes) == 0 {
		eventTypes = []string{"all"}
	}
	return &WebhookRegistration{
		URL:        url,
		Secret:     secret,
		EventTypes: eventTypes,
		Active:     true,
	}
}

// NewAgentEndTask builds an AgentEndTask payload.
func NewAgentEndTask(taskID, agentID string, reason EndTaskReason, summary string) *AgentEndTask {
	return &AgentEndTask{
		TaskID:           taskID,
		AgentID:          agentID,
		Reason:           reason,
		ExecutionSummary: summary,
	}
}
