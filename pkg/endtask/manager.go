// Package endtask runs the executor-side completion lifecycle: persist
// the end-task event, run cleanup handlers, fan the outcome out as a
// lifecycle notification and webhook event, and mark the event processed.
package endtask

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/relay/pkg/notify"
	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/store"
)

// EventTypeTaskLifecycle is the webhook event type completion reports fan
// out under.
const EventTypeTaskLifecycle = "task_lifecycle"

const defaultCleanupTimeout = 30 * time.Second

// CleanupHandler performs one named cleanup action for a finished task.
type CleanupHandler func(ctx context.Context, action string, event *schema.AgentEndTask) error

// Store is the slice of the event store the manager needs.
type Store interface {
	AppendEndTaskEvent(ctx context.Context, rec *store.EndTaskRecord) (int64, error)
	MarkEndTaskProcessed(ctx context.Context, id int64, webhookSent bool) error
	QueryEndTaskEvents(ctx context.Context, taskID string, limit int) ([]*store.EndTaskRecord, error)
}

// Notifier dispatches a lifecycle notification through the notification
// protocol. *notify.Service satisfies it.
type Notifier interface {
	Accept(ctx context.Context, n *schema.Notification) (*notify.Result, error)
}

// WebhookSender fans an event out to registered webhook subscribers.
// *webhook.Manager satisfies it.
type WebhookSender interface {
	Send(ctx context.Context, eventType string, payload map[string]any, targetIDs ...string) (int, error)
}

// Report summarizes one completed end-task lifecycle.
type Report struct {
	EventID         int64    `json:"event_id"`
	TaskID          string   `json:"task_id"`
	Status          string   `json:"status"`
	CleanupExecuted []string `json:"cleanup_executed"`
	CleanupFailed   []string `json:"cleanup_failed"`
	NotificationID  string   `json:"notification_id,omitempty"`
	WebhooksQueued  int      `json:"webhooks_queued"`
	WebhookSent     bool     `json:"webhook_sent"`
}

// Manager owns cleanup handlers keyed by task type and drives the
// end-task sequence.
type Manager struct {
	store    Store
	notifier Notifier
	webhooks WebhookSender

	mu       sync.RWMutex
	handlers map[string]CleanupHandler

	cleanupTimeout time.Duration
}

// NewManager creates an end-task manager. notifier and webhooks may be nil;
// the corresponding fan-out step is then skipped.
func NewManager(st Store, notifier Notifier, webhooks WebhookSender) *Manager {
	return &Manager{
		store:          st,
		notifier:       notifier,
		webhooks:       webhooks,
		handlers:       make(map[string]CleanupHandler),
		cleanupTimeout: defaultCleanupTimeout,
	}
}

// RegisterCleanupHandler binds a cleanup handler to a task type. The
// "default" task type catches events whose type has no dedicated handler.
func (m *Manager) RegisterCleanupHandler(taskType string, handler CleanupHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[taskType] = handler
}

// EndTask runs the completion lifecycle for one validated end-task event:
// persist, cleanup, notify, webhook fan-out, mark processed. Cleanup
// failures are recorded in the report but never abort the sequence.
func (m *Manager) EndTask(ctx context.Context, event *schema.AgentEndTask) (*Report, error) {
	if err := schema.Validate(event, schema.KindAgentEndTask); err != nil {
		return nil, err
	}

	rec := &store.EndTaskRecord{
		TaskID:           event.TaskID,
		AgentID:          event.AgentID,
		Reason:           string(event.Reason),
		ExecutionSummary: event.ExecutionSummary,
		CleanupActions:   event.CleanupActions,
		NextSteps:        event.NextSteps,
		Metadata:         event.Metadata,
	}
	id, err := m.store.AppendEndTaskEvent(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to persist end-task event: %w", err)
	}

	report := &Report{
		EventID:         id,
		TaskID:          event.TaskID,
		Status:          string(event.Reason),
		CleanupExecuted: []string{},
		CleanupFailed:   []string{},
	}

	m.runCleanup(ctx, event, report)

	n := m.buildNotification(event)
	if m.notifier != nil {
		if _, err := m.notifier.Accept(ctx, n); err != nil {
			slog.Warn("End-task notification dispatch failed",
				"task_id", event.TaskID, "error", err)
		} else {
			report.NotificationID = n.ID
		}
	}

	if m.webhooks != nil {
		queued, err := m.webhooks.Send(ctx, EventTypeTaskLifecycle, m.webhookPayload(event, report))
		if err != nil {
			slog.Warn("End-task webhook fan-out incomplete",
				"task_id", event.TaskID, "queued", queued, "error", err)
		}
		report.WebhooksQueued = queued
		report.WebhookSent = queued > 0
	}

	if err := m.store.MarkEndTaskProcessed(ctx, id, report.WebhookSent); err != nil {
		return nil, fmt.Errorf("failed to mark end-task processed: %w", err)
	}

	slog.Info("End-task lifecycle completed",
		"task_id", event.TaskID, "agent_id", event.AgentID,
		"completion_status", event.Reason,
		"cleanup_executed", len(report.CleanupExecuted),
		"cleanup_failed", len(report.CleanupFailed),
		"webhooks_queued", report.WebhooksQueued)
	return report, nil
}

// History returns recorded end-task events for a task, newest-first.
// Empty taskID means all tasks.
func (m *Manager) History(ctx context.Context, taskID string, limit int) ([]*store.EndTaskRecord, error) {
	return m.store.QueryEndTaskEvents(ctx, taskID, limit)
}

// runCleanup resolves the handler for the event's task type and runs every
// requested cleanup action through it, isolating panics and timeouts.
func (m *Manager) runCleanup(ctx context.Context, event *schema.AgentEndTask, report *Report) {
	if len(event.CleanupActions) == 0 {
		return
	}

	taskType := "default"
	if tt, ok := event.Metadata["task_type"].(string); ok && tt != "" {
		taskType = tt
	}

	m.mu.RLock()
	handler, ok := m.handlers[taskType]
	if !ok {
		handler, ok = m.handlers["default"]
	}
	m.mu.RUnlock()

	if !ok {
		slog.Warn("No cleanup handler registered",
			"task_id", event.TaskID, "task_type", taskType)
		report.CleanupFailed = append(report.CleanupFailed, event.CleanupActions...)
		return
	}

	for _, action := range event.CleanupActions {
		if err := m.invokeCleanup(ctx, handler, action, event); err != nil {
			slog.Warn("Cleanup action failed",
				"task_id", event.TaskID, "action", action, "error", err)
			report.CleanupFailed = append(report.CleanupFailed, action)
			continue
		}
		report.CleanupExecuted = append(report.CleanupExecuted, action)
	}
}

func (m *Manager) invokeCleanup(ctx context.Context, handler CleanupHandler, action string, event *schema.AgentEndTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup handler panicked: %v", r)
		}
	}()
	cleanupCtx, cancel := context.WithTimeout(ctx, m.cleanupTimeout)
	defer cancel()
	return handler(cleanupCtx, action, event)
}

// buildNotification converts the end-task event into a lifecycle
// notification satisfying the payload discriminator rules.
func (m *Manager) buildNotification(event *schema.AgentEndTask) *schema.Notification {
	if event.Reason == schema.EndReasonSuccess {
		return schema.NewNotification(schema.NotificationTaskCompleted,
			schema.NotificationPriorityMedium, event.AgentID, map[string]any{
				"task_id":           event.TaskID,
				"result":            "success",
				"execution_summary": event.ExecutionSummary,
				"next_steps":        event.NextSteps,
			})
	}
	return schema.NewNotification(schema.NotificationTaskFailed,
		schema.NotificationPriorityHigh, event.AgentID, map[string]any{
			"task_id":           event.TaskID,
			"error_type":        string(event.Reason),
			"error_message":     event.ExecutionSummary,
			"execution_summary": event.ExecutionSummary,
		})
}

func (m *Manager) webhookPayload(event *schema.AgentEndTask, report *Report) map[string]any {
	return map[string]any{
		"event":             EventTypeTaskLifecycle,
		"task_id":           event.TaskID,
		"agent_id":          event.AgentID,
		"completion_status": string(event.Reason),
		"execution_summary": event.ExecutionSummary,
		"cleanup_executed":  report.CleanupExecuted,
		"cleanup_failed":    report.CleanupFailed,
		"next_steps":        event.NextSteps,
	}
}
