package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/relay/pkg/notify"
	"github.com/codeready-toolchain/relay/pkg/schema"
)

// TaskState is the dispatch-side view of one task's lifecycle, assembled
// from the dispatch call and the lifecycle notifications executors report.
type TaskState struct {
	TaskID       string     `json:"task_id"`
	ExecutionID  string     `json:"execution_id"`
	TaskType     string     `json:"task_type"`
	Status       string     `json:"status"`
	Progress     float64    `json:"progress_percentage,omitempty"`
	CurrentStep  string     `json:"current_step,omitempty"`
	Error        string     `json:"error,omitempty"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TaskTracker holds transient dispatch state keyed by task id. Durable
// history lives in the event store; this view answers status polls.
type TaskTracker struct {
	mu    sync.RWMutex
	tasks map[string]*TaskState

	now func() time.Time
}

func NewTaskTracker() *TaskTracker {
	return &TaskTracker{
		tasks: make(map[string]*TaskState),
		now:   time.Now,
	}
}

// Attach registers the tracker as a notification handler so lifecycle
// events reported by executors update the dispatch-side view.
func (t *TaskTracker) Attach(svc *notify.Service) {
	svc.RegisterHandler(&notify.Handler{
		ID:     "task-status-tracker",
		Active: true,
		Predicate: func(n *schema.Notification) bool {
			switch n.Type {
			case schema.NotificationTaskStarted, schema.NotificationTaskProgress,
				schema.NotificationTaskCompleted, schema.NotificationTaskFailed:
				_, ok := n.Data["task_id"].(string)
				return ok
			default:
				return false
			}
		},
		Handle: func(_ context.Context, n *schema.Notification) error {
			t.apply(n)
			return nil
		},
	})
}

// Dispatch records a newly dispatched task and assigns its execution id.
func (t *TaskTracker) Dispatch(task *schema.TaskExecution) *TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	state := &TaskState{
		TaskID:       task.TaskID,
		ExecutionID:  uuid.New().String(),
		TaskType:     string(task.TaskType),
		Status:       "dispatched",
		DispatchedAt: now,
		UpdatedAt:    now,
	}
	t.tasks[task.TaskID] = state
	return state
}

// Get returns a copy of the tracked state, nil when unknown.
func (t *TaskTracker) Get(taskID string) *TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.tasks[taskID]
	if !ok {
		return nil
	}
	cp := *state
	return &cp
}

func (t *TaskTracker) apply(n *schema.Notification) {
	taskID, _ := n.Data["task_id"].(string)
	if taskID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	state, ok := t.tasks[taskID]
	if !ok {
		// Executors may report tasks dispatched before a restart.
		state = &TaskState{TaskID: taskID, DispatchedAt: now}
		t.tasks[taskID] = state
	}
	state.UpdatedAt = now

	switch n.Type {
	case schema.NotificationTaskStarted:
		state.Status = "running"
	case schema.NotificationTaskProgress:
		state.Status = "running"
		if pct, ok := n.Data["progress_percentage"].(float64); ok {
			state.Progress = pct
		}
		if step, ok := n.Data["current_step"].(string); ok {
			state.CurrentStep = step
		}
	case schema.NotificationTaskCompleted:
		state.Status = "completed"
		state.Progress = 100
		state.CompletedAt = &now
	case schema.NotificationTaskFailed:
		state.Status = "failed"
		if msg, ok := n.Data["error_message"].(string); ok {
			state.Error = msg
		}
		state.CompletedAt = &now
	}
}
