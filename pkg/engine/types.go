// Package engine drives action execution: security and approval gates,
// rate limiting, input validation, adapter invocation under a deadline,
// retries, and a full audit trail for every state transition.
package engine

import (
	"errors"
	"time"
)

// Sentinel errors surfaced to callers.
var (
	// ErrUnknownAction means no definition is registered for the name.
	ErrUnknownAction = errors.New("unknown action")
	// ErrCancelled means the execution was cancelled by a user or shutdown.
	ErrCancelled = errors.New("execution cancelled")
	// ErrNotFound means no execution exists with the given id.
	ErrNotFound = errors.New("execution not found")
)

// Status is the lifecycle state of one execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// ExecutionContext is the record of one execution. Each context is owned
// by the driver goroutine that created it; readers get copies.
type ExecutionContext struct {
	ExecutionID   string         `json:"execution_id"`
	ActionName    string         `json:"action_name"`
	UserID        string         `json:"user_id,omitempty"`
	Input         map[string]any `json:"input"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	RetryAttempts int            `json:"retry_attempts"`
}

// Stats is a point-in-time aggregate over all executions the engine has
// seen since start.
type Stats struct {
	CountsByStatus map[Status]int `json:"counts_by_status"`
	SuccessRate    float64        `json:"success_rate"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
	TopActions     []ActionCount  `json:"top_actions"`
}

// ActionCount pairs an action with its execution count.
type ActionCount struct {
	ActionName string `json:"action_name"`
	Count      int    `json:"count"`
}
