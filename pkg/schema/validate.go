package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// taskIDPattern constrains task identifiers to URL- and log-safe characters.
var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// ValidationError reports the first offending field of a payload.
// Fields are reported in lexicographic path order so the same malformed
// payload always yields the same error.
type ValidationError struct {
	Path    string // dotted field path, e.g. "orchestrator_info.agent_id"
	Message string
	Pointer string // schema pointer, e.g. "task_execution/task_id"
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error at %s: %s", e.Path, e.Message)
}

// fieldError is an intermediate record collected during validation.
type fieldError struct {
	path    string
	message string
}

// firstError sorts collected field errors by path and returns the first one
// wrapped as a ValidationError, or nil when the payload is valid.
func firstError(kind PayloadKind, errs []fieldError) error {
	if len(errs) == 0 {
		return nil
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].path < errs[j].path })
	return &ValidationError{
		Path:    errs[0].path,
		Message: errs[0].message,
		Pointer: string(kind) + "/" + errs[0].path,
	}
}

// Validate checks a payload against the shape registered for kind.
// Pure function: no side effects, deterministic error selection.
func Validate(payload any, kind PayloadKind) error {
	if !kind.IsValid() {
		return &ValidationError{Path: "kind", Message: fmt.Sprintf("unknown payload kind %q", kind)}
	}

	switch p := payload.(type) {
	case *TaskExecution:
		return firstError(kind, validateTaskExecution(p, ""))
	case TaskExecution:
		return firstError(kind, validateTaskExecution(&p, ""))
	case *TaskBatch:
		return firstError(kind, validateTaskBatch(p))
	case TaskBatch:
		return firstError(kind, validateTaskBatch(&p))
	case *Notification:
		return firstError(kind, validateNotification(p))
	case Notification:
		return firstError(kind, validateNotification(&p))
	case *WebhookRegistration:
		return firstError(kind, validateWebhookRegistration(p))
	case WebhookRegistration:
		return firstError(kind, validateWebhookRegistration(&p))
	case *StatusRequest:
		return firstError(kind, validateStatusRequest(p))
	case StatusRequest:
		return firstError(kind, validateStatusRequest(&p))
	case *AgentEndTask:
		return firstError(kind, validateAgentEndTask(p))
	case AgentEndTask:
		return firstError(kind, validateAgentEndTask(&p))
	default:
		return &ValidationError{
			Path:    "payload",
			Message: fmt.Sprintf("payload type %T does not match kind %q", payload, kind),
		}
	}
}

func validateTaskExecution(p *TaskExecution, prefix string) []fieldError {
	var errs []fieldError
	add := func(path, msg string) { errs = append(errs, fieldError{prefix + path, msg}) }

	if !taskIDPattern.MatchString(p.TaskID) {
		add("task_id", "must match ^[A-Za-z0-9_-]{1,100}$")
	}
	if !p.TaskType.IsValid() {
		add("task_type", fmt.Sprintf("unknown task type %q", p.TaskType))
	}
	if l := len(p.Description); l < MinDescriptionLength || l > MaxDescriptionLength {
		add("description", fmt.Sprintf("length must be between %d and %d characters, got %d",
			MinDescriptionLength, MaxDescriptionLength, l))
	}
	if !p.Priority.IsValid() {
		add("priority", fmt.Sprintf("unknown priority %q", p.Priority))
	}
	errs = append(errs, validateOrchestratorInfo(&p.OrchestratorInfo, prefix+"orchestrator_info.")...)
	if p.Deadline != "" {
		if _, err := time.Parse(time.RFC3339, p.Deadline); err != nil {
			add("deadline", "must be an RFC3339 timestamp")
		}
	}
	return errs
}

func validateOrchestratorInfo(info *OrchestratorInfo, prefix string) []fieldError {
	var errs []fieldError
	if info.AgentID == "" {
		errs = append(errs, fieldError{prefix + "agent_id", "is required"})
	}
	if info.Timestamp == "" {
		errs = append(errs, fieldError{prefix + "timestamp", "is required"})
	} else if _, err := time.Parse(time.RFC3339, info.Timestamp); err != nil {
		errs = append(errs, fieldError{prefix + "timestamp", "must be an RFC3339 timestamp"})
	}
	return errs
}

func validateTaskBatch(p *TaskBatch) []fieldError {
	var errs []fieldError
	if !taskIDPattern.MatchString(p.BatchID) {
		errs = append(errs, fieldError{"batch_id", "must match ^[A-Za-z0-9_-]{1,100}$"})
	}
	if l := len(p.Tasks); l < MinBatchSize || l > MaxBatchSize {
		errs = append(errs, fieldError{"tasks",
			fmt.Sprintf("batch size must be between %d and %d, got %d", MinBatchSize, MaxBatchSize, l)})
	}
	// Per-task limits are unchanged inside a batch. Indices are zero-padded so
	// lexicographic path ordering matches positional ordering (tasks.002 < tasks.010).
	for i := range p.Tasks {
		errs = append(errs, validateTaskExecution(&p.Tasks[i], fmt.Sprintf("tasks.%03d.", i))...)
	}
	errs = append(errs, validateOrchestratorInfo(&p.OrchestratorInfo, "orchestrator_info.")...)
	return errs
}

func validateNotification(p *Notification) []fieldError {
	var errs []fieldError
	add := func(path, msg string) { errs = append(errs, fieldError{path, msg}) }

	if p.ID == "" {
		add("id", "is required")
	}
	if !p.Type.IsValid() {
		add("type", fmt.Sprintf("unknown notification type %q", p.Type))
	}
	if !p.Priority.IsValid() {
		add("priority", fmt.Sprintf("unknown priority %q", p.Priority))
	}
	if p.Source == "" {
		add("source", "is required")
	}
	if p.Timestamp == "" {
		add("timestamp", "is required")
	} else if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		add("timestamp", "must be an RFC3339 timestamp")
	}
	if p.Data == nil {
		add("data", "is required")
	} else if p.Type.IsValid() {
		errs = append(errs, validateNotificationData(p.Type, p.Data)...)
	}
	return errs
}

// validateNotificationData enforces the discriminator-selected data shape.
func validateNotificationData(typ NotificationType, data map[string]any) []fieldError {
	requireKeys := func(keys ...string) []fieldError {
		var errs []fieldError
		for _, k := range keys {
			if _, ok := data[k]; !ok {
				errs = append(errs, fieldError{"data." + k,
					fmt.Sprintf("is required for %s notifications", typ)})
			}
		}
		return errs
	}

	switch typ {
	case NotificationTaskStarted:
		return requireKeys("task_type", "estimated_duration")
	case NotificationTaskProgress:
		errs := requireKeys("progress_percentage", "current_step")
		if raw, ok := data["progress_percentage"]; ok {
			if pct, ok := toFloat(raw); !ok || pct < 0 || pct > 100 {
				errs = append(errs, fieldError{"data.progress_percentage",
					"must be a number between 0 and 100"})
			}
		}
		return errs
	case NotificationTaskCompleted:
		return requireKeys("result", "execution_summary")
	case NotificationTaskFailed:
		return requireKeys("error_type", "error_message")
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func validateWebhookRegistration(p *WebhookRegistration) []fieldError {
	var errs []fieldError
	if p.URL == "" {
		errs = append(errs, fieldError{"url", "is required"})
	} else if !webhookURLPattern.MatchString(p.URL) {
		errs = append(errs, fieldError{"url", "must be an http or https URL"})
	}
	if len(p.EventTypes) == 0 {
		errs = append(errs, fieldError{"event_types", "at least one event type (or \"all\") is required"})
	}
	return errs
}

var webhookURLPattern = regexp.MustCompile(`^https?://`)

func validateStatusRequest(p *StatusRequest) []fieldError {
	if !taskIDPattern.MatchString(p.TaskID) {
		return []fieldError{{"task_id", "must match ^[A-Za-z0-9_-]{1,100}$"}}
	}
	return nil
}

func validateAgentEndTask(p *AgentEndTask) []fieldError {
	var errs []fieldError
	if !taskIDPattern.MatchString(p.TaskID) {
		errs = append(errs, fieldError{"task_id", "must match ^[A-Za-z0-9_-]{1,100}$"})
	}
	if p.AgentID == "" {
		errs = append(errs, fieldError{"agent_id", "is required"})
	}
	if !p.Reason.IsValid() {
		errs = append(errs, fieldError{"completion_status",
			fmt.Sprintf("unknown completion status %q", p.Reason)})
	}
	if p.ExecutionSummary == "" {
		errs = append(errs, fieldError{"execution_summary", "is required"})
	}
	return errs
}
