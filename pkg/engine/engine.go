package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/relay/pkg/adapters"
	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/registry"
	"github.com/codeready-toolchain/relay/pkg/security"
	"github.com/codeready-toolchain/relay/pkg/store"
)

const defaultAdapterTimeout = 30 * time.Second

// Terminal executions stay queryable for the retention window, then get
// swept so the execution map stays bounded.
const (
	defaultExecutionRetention = time.Hour
	sweepInterval             = time.Minute
)

// Engine executes actions. Safe for concurrent use; many executions run in
// parallel, each owned by the goroutine that called Execute.
type Engine struct {
	registry *registry.Registry
	adapters *adapters.Set
	sec      *security.Manager
	auditor  security.Auditor
	metrics  *Metrics

	mu         sync.Mutex
	executions map[string]*ExecutionContext
	cancels    map[string]context.CancelFunc
	cancelled  map[string]bool
	windows    map[string][]time.Time // per-action global 1-minute windows
	retention  time.Duration
	lastSweep  time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an engine. metrics may be nil to disable instrumentation;
// auditor may be nil in tests.
func New(reg *registry.Registry, set *adapters.Set, sec *security.Manager, auditor security.Auditor, metrics *Metrics) *Engine {
	return &Engine{
		registry:   reg,
		adapters:   set,
		sec:        sec,
		auditor:    auditor,
		metrics:    metrics,
		executions: make(map[string]*ExecutionContext),
		cancels:    make(map[string]context.CancelFunc),
		cancelled:  make(map[string]bool),
		windows:    make(map[string][]time.Time),
		retention:  defaultExecutionRetention,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs actionName with input on behalf of userID and returns the
// execution id. The id is valid even when the execution fails; callers can
// fetch the terminal context with Status.
func (e *Engine) Execute(ctx context.Context, actionName string, input map[string]any, userID string) (string, error) {
	def := e.registry.Get(actionName)
	if def == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, actionName)
	}

	exec := &ExecutionContext{
		ExecutionID: uuid.New().String(),
		ActionName:  actionName,
		UserID:      userID,
		Input:       input,
		Status:      StatusPending,
		CreatedAt:   e.now().UTC(),
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.executions[exec.ExecutionID] = exec
	e.cancels[exec.ExecutionID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, exec.ExecutionID)
		e.mu.Unlock()
	}()

	if err := e.gate(runCtx, def, exec); err != nil {
		return exec.ExecutionID, err
	}
	return exec.ExecutionID, e.run(runCtx, def, exec)
}

// gate runs the pre-execution checks: security, approval, global rate
// limit, schema validation, sanitization. Any failure is terminal.
func (e *Engine) gate(ctx context.Context, def *registry.ActionDefinition, exec *ExecutionContext) error {
	if err := e.sec.CheckPermission(ctx, exec.UserID, exec.ActionName, def.SecurityLevel); err != nil {
		e.fail(ctx, exec, err)
		return err
	}
	if err := e.sec.CheckApprovalGate(ctx, exec.ActionName, exec.Input, def.RequiresApproval); err != nil {
		e.audit(ctx, "approval_missing", store.AuditWarning, exec, map[string]any{"error": err.Error()})
		e.fail(ctx, exec, err)
		return err
	}
	if err := e.checkGlobalRate(exec.ActionName, def.RateLimit); err != nil {
		e.audit(ctx, "rate_limit_exceeded", store.AuditWarning, exec, map[string]any{"scope": "action"})
		e.fail(ctx, exec, err)
		return err
	}
	if err := def.InputSchema.Validate(exec.Input); err != nil {
		e.fail(ctx, exec, err)
		return err
	}
	if err := security.SanitizeInput(exec.Input); err != nil {
		e.audit(ctx, "unsafe_input_rejected", store.AuditWarning, exec, map[string]any{"error": err.Error()})
		e.fail(ctx, exec, err)
		return err
	}
	return nil
}

// run drives the attempt loop: running transition, adapter call under the
// policy deadline, exponential backoff between attempts.
func (e *Engine) run(ctx context.Context, def *registry.ActionDefinition, exec *ExecutionContext) error {
	adapter, err := e.adapters.Resolve(def.Adapter)
	if err != nil {
		e.audit(ctx, "adapter_unavailable", store.AuditError, exec, map[string]any{"adapter": def.Adapter})
		e.fail(ctx, exec, err)
		return err
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = defaultAdapterTimeout
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		// Cancellation checkpoint before each attempt.
		if err := e.checkpoint(ctx, exec); err != nil {
			return err
		}

		e.transition(exec, StatusRunning, func(x *ExecutionContext) {
			now := e.now().UTC()
			x.StartedAt = &now
			x.RetryAttempts = attempt
		})
		e.audit(ctx, "action_execution_start", store.AuditInfo, exec, map[string]any{"attempt": attempt})

		result, err := e.invoke(ctx, adapter, exec.Input, timeout)
		if err == nil {
			e.complete(ctx, def, exec, result)
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return e.markCancelled(ctx, exec)
		}

		status := StatusFailed
		eventType := "action_execution_error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = StatusTimeout
			eventType = "action_execution_timeout"
		}
		e.transition(exec, status, func(x *ExecutionContext) { x.Error = err.Error() })

		if attempt < def.RetryCount {
			e.audit(ctx, "action_execution_retry", store.AuditWarning, exec,
				map[string]any{"attempt": attempt, "error": err.Error()})
			if serr := e.sleep(ctx, time.Duration(1<<uint(attempt))*time.Second); serr != nil {
				return e.markCancelled(ctx, exec)
			}
			continue
		}

		e.finalize(exec, status)
		e.audit(ctx, eventType, store.AuditError, exec,
			map[string]any{"attempts": attempt + 1, "error": err.Error()})
		return lastErr
	}
}

func (e *Engine) invoke(ctx context.Context, adapter adapters.Adapter, input map[string]any, timeout time.Duration) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := adapter.Execute(callCtx, input)
	if err != nil {
		// Normalize deadline errors wrapped by adapters.
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, context.DeadlineExceeded
		}
		if ctx.Err() != nil {
			return nil, context.Canceled
		}
		return nil, err
	}
	return result, nil
}

func (e *Engine) complete(ctx context.Context, def *registry.ActionDefinition, exec *ExecutionContext, result map[string]any) {
	e.transition(exec, StatusCompleted, func(x *ExecutionContext) { x.Result = result })
	e.finalize(exec, StatusCompleted)
	e.audit(ctx, "action_execution_completed", store.AuditInfo, exec,
		map[string]any{"summary": safeSummary(def, result)})
}

// safeSummary restricts the audited result to the action's declared output
// fields so secrets in adapter responses never reach the audit trail.
func safeSummary(def *registry.ActionDefinition, result map[string]any) map[string]any {
	summary := make(map[string]any, len(def.OutputFields))
	for _, field := range def.OutputFields {
		if v, ok := result[field]; ok {
			summary[field] = v
		}
	}
	return summary
}

// checkpoint honors a pending cancellation request between attempts.
func (e *Engine) checkpoint(ctx context.Context, exec *ExecutionContext) error {
	e.mu.Lock()
	requested := e.cancelled[exec.ExecutionID]
	e.mu.Unlock()
	if requested || ctx.Err() != nil {
		return e.markCancelled(ctx, exec)
	}
	return nil
}

func (e *Engine) markCancelled(ctx context.Context, exec *ExecutionContext) error {
	e.transition(exec, StatusCancelled, func(x *ExecutionContext) { x.Error = ErrCancelled.Error() })
	e.finalize(exec, StatusCancelled)
	e.audit(ctx, "action_execution_cancelled", store.AuditWarning, exec, nil)
	return ErrCancelled
}

func (e *Engine) fail(ctx context.Context, exec *ExecutionContext, err error) {
	e.transition(exec, StatusFailed, func(x *ExecutionContext) { x.Error = err.Error() })
	e.finalize(exec, StatusFailed)
}

// transition mutates the execution under the engine lock. Transitions are
// totally ordered because only the owning driver goroutine calls it.
func (e *Engine) transition(exec *ExecutionContext, status Status, mutate func(*ExecutionContext)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec.Status = status
	if mutate != nil {
		mutate(exec)
	}
}

func (e *Engine) finalize(exec *ExecutionContext, status Status) {
	now := e.now().UTC()
	e.mu.Lock()
	exec.CompletedAt = &now
	e.evictExpiredLocked(now)
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.observe(exec.ActionName, status, e.duration(exec))
	}
}

// evictExpiredLocked drops terminal executions older than the retention
// window. At most one sweep per sweepInterval; callers hold e.mu.
func (e *Engine) evictExpiredLocked(now time.Time) {
	if now.Sub(e.lastSweep) < sweepInterval {
		return
	}
	e.lastSweep = now
	cutoff := now.Add(-e.retention)
	for id, exec := range e.executions {
		if exec.Status.Terminal() && exec.CompletedAt != nil && exec.CompletedAt.Before(cutoff) {
			delete(e.executions, id)
			delete(e.cancelled, id)
		}
	}
}

func (e *Engine) duration(exec *ExecutionContext) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec.StartedAt == nil || exec.CompletedAt == nil {
		return 0
	}
	return exec.CompletedAt.Sub(*exec.StartedAt)
}

// checkGlobalRate enforces the per-action 1-minute sliding window,
// independent of the per-user hourly limit.
func (e *Engine) checkGlobalRate(actionName string, perMinute int) error {
	if perMinute <= 0 {
		return nil
	}
	now := e.now()
	cutoff := now.Add(-time.Minute)

	e.mu.Lock()
	defer e.mu.Unlock()
	window := e.windows[actionName]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= perMinute {
		e.windows[actionName] = kept
		return fmt.Errorf("%w: action %s (%d/minute)", security.ErrRateLimited, actionName, perMinute)
	}
	e.windows[actionName] = append(kept, now)
	return nil
}

// Cancel requests cancellation of an active execution. Requires elevated
// clearance. Takes effect at the execution's next checkpoint; an in-flight
// adapter call is interrupted through its context.
func (e *Engine) Cancel(ctx context.Context, executionID, userID string) error {
	perm := e.sec.Permission(userID)
	if perm == nil || perm.Clearance.Rank() < security.LevelElevated.Rank() {
		return fmt.Errorf("%w: cancellation requires elevated clearance", security.ErrPermissionDenied)
	}

	e.mu.Lock()
	exec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return ErrNotFound
	}
	if exec.Status.Terminal() {
		e.mu.Unlock()
		return fmt.Errorf("execution %s already %s", executionID, exec.Status)
	}
	e.cancelled[executionID] = true
	cancel := e.cancels[executionID]
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.audit(ctx, "execution_cancel_requested", store.AuditWarning, exec,
		map[string]any{"requested_by": userID})
	slog.Info("Execution cancellation requested", "execution_id", executionID, "user_id", userID)
	return nil
}

// Status returns a copy of the execution context.
func (e *Engine) Status(executionID string) (*ExecutionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *exec
	return &cp, nil
}

// Stats aggregates the executions still inside the retention window.
func (e *Engine) Stats(topN int) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{CountsByStatus: make(map[Status]int)}
	actionCounts := make(map[string]int)
	var terminal, completed int
	var totalDuration time.Duration
	var timed int

	for _, exec := range e.executions {
		stats.CountsByStatus[exec.Status]++
		actionCounts[exec.ActionName]++
		if exec.Status.Terminal() {
			terminal++
			if exec.Status == StatusCompleted {
				completed++
			}
			if exec.StartedAt != nil && exec.CompletedAt != nil {
				totalDuration += exec.CompletedAt.Sub(*exec.StartedAt)
				timed++
			}
		}
	}
	if terminal > 0 {
		stats.SuccessRate = float64(completed) / float64(terminal)
	}
	if timed > 0 {
		stats.AvgDurationMS = float64(totalDuration.Milliseconds()) / float64(timed)
	}

	for name, count := range actionCounts {
		stats.TopActions = append(stats.TopActions, ActionCount{ActionName: name, Count: count})
	}
	sort.Slice(stats.TopActions, func(i, j int) bool {
		if stats.TopActions[i].Count != stats.TopActions[j].Count {
			return stats.TopActions[i].Count > stats.TopActions[j].Count
		}
		return stats.TopActions[i].ActionName < stats.TopActions[j].ActionName
	})
	if topN > 0 && len(stats.TopActions) > topN {
		stats.TopActions = stats.TopActions[:topN]
	}
	return stats
}

// CancelAll marks every active execution cancelled. Called on shutdown.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.cancels))
	for id, cancel := range e.cancels {
		e.cancelled[id] = true
		cancels = append(cancels, cancel)
	}
	e.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (e *Engine) audit(ctx context.Context, eventType string, level store.AuditLevel, exec *ExecutionContext, data map[string]any) {
	if e.auditor == nil {
		return
	}
	if _, err := e.auditor.Log(ctx, eventType, level, data,
		audit.WithUser(exec.UserID), audit.WithAction(exec.ActionName),
		audit.WithExecution(exec.ExecutionID)); err != nil {
		slog.Warn("Failed to audit execution event", "event_type", eventType, "error", err)
	}
}
