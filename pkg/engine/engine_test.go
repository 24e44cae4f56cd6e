package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/relay/pkg/adapters"
	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/registry"
	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/security"
	"github.com/codeready-toolchain/relay/pkg/store"
)

// scriptedAdapter fails a fixed number of times before succeeding.
type scriptedAdapter struct {
	mu        sync.Mutex
	name      string
	failures  int
	calls     int
	blockCh   chan struct{} // when set, Execute blocks until ctx is done
	lastInput map[string]any
}

func (s *scriptedAdapter) Name() string { return s.name }

func (s *scriptedAdapter) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.lastInput = input
	block := s.blockCh
	s.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}
	if call <= s.failures {
		return nil, fmt.Errorf("downstream unavailable (call %d)", call)
	}
	return map[string]any{"ticket_id": "TCK-1", "secret_token": "do-not-audit"}, nil
}

func (s *scriptedAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordedEvent struct {
	eventType string
	data      map[string]any
}

type memAuditor struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *memAuditor) Log(_ context.Context, eventType string, _ store.AuditLevel, data map[string]any, _ ...audit.Option) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{eventType: eventType, data: data})
	return int64(len(m.events)), nil
}

func (m *memAuditor) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.eventType
	}
	return out
}

func testAction(adapterName string, retries int) *registry.ActionDefinition {
	return &registry.ActionDefinition{
		Name:        "create_ticket",
		Adapter:     adapterName,
		Category:    registry.CategoryIncident,
		InputSchema: registry.InputSchema{Fields: []registry.InputField{
			{Name: "title", Type: registry.TypeString, Required: true},
		}},
		OutputFields:  []string{"ticket_id"},
		SecurityLevel: security.LevelStandard,
		RateLimit:     100,
		Timeout:       time.Second,
		RetryCount:    retries,
	}
}

func testEngine(t *testing.T, adapter adapters.Adapter, retries int) (*Engine, *memAuditor) {
	t.Helper()
	reg := registry.New()
	reg.Register(testAction(adapter.Name(), retries))

	set := adapters.NewSet()
	set.Register(adapter)

	auditor := &memAuditor{}
	sec := security.NewManager(nil, auditor)
	sec.SetPolicy(&security.Policy{
		ActionName:           "create_ticket",
		RequiredRole:         "operator",
		SecurityLevel:        security.LevelStandard,
		MaxExecutionsPerHour: 1000,
	})
	sec.SetPermission(&security.Permission{
		UserID: "alice", Roles: []string{"operator"}, Clearance: security.LevelElevated,
	})

	e := New(reg, set, sec, auditor, nil)
	e.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e, auditor
}

func TestExecuteHappyPath(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket"}
	e, auditor := testEngine(t, adapter, 0)

	id, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "pod restarts"}, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	exec, err := e.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, "TCK-1", exec.Result["ticket_id"])
	assert.NotNil(t, exec.StartedAt)
	assert.NotNil(t, exec.CompletedAt)

	assert.Equal(t, []string{"action_execution_start", "action_execution_completed"}, auditor.types())
}

func TestExecuteAuditsSafeSummaryOnly(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket"}
	e, auditor := testEngine(t, adapter, 0)

	_, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "x"}, "alice")
	require.NoError(t, err)

	last := auditor.events[len(auditor.events)-1]
	summary := last.data["summary"].(map[string]any)
	assert.Equal(t, "TCK-1", summary["ticket_id"])
	assert.NotContains(t, summary, "secret_token")
}

func TestExecuteUnknownAction(t *testing.T) {
	e, _ := testEngine(t, &scriptedAdapter{name: "ticket"}, 0)
	_, err := e.Execute(context.Background(), "no_such_action", nil, "alice")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket", failures: 2}
	e, auditor := testEngine(t, adapter, 3)

	id, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "x"}, "alice")
	require.NoError(t, err)

	exec, err := e.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, 2, exec.RetryAttempts)
	assert.Equal(t, 3, adapter.callCount())
	assert.Contains(t, auditor.types(), "action_execution_retry")
}

func TestExecuteExhaustsRetries(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket", failures: 10}
	e, auditor := testEngine(t, adapter, 2)

	id, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "x"}, "alice")
	require.Error(t, err)

	exec, serr := e.Status(id)
	require.NoError(t, serr)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, 3, adapter.callCount()) // initial + 2 retries
	assert.Contains(t, auditor.types(), "action_execution_error")
}

func TestExecutePermissionDenied(t *testing.T) {
	e, _ := testEngine(t, &scriptedAdapter{name: "ticket"}, 0)

	id, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "x"}, "mallory")
	assert.ErrorIs(t, err, security.ErrPermissionDenied)

	exec, serr := e.Status(id)
	require.NoError(t, serr)
	assert.Equal(t, StatusFailed, exec.Status)
}

func TestExecuteValidationFailure(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket"}
	e, _ := testEngine(t, adapter, 0)

	id, err := e.Execute(context.Background(), "create_ticket", map[string]any{}, "alice")
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Path)
	assert.Equal(t, 0, adapter.callCount())

	exec, serr := e.Status(id)
	require.NoError(t, serr)
	assert.Equal(t, StatusFailed, exec.Status)
}

func TestExecuteSanitizationFailure(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket"}
	e, auditor := testEngine(t, adapter, 0)

	_, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "eval(payload)"}, "alice")
	assert.ErrorIs(t, err, security.ErrUnsafeInput)
	assert.Equal(t, 0, adapter.callCount())
	assert.Contains(t, auditor.types(), "unsafe_input_rejected")
}

func TestExecuteGlobalRateLimit(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket"}
	e, _ := testEngine(t, adapter, 0)
	def := e.registry.Get("create_ticket")
	def.RateLimit = 2

	for i := 0; i < 2; i++ {
		_, err := e.Execute(context.Background(), "create_ticket",
			map[string]any{"title": "x"}, "alice")
		require.NoError(t, err)
	}
	_, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "x"}, "alice")
	assert.ErrorIs(t, err, security.ErrRateLimited)
}

func TestExecuteTimeoutRetriesOnSameBudget(t *testing.T) {
	block := make(chan struct{})
	adapter := &scriptedAdapter{name: "ticket", blockCh: block}
	e, auditor := testEngine(t, adapter, 1)
	def := e.registry.Get("create_ticket")
	def.Timeout = 30 * time.Millisecond

	id, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "x"}, "alice")
	require.Error(t, err)

	exec, serr := e.Status(id)
	require.NoError(t, serr)
	assert.Equal(t, StatusTimeout, exec.Status)
	assert.Equal(t, 2, adapter.callCount())
	assert.Contains(t, auditor.types(), "action_execution_timeout")
}

func TestCancelRequiresElevatedClearance(t *testing.T) {
	e, _ := testEngine(t, &scriptedAdapter{name: "ticket"}, 0)
	e.sec.SetPermission(&security.Permission{
		UserID: "bob", Roles: []string{"operator"}, Clearance: security.LevelStandard,
	})

	err := e.Cancel(context.Background(), "some-id", "bob")
	assert.ErrorIs(t, err, security.ErrPermissionDenied)
}

func TestCancelActiveExecution(t *testing.T) {
	block := make(chan struct{})
	adapter := &scriptedAdapter{name: "ticket", blockCh: block}
	e, auditor := testEngine(t, adapter, 0)

	execErr := make(chan error, 1)
	started := make(chan string, 1)
	go func() {
		id, err := e.Execute(context.Background(), "create_ticket",
			map[string]any{"title": "x"}, "alice")
		started <- id
		execErr <- err
	}()

	// Wait until the adapter call is in flight, then cancel.
	require.Eventually(t, func() bool { return adapter.callCount() == 1 }, time.Second, 5*time.Millisecond)

	var targetID string
	e.mu.Lock()
	for id := range e.executions {
		targetID = id
	}
	e.mu.Unlock()
	require.NoError(t, e.Cancel(context.Background(), targetID, "alice"))

	id := <-started
	err := <-execErr
	assert.ErrorIs(t, err, ErrCancelled)

	exec, serr := e.Status(id)
	require.NoError(t, serr)
	assert.Equal(t, StatusCancelled, exec.Status)
	assert.Contains(t, auditor.types(), "action_execution_cancelled")
}

func TestCancelUnknownExecution(t *testing.T) {
	e, _ := testEngine(t, &scriptedAdapter{name: "ticket"}, 0)
	err := e.Cancel(context.Background(), "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdapterUnavailable(t *testing.T) {
	e, auditor := testEngine(t, &scriptedAdapter{name: "ticket"}, 0)
	e.registry.Register(&registry.ActionDefinition{
		Name: "orphan_action", Adapter: "missing",
		SecurityLevel: security.LevelStandard, RateLimit: 10, Timeout: time.Second,
	})
	e.sec.SetPolicy(&security.Policy{
		ActionName: "orphan_action", RequiredRole: "operator",
		SecurityLevel: security.LevelStandard, MaxExecutionsPerHour: 100,
	})

	_, err := e.Execute(context.Background(), "orphan_action", map[string]any{}, "alice")
	assert.ErrorIs(t, err, adapters.ErrAdapterUnavailable)
	assert.Contains(t, auditor.types(), "adapter_unavailable")
}

func TestStats(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket"}
	e, _ := testEngine(t, adapter, 0)

	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.Background(), "create_ticket",
			map[string]any{"title": "x"}, "alice")
		require.NoError(t, err)
	}
	_, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "eval(x)"}, "alice")
	require.Error(t, err)

	stats := e.Stats(5)
	assert.Equal(t, 3, stats.CountsByStatus[StatusCompleted])
	assert.Equal(t, 1, stats.CountsByStatus[StatusFailed])
	assert.InDelta(t, 0.75, stats.SuccessRate, 0.001)
	require.Len(t, stats.TopActions, 1)
	assert.Equal(t, ActionCount{ActionName: "create_ticket", Count: 4}, stats.TopActions[0])
}

func TestStatusUnknown(t *testing.T) {
	e, _ := testEngine(t, &scriptedAdapter{name: "ticket"}, 0)
	_, err := e.Status("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// memApprovals is a minimal approval backend for gate tests.
type memApprovals struct {
	mu   sync.Mutex
	recs map[string]*store.ApprovalRecord
}

func (m *memApprovals) CreateApproval(_ context.Context, rec *store.ApprovalRecord) (*store.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.recs[rec.ApprovalID]; ok {
		return existing, nil
	}
	rec.Status = store.ApprovalPending
	m.recs[rec.ApprovalID] = rec
	return rec, nil
}

func (m *memApprovals) GetApproval(_ context.Context, id string) (*store.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *memApprovals) GrantApproval(_ context.Context, id, approver string) (*store.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.ApprovalsReceived = append(rec.ApprovalsReceived, approver)
	if len(rec.ApprovalsReceived) >= rec.Required {
		rec.Status = store.ApprovalApproved
	}
	return rec, nil
}

func (m *memApprovals) RejectApproval(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = store.ApprovalRejected
	return nil
}

// An action whose definition demands approval is gated even when no policy
// sets the approval requirement.
func TestExecuteHonorsDefinitionApprovalFlag(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket"}
	reg := registry.New()
	def := testAction(adapter.Name(), 0)
	def.RequiresApproval = true
	reg.Register(def)

	set := adapters.NewSet()
	set.Register(adapter)

	auditor := &memAuditor{}
	sec := security.NewManager(&memApprovals{recs: make(map[string]*store.ApprovalRecord)}, auditor)
	sec.SetPolicy(&security.Policy{
		ActionName:           "create_ticket",
		RequiredRole:         "operator",
		SecurityLevel:        security.LevelStandard,
		MaxExecutionsPerHour: 1000,
	})
	sec.SetPermission(&security.Permission{
		UserID: "alice", Roles: []string{"operator"}, Clearance: security.LevelElevated,
	})
	e := New(reg, set, sec, auditor, nil)

	input := map[string]any{"title": "drain node"}

	id, err := e.Execute(context.Background(), "create_ticket", input, "alice")
	assert.ErrorIs(t, err, security.ErrApprovalRequired)
	assert.Equal(t, 0, adapter.callCount())
	assert.Contains(t, auditor.types(), "approval_missing")

	exec, serr := e.Status(id)
	require.NoError(t, serr)
	assert.Equal(t, StatusFailed, exec.Status)

	rec, err := sec.RequestApproval(context.Background(), "create_ticket", input,
		"alice", []string{"carol"}, security.ApprovalSingle)
	require.NoError(t, err)
	_, err = sec.GrantApproval(context.Background(), rec.ApprovalID, "carol")
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), "create_ticket", input, "alice")
	require.NoError(t, err)
}

func TestTerminalExecutionsEvictedAfterRetention(t *testing.T) {
	adapter := &scriptedAdapter{name: "ticket"}
	e, _ := testEngine(t, adapter, 0)

	base := time.Now()
	current := base
	e.now = func() time.Time { return current }

	id, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "x"}, "alice")
	require.NoError(t, err)
	_, err = e.Status(id)
	require.NoError(t, err)

	// A later execution past the retention window sweeps the old one out.
	current = base.Add(e.retention + 2*sweepInterval)
	id2, err := e.Execute(context.Background(), "create_ticket",
		map[string]any{"title": "y"}, "alice")
	require.NoError(t, err)

	_, err = e.Status(id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.Status(id2)
	assert.NoError(t, err)
}
