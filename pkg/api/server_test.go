package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/relay/pkg/adapters"
	"github.com/codeready-toolchain/relay/pkg/endtask"
	"github.com/codeready-toolchain/relay/pkg/engine"
	"github.com/codeready-toolchain/relay/pkg/notify"
	"github.com/codeready-toolchain/relay/pkg/registry"
	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/security"
	"github.com/codeready-toolchain/relay/pkg/store"
	"github.com/codeready-toolchain/relay/pkg/webhook"
)

type memNotifStore struct {
	mu   sync.Mutex
	recs map[string]*store.NotificationRecord
}

func newMemNotifStore() *memNotifStore {
	return &memNotifStore{recs: make(map[string]*store.NotificationRecord)}
}

func (m *memNotifStore) AppendNotification(_ context.Context, rec *store.NotificationRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.recs) + 1)
	m.recs[rec.NotificationID] = rec
	return rec.ID, nil
}

func (m *memNotifStore) UpdateNotificationStatus(_ context.Context, notificationID string, status store.NotificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[notificationID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	return nil
}

type memEndStore struct {
	mu     sync.Mutex
	nextID int64
	recs   []*store.EndTaskRecord
}

func (m *memEndStore) AppendEndTaskEvent(_ context.Context, rec *store.EndTaskRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	rec.CreatedAt = time.Now()
	m.recs = append(m.recs, rec)
	return rec.ID, nil
}

func (m *memEndStore) MarkEndTaskProcessed(_ context.Context, id int64, webhookSent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if rec.ID == id {
			rec.Processed = true
			rec.WebhookSent = webhookSent
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memEndStore) QueryEndTaskEvents(_ context.Context, taskID string, limit int) ([]*store.EndTaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.EndTaskRecord
	for i := len(m.recs) - 1; i >= 0; i-- {
		rec := m.recs[i]
		if taskID != "" && rec.TaskID != taskID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// memApprovalStore mirrors the store's approval compare-and-set rules.
type memApprovalStore struct {
	mu   sync.Mutex
	recs map[string]*store.ApprovalRecord
}

func newMemApprovalStore() *memApprovalStore {
	return &memApprovalStore{recs: make(map[string]*store.ApprovalRecord)}
}

func (m *memApprovalStore) CreateApproval(_ context.Context, rec *store.ApprovalRecord) (*store.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.recs[rec.ApprovalID]; ok {
		return existing, nil
	}
	rec.Status = store.ApprovalPending
	rec.CreatedAt = time.Now()
	m.recs[rec.ApprovalID] = rec
	return rec, nil
}

func (m *memApprovalStore) GetApproval(_ context.Context, id string) (*store.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *memApprovalStore) GrantApproval(_ context.Context, id, approver string) (*store.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.Status != store.ApprovalPending || !rec.ExpiresAt.After(time.Now()) {
		return nil, store.ErrConflict
	}
	eligible := false
	for _, a := range rec.Approvers {
		if a == approver {
			eligible = true
		}
	}
	for _, a := range rec.ApprovalsReceived {
		if a == approver {
			return nil, store.ErrConflict
		}
	}
	if !eligible {
		return nil, store.ErrConflict
	}
	rec.ApprovalsReceived = append(rec.ApprovalsReceived, approver)
	if len(rec.ApprovalsReceived) >= rec.Required {
		rec.Status = store.ApprovalApproved
	}
	return rec, nil
}

func (m *memApprovalStore) RejectApproval(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok || rec.Status != store.ApprovalPending {
		return store.ErrConflict
	}
	rec.Status = store.ApprovalRejected
	return nil
}

// testServer wires an in-memory stack around the HTTP edge.
func testServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()

	notifications := notify.NewService(newMemNotifStore(), nil)

	reg := registry.New()
	reg.Register(&registry.ActionDefinition{
		Name: "send_chat_message",
		InputSchema: registry.InputSchema{Fields: []registry.InputField{
			{Name: "channel", Type: registry.TypeString, Required: true},
			{Name: "message", Type: registry.TypeString, Required: true},
		}},
		OutputFields:  []string{"status", "channel"},
		Adapter:       registry.AdapterChat,
		Category:      registry.CategoryCommunication,
		SecurityLevel: security.LevelStandard,
		RateLimit:     100,
		Timeout:       time.Second,
	})

	set := adapters.NewSet()
	set.Register(adapters.Mock(registry.AdapterChat))

	sec := security.NewManager(newMemApprovalStore(), nil)
	sec.SetPolicy(&security.Policy{
		ActionName:           "send_chat_message",
		RequiredRole:         "operator",
		SecurityLevel:        security.LevelStandard,
		MaxExecutionsPerHour: 100,
	})
	sec.SetPermission(&security.Permission{
		UserID:    "api-client",
		Roles:     []string{"operator"},
		Clearance: security.LevelElevated,
	})

	eng := engine.New(reg, set, sec, nil, nil)

	deps := Deps{
		Engine:        eng,
		Registry:      reg,
		Notifications: notifications,
		EndTask:       endtask.NewManager(&memEndStore{}, notifications, nil),
		Security:      sec,
		HealthCheck:   func(context.Context) error { return nil },
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewServer(deps)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// doJSONAs issues a request carrying a proxy identity header.
func doJSONAs(t *testing.T, s *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", user)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthAndResponseHeaders(t *testing.T) {
	s := testServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, healthStatusHealthy, body.Status)
	assert.Equal(t, healthStatusHealthy, body.Checks["store"].Status)

	assert.Equal(t, APIVersion, rec.Header().Get("X-API-Version"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Duration"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestDispatchTask(t *testing.T) {
	s := testServer(t, nil)
	task := schema.NewTaskExecution("t1", schema.TaskTypeCodeGeneration,
		"Generate fibonacci module", "m1", schema.TaskPriorityNormal)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/tasks", task)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[DispatchResponse](t, rec)
	assert.NotEmpty(t, resp.ExecutionID)
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, "dispatched", resp.Status)

	status := doJSON(t, s, http.MethodGet, "/api/v1/tasks/t1/status", nil)
	require.Equal(t, http.StatusOK, status.Code)
	state := decodeBody[TaskState](t, status)
	assert.Equal(t, resp.ExecutionID, state.ExecutionID)
	assert.Equal(t, "dispatched", state.Status)
}

func TestDispatchTaskValidation(t *testing.T) {
	s := testServer(t, nil)

	task := schema.NewTaskExecution("t1", schema.TaskTypeCodeGeneration,
		"too short", "m1", schema.TaskPriorityNormal)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/tasks", task)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[ErrorBody](t, rec)
	assert.Equal(t, "validation", body.ErrorKind)
	assert.Equal(t, "description", body.Path)
}

func TestDispatchBatch(t *testing.T) {
	s := testServer(t, nil)
	batch := schema.NewTaskBatch("b1", "m1",
		*schema.NewTaskExecution("t1", schema.TaskTypeTesting, "Run the integration suite", "m1", schema.TaskPriorityHigh),
		*schema.NewTaskExecution("t2", schema.TaskTypeDeployment, "Deploy release candidate", "m1", schema.TaskPriorityNormal),
	)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/tasks/batch", batch)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[BatchDispatchResponse](t, rec)
	assert.Equal(t, "b1", resp.BatchID)
	require.Len(t, resp.Dispatched, 2)
	assert.NotEqual(t, resp.Dispatched[0].ExecutionID, resp.Dispatched[1].ExecutionID)
}

func TestTaskStatusUpdatesFromNotifications(t *testing.T) {
	s := testServer(t, nil)
	task := schema.NewTaskExecution("t9", schema.TaskTypeCodeGeneration,
		"Generate fibonacci module", "m1", schema.TaskPriorityNormal)
	require.Equal(t, http.StatusOK, doJSON(t, s, http.MethodPost, "/api/v1/tasks", task).Code)

	started := schema.NewNotification(schema.NotificationTaskStarted,
		schema.NotificationPriorityMedium, "agent-1",
		map[string]any{"task_id": "t9", "task_type": "code_generation", "estimated_duration": 60})
	require.Equal(t, http.StatusOK, doJSON(t, s, http.MethodPost, "/api/v1/notifications", started).Code)

	state := decodeBody[TaskState](t, doJSON(t, s, http.MethodGet, "/api/v1/tasks/t9/status", nil))
	assert.Equal(t, "running", state.Status)

	progress := schema.NewNotification(schema.NotificationTaskProgress,
		schema.NotificationPriorityLow, "agent-1",
		map[string]any{"task_id": "t9", "progress_percentage": 40.0, "current_step": "writing tests"})
	require.Equal(t, http.StatusOK, doJSON(t, s, http.MethodPost, "/api/v1/notifications", progress).Code)

	state = decodeBody[TaskState](t, doJSON(t, s, http.MethodGet, "/api/v1/tasks/t9/status", nil))
	assert.Equal(t, 40.0, state.Progress)
	assert.Equal(t, "writing tests", state.CurrentStep)
}

func TestTaskStatusValidation(t *testing.T) {
	s := testServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/tasks/bad%20id/status", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/tasks/unknown-task/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[ErrorBody](t, rec).ErrorKind)
}

func TestNotificationEndpointRejectsInvalid(t *testing.T) {
	s := testServer(t, nil)

	n := schema.NewNotification(schema.NotificationTaskStarted,
		schema.NotificationPriorityMedium, "agent-1", map[string]any{})
	rec := doJSON(t, s, http.MethodPost, "/api/v1/notifications", n)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody[ErrorBody](t, rec).ErrorKind)
}

func TestEndTaskEndpoint(t *testing.T) {
	s := testServer(t, nil)

	event := schema.NewAgentEndTask("t1", "agent-1", schema.EndReasonSuccess, "all steps completed")
	rec := doJSON(t, s, http.MethodPost, "/api/v1/agent/end-task", event)
	require.Equal(t, http.StatusOK, rec.Code)

	report := decodeBody[endtask.Report](t, rec)
	assert.Equal(t, "t1", report.TaskID)
	assert.Equal(t, "success", report.Status)

	// Finished tasks answer status polls from durable history.
	status := doJSON(t, s, http.MethodGet, "/api/v1/tasks/t1/status", nil)
	require.Equal(t, http.StatusOK, status.Code)
}

func TestSchemasEndpoints(t *testing.T) {
	s := testServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/schemas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	catalog := decodeBody[map[string]schema.Descriptor](t, rec)
	assert.Contains(t, catalog, "task_execution")

	rec = doJSON(t, s, http.MethodGet, "/api/v1/schemas/notification", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	desc := decodeBody[schema.Descriptor](t, rec)
	assert.Equal(t, schema.KindNotification, desc.Kind)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/schemas/nonsense", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteAction(t *testing.T) {
	s := testServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/actions/send_chat_message/execute",
		&ExecuteRequest{Input: map[string]any{"channel": "#ops", "message": "deploy done"}})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[ExecuteResponse](t, rec)
	assert.Equal(t, "completed", resp.Status)

	status := doJSON(t, s, http.MethodGet, "/api/v1/executions/"+resp.ExecutionID, nil)
	require.Equal(t, http.StatusOK, status.Code)
}

func TestExecuteActionErrorMapping(t *testing.T) {
	s := testServer(t, nil)

	t.Run("unknown action is 404", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/actions/no_such_action/execute",
			&ExecuteRequest{Input: map[string]any{}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("permission denial is 403", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/actions/send_chat_message/execute",
			&ExecuteRequest{Input: map[string]any{"channel": "#ops", "message": "hi"}, UserID: "stranger"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "permission_denied", decodeBody[ErrorBody](t, rec).ErrorKind)
	})

	t.Run("schema violation is 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/actions/send_chat_message/execute",
			&ExecuteRequest{Input: map[string]any{"channel": "#ops"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("dangerous input is 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/actions/send_chat_message/execute",
			&ExecuteRequest{Input: map[string]any{"channel": "#ops", "message": "<script>alert(1)</script>"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "unsafe_input", decodeBody[ErrorBody](t, rec).ErrorKind)
	})
}

func TestExecutionStats(t *testing.T) {
	s := testServer(t, nil)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/actions/send_chat_message/execute",
			&ExecuteRequest{Input: map[string]any{"channel": "#ops", "message": "ping"}})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/executions/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[engine.Stats](t, rec)
	assert.Equal(t, 3, stats.CountsByStatus["completed"])
}

func TestUnavailableComponents(t *testing.T) {
	s := NewServer(Deps{})

	for _, path := range []string{
		"/api/v1/notifications",
		"/api/v1/webhooks",
		"/api/v1/agent/end-task",
	} {
		rec := doJSON(t, s, http.MethodPost, path, map[string]any{})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestApprovalLifecycle(t *testing.T) {
	s := testServer(t, nil)

	request := map[string]any{
		"action_name": "restart_database",
		"input":       map[string]any{"cluster": "prod-1"},
		"approvers":   []string{"alice", "bob"},
		"mode":        "unanimous",
	}

	rec := doJSON(t, s, http.MethodPost, "/api/v1/approvals", request)
	require.Equal(t, http.StatusCreated, rec.Code)
	approval := decodeBody[store.ApprovalRecord](t, rec)
	assert.Equal(t, store.ApprovalPending, approval.Status)
	assert.Equal(t, 2, approval.Required)
	require.NotEmpty(t, approval.ApprovalID)

	// Repeating the logically equal request collapses onto the same record.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/approvals", request)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, approval.ApprovalID, decodeBody[store.ApprovalRecord](t, rec).ApprovalID)

	grantPath := "/api/v1/approvals/" + approval.ApprovalID + "/grant"

	rec = doJSONAs(t, s, http.MethodPost, grantPath, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.ApprovalPending, decodeBody[store.ApprovalRecord](t, rec).Status)

	// Duplicate grant by the same approver conflicts.
	rec = doJSONAs(t, s, http.MethodPost, grantPath, "alice", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeBody[ErrorBody](t, rec).ErrorKind)

	// Second grant reaches the unanimous quorum.
	rec = doJSONAs(t, s, http.MethodPost, grantPath, "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.ApprovalApproved, decodeBody[store.ApprovalRecord](t, rec).Status)

	// Rejecting a resolved approval conflicts.
	rec = doJSONAs(t, s, http.MethodPost,
		"/api/v1/approvals/"+approval.ApprovalID+"/reject", "bob", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestApprovalValidationAndMissing(t *testing.T) {
	s := testServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/approvals", map[string]any{
		"action_name": "restart_database",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSONAs(t, s, http.MethodPost, "/api/v1/approvals/deadbeef/grant", "alice", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// memHookStore backs the webhook handler tests; delivery bookkeeping is
// not exercised here.
type memHookStore struct {
	mu   sync.Mutex
	recs map[string]*store.WebhookRecord
}

func newMemHookStore() *memHookStore {
	return &memHookStore{recs: make(map[string]*store.WebhookRecord)}
}

func (m *memHookStore) CreateWebhook(_ context.Context, rec *store.WebhookRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.WebhookID] = rec
	return nil
}

func (m *memHookStore) GetWebhook(_ context.Context, id string) (*store.WebhookRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *memHookStore) ListWebhooks(_ context.Context) ([]*store.WebhookRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.WebhookRecord, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memHookStore) DeleteWebhook(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *memHookStore) DisableWebhook(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Active = false
	rec.DisabledReason = reason
	return nil
}

func (m *memHookStore) RecordDeliveryOutcome(_ context.Context, _ string, _ bool) error {
	return nil
}

func (m *memHookStore) AppendDeliveryAttempt(_ context.Context, _ *store.DeliveryAttemptRecord) (int64, error) {
	return 1, nil
}

func (m *memHookStore) QueryDeliveryAttempts(_ context.Context, _ string, _ time.Time, _ int) ([]*store.DeliveryAttemptRecord, error) {
	return nil, nil
}

func (m *memHookStore) AppendWebhookMetric(_ context.Context, _ *store.WebhookMetricRecord) error {
	return nil
}

func TestRegisterWebhookDefaultsActive(t *testing.T) {
	st := newMemHookStore()
	mgr := webhook.NewManager(webhook.DefaultConfig(), st)
	s := testServer(t, func(d *Deps) { d.Webhooks = mgr })

	// A body without "active" registers an active webhook.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"url":         "https://example.com/hook",
		"secret":      "s1",
		"event_types": []string{"task_lifecycle"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody[WebhookResponse](t, rec)
	assert.True(t, body.Active)

	stored, err := st.GetWebhook(context.Background(), body.WebhookID)
	require.NoError(t, err)
	assert.True(t, stored.Active)

	// An explicit false is honored.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"url":         "https://example.com/paused",
		"event_types": []string{"task_lifecycle"},
		"active":      false,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, decodeBody[WebhookResponse](t, rec).Active)
}
