package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/store"
)

type memNotificationStore struct {
	mu       sync.Mutex
	nextID   int64
	recs     map[string]*store.NotificationRecord
	statuses map[string][]store.NotificationStatus
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{
		recs:     make(map[string]*store.NotificationRecord),
		statuses: make(map[string][]store.NotificationStatus),
	}
}

func (m *memNotificationStore) AppendNotification(_ context.Context, rec *store.NotificationRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.recs[rec.NotificationID] = rec
	m.statuses[rec.NotificationID] = []store.NotificationStatus{rec.Status}
	return rec.ID, nil
}

func (m *memNotificationStore) UpdateNotificationStatus(_ context.Context, notificationID string, status store.NotificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[notificationID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	m.statuses[notificationID] = append(m.statuses[notificationID], status)
	return nil
}

func (m *memNotificationStore) history(notificationID string) []store.NotificationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.NotificationStatus(nil), m.statuses[notificationID]...)
}

type memBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *memBroadcaster) Broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
}

func (b *memBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

func testNotification(t *testing.T) *schema.Notification {
	t.Helper()
	return schema.NewNotification(schema.NotificationTaskStarted, schema.NotificationPriorityMedium,
		"orchestrator", map[string]any{"task_type": "deployment", "estimated_duration": 120})
}

func TestAcceptWalksStateMachine(t *testing.T) {
	st := newMemNotificationStore()
	bc := &memBroadcaster{}
	svc := NewService(st, bc)

	var handledID string
	svc.RegisterHandler(&Handler{
		ID:     "task-tracker",
		Active: true,
		Predicate: func(n *schema.Notification) bool {
			return n.Type == schema.NotificationTaskStarted
		},
		Handle: func(_ context.Context, n *schema.Notification) error {
			handledID = n.ID
			return nil
		},
	})

	n := testNotification(t)
	result, err := svc.Accept(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, store.NotificationProcessed, result.Status)
	assert.Equal(t, []string{"task-tracker"}, result.Handled)
	assert.Empty(t, result.Failed)
	assert.Equal(t, n.ID, handledID)
	assert.Equal(t, 1, bc.count())

	assert.Equal(t, []store.NotificationStatus{
		store.NotificationReceived,
		store.NotificationPersisted,
		store.NotificationDispatch,
		store.NotificationHandled,
		store.NotificationProcessed,
	}, st.history(n.ID))
}

func TestAcceptRejectsInvalidPayload(t *testing.T) {
	svc := NewService(newMemNotificationStore(), nil)

	n := testNotification(t)
	n.Data = map[string]any{} // discriminator requirements unmet

	_, err := svc.Accept(context.Background(), n)
	var verr *schema.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAcceptExpiredShortCircuits(t *testing.T) {
	st := newMemNotificationStore()
	bc := &memBroadcaster{}
	svc := NewService(st, bc)

	called := false
	svc.RegisterHandler(&Handler{
		ID: "h", Active: true,
		Predicate: func(*schema.Notification) bool { return true },
		Handle:    func(context.Context, *schema.Notification) error { called = true; return nil },
	})

	n := testNotification(t)
	past := time.Now().Add(-time.Minute)
	n.ExpiresAt = &past

	result, err := svc.Accept(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, store.NotificationExpired, result.Status)
	assert.False(t, called)
	assert.Equal(t, 0, bc.count())
	assert.Equal(t, []store.NotificationStatus{
		store.NotificationReceived,
		store.NotificationPersisted,
		store.NotificationExpired,
	}, st.history(n.ID))
}

func TestAcceptNoMatchingHandler(t *testing.T) {
	st := newMemNotificationStore()
	svc := NewService(st, nil)

	svc.RegisterHandler(&Handler{
		ID: "alerts-only", Active: true,
		Predicate: func(n *schema.Notification) bool { return n.Type == schema.NotificationSystemAlert },
		Handle:    func(context.Context, *schema.Notification) error { return nil },
	})

	n := testNotification(t)
	result, err := svc.Accept(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, store.NotificationProcessed, result.Status)
	assert.Empty(t, result.Handled)
	assert.Contains(t, st.history(n.ID), store.NotificationNoHandler)
}

func TestHandlerIsolation(t *testing.T) {
	st := newMemNotificationStore()
	svc := NewService(st, nil)

	matchAll := func(*schema.Notification) bool { return true }
	svc.RegisterHandler(&Handler{
		ID: "panicky", Active: true, Predicate: matchAll,
		Handle: func(context.Context, *schema.Notification) error { panic("boom") },
	})
	svc.RegisterHandler(&Handler{
		ID: "failing", Active: true, Predicate: matchAll,
		Handle: func(context.Context, *schema.Notification) error { return errors.New("downstream") },
	})
	svc.RegisterHandler(&Handler{
		ID: "working", Active: true, Predicate: matchAll,
		Handle: func(context.Context, *schema.Notification) error { return nil },
	})

	n := testNotification(t)
	result, err := svc.Accept(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, []string{"working"}, result.Handled)
	assert.ElementsMatch(t, []string{"panicky", "failing"}, result.Failed)
	assert.Contains(t, st.history(n.ID), store.NotificationHandled)
}

func TestAllHandlersFailingMeansNoHandler(t *testing.T) {
	st := newMemNotificationStore()
	svc := NewService(st, nil)
	svc.RegisterHandler(&Handler{
		ID: "failing", Active: true,
		Predicate: func(*schema.Notification) bool { return true },
		Handle:    func(context.Context, *schema.Notification) error { return errors.New("nope") },
	})

	n := testNotification(t)
	result, err := svc.Accept(context.Background(), n)
	require.NoError(t, err)
	assert.Contains(t, st.history(n.ID), store.NotificationNoHandler)
	assert.Equal(t, []string{"failing"}, result.Failed)
}

func TestInactiveHandlerSkipped(t *testing.T) {
	svc := NewService(newMemNotificationStore(), nil)

	called := false
	svc.RegisterHandler(&Handler{
		ID: "dormant", Active: false,
		Predicate: func(*schema.Notification) bool { return true },
		Handle:    func(context.Context, *schema.Notification) error { called = true; return nil },
	})

	_, err := svc.Accept(context.Background(), testNotification(t))
	require.NoError(t, err)
	assert.False(t, called)

	// Reactivation picks it back up.
	require.True(t, svc.SetHandlerActive("dormant", true))
	_, err = svc.Accept(context.Background(), testNotification(t))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestHandlerDeadline(t *testing.T) {
	svc := NewService(newMemNotificationStore(), nil)
	svc.handlerTimeout = 20 * time.Millisecond

	svc.RegisterHandler(&Handler{
		ID: "slow", Active: true,
		Predicate: func(*schema.Notification) bool { return true },
		Handle: func(ctx context.Context, _ *schema.Notification) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	result, err := svc.Accept(context.Background(), testNotification(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"slow"}, result.Failed)
}

func TestRegisterHandlerReplacesByID(t *testing.T) {
	svc := NewService(newMemNotificationStore(), nil)

	svc.RegisterHandler(&Handler{
		ID: "h", Active: true,
		Predicate: func(*schema.Notification) bool { return true },
		Handle:    func(context.Context, *schema.Notification) error { return errors.New("old") },
	})
	svc.RegisterHandler(&Handler{
		ID: "h", Active: true,
		Predicate: func(*schema.Notification) bool { return true },
		Handle:    func(context.Context, *schema.Notification) error { return nil },
	})

	result, err := svc.Accept(context.Background(), testNotification(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, result.Handled)
}
