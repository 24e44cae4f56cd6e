// Package notify implements the notification protocol: inbound events are
// validated, persisted, dispatched to registered handlers, and broadcast
// to connected WebSocket clients. Each notification walks the state
// machine received, persisted, dispatched, handled or no_handler,
// processed, with an expired short-circuit before dispatch.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/store"
)

const defaultHandlerTimeout = 30 * time.Second

// NotificationStore is the slice of the event store the protocol needs.
type NotificationStore interface {
	AppendNotification(ctx context.Context, rec *store.NotificationRecord) (int64, error)
	UpdateNotificationStatus(ctx context.Context, notificationID string, status store.NotificationStatus) error
}

// Broadcaster fans a serialized notification out to streaming clients
// best-effort. *Hub satisfies it.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Handler reacts to matching notifications.
type Handler struct {
	ID        string
	Predicate func(*schema.Notification) bool
	Handle    func(ctx context.Context, n *schema.Notification) error
	Active    bool
}

// Result reports where a notification ended up.
type Result struct {
	RecordID int64
	Status   store.NotificationStatus
	// Handlers that ran, by id, with their outcomes.
	Handled []string
	Failed  []string
}

// Service drives the notification state machine. Safe for concurrent use.
type Service struct {
	store       NotificationStore
	broadcaster Broadcaster

	mu       sync.RWMutex
	handlers []*Handler

	handlerTimeout time.Duration
	now            func() time.Time
}

// NewService creates the protocol service. broadcaster may be nil when no
// streaming clients are served.
func NewService(st NotificationStore, broadcaster Broadcaster) *Service {
	return &Service{
		store:          st,
		broadcaster:    broadcaster,
		handlerTimeout: defaultHandlerTimeout,
		now:            time.Now,
	}
}

// SetBroadcaster installs the broadcaster after construction. The service
// and hub reference each other, so one of them has to be wired late. Must
// be called before the service starts accepting notifications.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// RegisterHandler installs a handler. Later registrations with the same id
// replace earlier ones.
func (s *Service) RegisterHandler(h *Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.handlers {
		if existing.ID == h.ID {
			s.handlers[i] = h
			return
		}
	}
	s.handlers = append(s.handlers, h)
}

// SetHandlerActive toggles a handler without removing it.
func (s *Service) SetHandlerActive(id string, active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handlers {
		if h.ID == id {
			h.Active = active
			return true
		}
	}
	return false
}

// Accept runs one notification through the full state machine and returns
// where it ended up. The caller is expected to have built or received a
// schema-valid payload; Accept validates again as a backstop.
func (s *Service) Accept(ctx context.Context, n *schema.Notification) (*Result, error) {
	if err := schema.Validate(n, schema.KindNotification); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize notification: %w", err)
	}

	rec := &store.NotificationRecord{
		NotificationID: n.ID,
		Type:           string(n.Type),
		Priority:       string(n.Priority),
		Source:         n.Source,
		Target:         n.Target,
		Payload:        payload,
		Status:         store.NotificationReceived,
		ExpiresAt:      n.ExpiresAt,
	}
	id, err := s.store.AppendNotification(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}
	result := &Result{RecordID: id}

	s.setStatus(ctx, n.ID, store.NotificationPersisted)

	// Expiry short-circuit: stale notifications are never dispatched.
	if n.ExpiresAt != nil && !n.ExpiresAt.After(s.now().UTC()) {
		s.setStatus(ctx, n.ID, store.NotificationExpired)
		result.Status = store.NotificationExpired
		slog.Info("Notification expired before dispatch",
			"notification_id", n.ID, "type", n.Type)
		return result, nil
	}

	// Streaming broadcast is best-effort; HTTP persistence above is the
	// durable path.
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(payload)
	}

	s.setStatus(ctx, n.ID, store.NotificationDispatch)
	handled, failed := s.dispatch(ctx, n)
	result.Handled = handled
	result.Failed = failed

	status := store.NotificationHandled
	if len(handled) == 0 {
		status = store.NotificationNoHandler
		slog.Warn("No handler succeeded for notification",
			"notification_id", n.ID, "type", n.Type, "failed", failed)
	}
	s.setStatus(ctx, n.ID, status)

	s.setStatus(ctx, n.ID, store.NotificationProcessed)
	result.Status = store.NotificationProcessed
	return result, nil
}

// dispatch runs every matching active handler, each isolated under its own
// deadline with panic recovery. A failing handler never prevents others.
func (s *Service) dispatch(ctx context.Context, n *schema.Notification) (handled, failed []string) {
	s.mu.RLock()
	matching := make([]*Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		if h.Active && h.Predicate != nil && h.Predicate(n) {
			matching = append(matching, h)
		}
	}
	s.mu.RUnlock()

	for _, h := range matching {
		if err := s.runHandler(ctx, h, n); err != nil {
			slog.Warn("Notification handler failed",
				"handler_id", h.ID, "notification_id", n.ID, "error", err)
			failed = append(failed, h.ID)
			continue
		}
		handled = append(handled, h.ID)
	}
	return handled, failed
}

func (s *Service) runHandler(ctx context.Context, h *Handler, n *schema.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.ID, r)
		}
	}()
	handlerCtx, cancel := context.WithTimeout(ctx, s.handlerTimeout)
	defer cancel()
	return h.Handle(handlerCtx, n)
}

func (s *Service) setStatus(ctx context.Context, notificationID string, status store.NotificationStatus) {
	if err := s.store.UpdateNotificationStatus(ctx, notificationID, status); err != nil {
		slog.Error("Failed to update notification status",
			"notification_id", notificationID, "status", status, "error", err)
	}
}
