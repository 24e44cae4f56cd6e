package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/codeready-toolchain/relay/pkg/store"
)

// Sink accepts batches of audit events for persistence.
type Sink interface {
	Write(ctx context.Context, recs []*store.AuditEventRecord) error
	Close() error
}

// EventAppender is the slice of the store the store sink needs.
type EventAppender interface {
	AppendAuditEvents(ctx context.Context, recs []*store.AuditEventRecord) error
}

// StoreSink persists audit events to the event store.
type StoreSink struct {
	appender EventAppender
}

// NewStoreSink creates a sink backed by the event store.
func NewStoreSink(appender EventAppender) *StoreSink {
	return &StoreSink{appender: appender}
}

func (s *StoreSink) Write(ctx context.Context, recs []*store.AuditEventRecord) error {
	return s.appender.AppendAuditEvents(ctx, recs)
}

func (s *StoreSink) Close() error { return nil }

// fileEvent is the JSONL wire form of an audit event.
type fileEvent struct {
	ID          int64          `json:"id"`
	Timestamp   string         `json:"timestamp"`
	EventType   string         `json:"event_type"`
	Level       string         `json:"level"`
	UserID      string         `json:"user_id,omitempty"`
	ActionName  string         `json:"action_name,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// FileSink appends audit events to a local file, one JSON object per line.
// It is the stable sink events at error level and above are written through
// to before Log acknowledges. Rotation is left to external tooling.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the JSONL file at path in append mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file %s: %w", path, err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Write(_ context.Context, recs []*store.AuditEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		line, err := json.Marshal(fileEvent{
			ID:          rec.ID,
			Timestamp:   rec.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			EventType:   rec.EventType,
			Level:       string(rec.Level),
			UserID:      rec.UserID,
			ActionName:  rec.ActionName,
			ExecutionID: rec.ExecutionID,
			Data:        rec.Data,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal audit event: %w", err)
		}
		if _, err := s.file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to append audit event: %w", err)
		}
	}
	return s.file.Sync()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
