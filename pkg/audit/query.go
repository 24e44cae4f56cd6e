package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/codeready-toolchain/relay/pkg/store"
)

// Querier is the slice of the store the read surface needs.
type Querier interface {
	QueryAuditEvents(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEventRecord, error)
	SearchAuditEvents(ctx context.Context, text string, limit int) ([]*store.AuditEventRecord, error)
}

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// Summary aggregates audit events over a time window.
type Summary struct {
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	Total       int            `json:"total"`
	ByLevel     map[string]int `json:"by_level"`
	ByEventType map[string]int `json:"by_event_type"`
}

// Query returns persisted audit events matching the filter, newest-first.
// Events still in the buffer are not visible until the next flush.
func (l *Logger) Query(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEventRecord, error) {
	if l.querier == nil {
		return nil, fmt.Errorf("audit logger has no query backend")
	}
	return l.querier.QueryAuditEvents(ctx, filter)
}

// Search returns persisted audit events whose type or data contains text.
func (l *Logger) Search(ctx context.Context, text string, limit int) ([]*store.AuditEventRecord, error) {
	if l.querier == nil {
		return nil, fmt.Errorf("audit logger has no query backend")
	}
	return l.querier.SearchAuditEvents(ctx, text, limit)
}

// Summarize returns event counts by level and type over the trailing window.
func (l *Logger) Summarize(ctx context.Context, window time.Duration) (*Summary, error) {
	now := time.Now().UTC()
	recs, err := l.Query(ctx, store.AuditFilter{
		Since: now.Add(-window),
		Limit: 10000,
	})
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		WindowStart: now.Add(-window),
		WindowEnd:   now,
		Total:       len(recs),
		ByLevel:     map[string]int{},
		ByEventType: map[string]int{},
	}
	for _, rec := range recs {
		sum.ByLevel[string(rec.Level)]++
		sum.ByEventType[rec.EventType]++
	}
	return sum, nil
}

// Export encodes events matching the filter as a byte stream in the given
// format.
func (l *Logger) Export(ctx context.Context, format ExportFormat, filter store.AuditFilter) ([]byte, error) {
	recs, err := l.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	switch format {
	case ExportJSON:
		return exportJSON(recs)
	case ExportCSV:
		return exportCSV(recs)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportJSON(recs []*store.AuditEventRecord) ([]byte, error) {
	out := make([]fileEvent, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fileEvent{
			ID:          rec.ID,
			Timestamp:   rec.CreatedAt.UTC().Format(time.RFC3339),
			EventType:   rec.EventType,
			Level:       string(rec.Level),
			UserID:      rec.UserID,
			ActionName:  rec.ActionName,
			ExecutionID: rec.ExecutionID,
			Data:        rec.Data,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

func exportCSV(recs []*store.AuditEventRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "timestamp", "event_type", "level", "user_id", "action_name", "execution_id", "data"}); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range recs {
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit data: %w", err)
		}
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.EventType,
			string(rec.Level),
			rec.UserID,
			rec.ActionName,
			rec.ExecutionID,
			string(data),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
