// Package audit provides structured audit logging with asynchronous
// persistence. Events are accepted into a bounded in-memory buffer and
// drained to sinks by a background goroutine so callers on the hot path
// never block on storage. Events at error level or above are additionally
// written through to the file sink before Log returns.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/relay/pkg/store"
)

// ErrSinkUnavailable is returned when no sink can accept an event: the
// buffer is full of critical events, or a critical event could not be
// enqueued within the configured deadline.
var ErrSinkUnavailable = errors.New("audit sink unavailable")

// Config controls logger buffering and flush behavior.
type Config struct {
	// BufferSize bounds the in-memory event buffer.
	BufferSize int
	// FlushInterval is how often the drain goroutine flushes the buffer.
	FlushInterval time.Duration
	// CriticalDeadline bounds how long a critical event waits for buffer
	// space before Log gives up with ErrSinkUnavailable.
	CriticalDeadline time.Duration
}

// DefaultConfig returns the built-in logger defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:       1024,
		FlushInterval:    250 * time.Millisecond,
		CriticalDeadline: 2 * time.Second,
	}
}

// queued is a buffered event plus a flag recording whether the file sink
// already has it (write-through for level >= error).
type queued struct {
	rec         *store.AuditEventRecord
	fileWritten bool
}

// Logger is the audit entry point. Safe for concurrent use.
type Logger struct {
	config    Config
	storeSink Sink
	fileSink  Sink
	querier   Querier

	seq atomic.Int64

	mu  sync.Mutex
	buf []*queued

	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes optional event fields.
type Option func(*store.AuditEventRecord)

// WithUser attaches the acting user to the event.
func WithUser(userID string) Option {
	return func(rec *store.AuditEventRecord) { rec.UserID = userID }
}

// WithAction attaches the action name to the event.
func WithAction(actionName string) Option {
	return func(rec *store.AuditEventRecord) { rec.ActionName = actionName }
}

// WithExecution attaches the execution id to the event.
func WithExecution(executionID string) Option {
	return func(rec *store.AuditEventRecord) { rec.ExecutionID = executionID }
}

// NewLogger creates a logger draining to the given sinks. storeSink is the
// durable sink; fileSink is the stable append-only sink that receives
// write-through for error and critical events. Either may be nil, but not
// both. querier backs Query/Search/Summary/Export and may be nil when the
// logger is write-only.
func NewLogger(cfg Config, storeSink, fileSink Sink, querier Querier) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.CriticalDeadline <= 0 {
		cfg.CriticalDeadline = DefaultConfig().CriticalDeadline
	}
	return &Logger{
		config:    cfg,
		storeSink: storeSink,
		fileSink:  fileSink,
		querier:   querier,
	}
}

// Start launches the background drain goroutine.
func (l *Logger) Start(ctx context.Context) {
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.drainLoop(ctx)
	slog.Info("Audit logger started",
		"buffer_size", l.config.BufferSize,
		"flush_interval", l.config.FlushInterval)
}

// Stop flushes remaining events and stops the drain goroutine.
func (l *Logger) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	slog.Info("Audit logger stopped")
}

// Log records one audit event and returns its id. Events below error level
// are buffered and never block. Events at error level or above are written
// through to the file sink first; critical events additionally wait up to
// CriticalDeadline for buffer space instead of being dropped.
func (l *Logger) Log(ctx context.Context, eventType string, level store.AuditLevel, data map[string]any, opts ...Option) (int64, error) {
	rec := &store.AuditEventRecord{
		ID:        l.seq.Add(1),
		EventType: eventType,
		Level:     level,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(rec)
	}

	q := &queued{rec: rec}
	if level.Rank() >= store.AuditError.Rank() && l.fileSink != nil {
		if err := l.fileSink.Write(ctx, []*store.AuditEventRecord{rec}); err != nil {
			slog.Error("Audit file write-through failed", "event_type", eventType, "error", err)
		} else {
			q.fileWritten = true
		}
	}

	if err := l.enqueue(q); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func (l *Logger) enqueue(q *queued) error {
	l.mu.Lock()
	if len(l.buf) < l.config.BufferSize {
		l.buf = append(l.buf, q)
		l.mu.Unlock()
		return nil
	}

	if q.rec.Level != store.AuditCritical {
		// Overflow: drop the oldest non-critical event to make room.
		for i, old := range l.buf {
			if old.rec.Level != store.AuditCritical {
				slog.Warn("Audit buffer overflow, dropping oldest event",
					"dropped_type", old.rec.EventType, "dropped_level", old.rec.Level)
				copy(l.buf[i:], l.buf[i+1:])
				l.buf[len(l.buf)-1] = q
				l.mu.Unlock()
				return nil
			}
		}
		// Buffer holds only critical events; this one loses.
		l.mu.Unlock()
		return ErrSinkUnavailable
	}
	l.mu.Unlock()

	// Critical events wait for the drain goroutine to free space.
	deadline := time.Now().Add(l.config.CriticalDeadline)
	for time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		l.mu.Lock()
		if len(l.buf) < l.config.BufferSize {
			l.buf = append(l.buf, q)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
	}
	return ErrSinkUnavailable
}

func (l *Logger) drainLoop(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush runs on a fresh context so shutdown still persists
			// whatever is buffered.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			l.flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			l.flush(ctx)
		}
	}
}

// Flush synchronously drains the buffer to the sinks.
func (l *Logger) Flush(ctx context.Context) {
	l.flush(ctx)
}

func (l *Logger) flush(ctx context.Context) {
	l.mu.Lock()
	if len(l.buf) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.buf
	l.buf = nil
	l.mu.Unlock()

	recs := make([]*store.AuditEventRecord, 0, len(batch))
	var fileRecs []*store.AuditEventRecord
	for _, q := range batch {
		recs = append(recs, q.rec)
		if !q.fileWritten {
			fileRecs = append(fileRecs, q.rec)
		}
	}

	if l.storeSink != nil {
		if err := l.storeSink.Write(ctx, recs); err != nil {
			slog.Error("Audit store flush failed", "count", len(recs), "error", err)
		}
	}
	if l.fileSink != nil && len(fileRecs) > 0 {
		if err := l.fileSink.Write(ctx, fileRecs); err != nil {
			slog.Error("Audit file flush failed", "count", len(fileRecs), "error", err)
		}
	}
}

// Buffered returns the number of events waiting to be flushed.
func (l *Logger) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}
