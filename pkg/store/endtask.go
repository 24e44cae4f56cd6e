package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// AppendEndTaskEvent persists an agent_end_task event (unprocessed) and
// returns its monotonic id.
func (s *Store) AppendEndTaskEvent(ctx context.Context, rec *EndTaskRecord) (int64, error) {
	cleanup, err := json.Marshal(rec.CleanupActions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal cleanup actions: %w", err)
	}
	next, err := json.Marshal(rec.NextSteps)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal next steps: %w", err)
	}
	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO agent_end_task_events
		   (task_id, agent_id, reason, execution_summary, cleanup_actions, next_steps, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		rec.TaskID, rec.AgentID, rec.Reason, rec.ExecutionSummary, cleanup, next, md,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to persist end-task event: %w", err)
	}
	return id, nil
}

// GetEndTaskEvent returns an end-task event by id.
func (s *Store) GetEndTaskEvent(ctx context.Context, id int64) (*EndTaskRecord, error) {
	rec := &EndTaskRecord{}
	var cleanup, next, md []byte
	var processedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, agent_id, reason, execution_summary, cleanup_actions,
		        next_steps, metadata, processed, webhook_sent, created_at, processed_at
		 FROM agent_end_task_events WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.TaskID, &rec.AgentID, &rec.Reason, &rec.ExecutionSummary,
		&cleanup, &next, &md, &rec.Processed, &rec.WebhookSent, &rec.CreatedAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get end-task event: %w", err)
	}
	if err := json.Unmarshal(cleanup, &rec.CleanupActions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cleanup actions: %w", err)
	}
	if err := json.Unmarshal(next, &rec.NextSteps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next steps: %w", err)
	}
	if err := json.Unmarshal(md, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if processedAt.Valid {
		rec.ProcessedAt = &processedAt.Time
	}
	return rec, nil
}

// MarkEndTaskProcessed flags an end-task event as processed and records
// whether the webhook fan-out was performed.
func (s *Store) MarkEndTaskProcessed(ctx context.Context, id int64, webhookSent bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_end_task_events
		 SET processed = TRUE, webhook_sent = $2, processed_at = now()
		 WHERE id = $1`,
		id, webhookSent)
	if err != nil {
		return fmt.Errorf("failed to mark end-task processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// QueryEndTaskEvents returns end-task events for a task, newest-first.
func (s *Store) QueryEndTaskEvents(ctx context.Context, taskID string, limit int) ([]*EndTaskRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, agent_id, reason, execution_summary, cleanup_actions,
		        next_steps, metadata, processed, webhook_sent, created_at, processed_at
		 FROM agent_end_task_events
		 WHERE ($1 = '' OR task_id = $1)
		 ORDER BY id DESC LIMIT $2`,
		taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query end-task events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*EndTaskRecord
	for rows.Next() {
		rec := &EndTaskRecord{}
		var cleanup, next, md []byte
		var processedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.AgentID, &rec.Reason,
			&rec.ExecutionSummary, &cleanup, &next, &md, &rec.Processed,
			&rec.WebhookSent, &rec.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("failed to scan end-task event: %w", err)
		}
		if err := json.Unmarshal(cleanup, &rec.CleanupActions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cleanup actions: %w", err)
		}
		if err := json.Unmarshal(next, &rec.NextSteps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal next steps: %w", err)
		}
		if err := json.Unmarshal(md, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		if processedAt.Valid {
			rec.ProcessedAt = &processedAt.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
