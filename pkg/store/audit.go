package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// AppendAuditEvent persists one audit event and returns its monotonic id.
func (s *Store) AppendAuditEvent(ctx context.Context, rec *AuditEventRecord) (int64, error) {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal audit data: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO audit_events (event_type, level, user_id, action_name, execution_id, data)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.EventType, string(rec.Level), nullString(rec.UserID),
		nullString(rec.ActionName), nullString(rec.ExecutionID), data,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to persist audit event: %w", err)
	}
	return id, nil
}

// AppendAuditEvents persists a batch of audit events in one transaction.
// Used by the audit logger's buffer drain.
func (s *Store) AppendAuditEvents(ctx context.Context, recs []*AuditEventRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_events (event_type, level, user_id, action_name, execution_id, data)
		 VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range recs {
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal audit data: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.EventType, string(rec.Level), nullString(rec.UserID),
			nullString(rec.ActionName), nullString(rec.ExecutionID), data); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit batch: %w", err)
	}
	return nil
}

// QueryAuditEvents returns audit events matching the filter, newest-first.
func (s *Store) QueryAuditEvents(ctx context.Context, filter AuditFilter) ([]*AuditEventRecord, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.EventType != "" {
		conds = append(conds, "event_type = "+arg(filter.EventType))
	}
	if filter.Level != "" {
		conds = append(conds, "level = "+arg(string(filter.Level)))
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = "+arg(filter.UserID))
	}
	if filter.ActionName != "" {
		conds = append(conds, "action_name = "+arg(filter.ActionName))
	}
	if filter.ExecutionID != "" {
		conds = append(conds, "execution_id = "+arg(filter.ExecutionID))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.Since))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "created_at <= "+arg(filter.Until))
	}
	if filter.MinLevel != "" {
		// Level ranking is not lexicographic; expand to the allowed set.
		var levels []string
		for _, l := range []AuditLevel{AuditInfo, AuditWarning, AuditError, AuditCritical} {
			if l.Rank() >= filter.MinLevel.Rank() {
				levels = append(levels, "'"+string(l)+"'")
			}
		}
		conds = append(conds, "level IN ("+strings.Join(levels, ", ")+")")
	}

	query := `SELECT id, event_type, level, user_id, action_name, execution_id, data, created_at
	          FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY id DESC LIMIT " + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanAuditEvents(rows)
}

// SearchAuditEvents returns audit events whose serialized data contains the
// given text, newest-first.
func (s *Store) SearchAuditEvents(ctx context.Context, text string, limit int) ([]*AuditEventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, level, user_id, action_name, execution_id, data, created_at
		 FROM audit_events
		 WHERE data::text ILIKE '%' || $1 || '%' OR event_type ILIKE '%' || $1 || '%'
		 ORDER BY id DESC LIMIT $2`,
		text, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanAuditEvents(rows)
}

// ScanAuditEvents returns audit events with id greater than sinceID in
// ascending order, for reconciliation and export.
func (s *Store) ScanAuditEvents(ctx context.Context, sinceID int64, limit int) ([]*AuditEventRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, level, user_id, action_name, execution_id, data, created_at
		 FROM audit_events WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanAuditEvents(rows)
}

func scanAuditEvents(rows *sql.Rows) ([]*AuditEventRecord, error) {
	var recs []*AuditEventRecord
	for rows.Next() {
		rec := &AuditEventRecord{}
		var userID, actionName, executionID sql.NullString
		var data []byte
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.Level, &userID, &actionName,
			&executionID, &data, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		rec.UserID = userID.String
		rec.ActionName = actionName.String
		rec.ExecutionID = executionID.String
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit data: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
