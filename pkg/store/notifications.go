package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppendNotification persists a notification record and returns its monotonic id.
// The record is durable before return.
func (s *Store) AppendNotification(ctx context.Context, rec *NotificationRecord) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO notifications
		   (notification_id, type, priority, source, target, payload, status, pinned, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		rec.NotificationID, rec.Type, rec.Priority, rec.Source, nullString(rec.Target),
		rec.Payload, string(rec.Status), rec.Pinned, rec.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to persist notification: %w", err)
	}
	return id, nil
}

// GetNotification returns the latest state of a notification by its payload id.
func (s *Store) GetNotification(ctx context.Context, notificationID string) (*NotificationRecord, error) {
	rec := &NotificationRecord{}
	var target sql.NullString
	var processedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, notification_id, type, priority, source, target, payload, status,
		        pinned, expires_at, created_at, processed_at
		 FROM notifications WHERE notification_id = $1`,
		notificationID,
	).Scan(&rec.ID, &rec.NotificationID, &rec.Type, &rec.Priority, &rec.Source, &target,
		&rec.Payload, &rec.Status, &rec.Pinned, &rec.ExpiresAt, &rec.CreatedAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	rec.Target = target.String
	if processedAt.Valid {
		rec.ProcessedAt = &processedAt.Time
	}
	return rec, nil
}

// UpdateNotificationStatus transitions a notification to a new state.
// Last-writer-wins; terminal states additionally record processed_at.
func (s *Store) UpdateNotificationStatus(ctx context.Context, notificationID string, status NotificationStatus) error {
	var processedAt *time.Time
	switch status {
	case NotificationProcessed, NotificationExpired:
		now := time.Now().UTC()
		processedAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = $2, processed_at = COALESCE($3, processed_at)
		 WHERE notification_id = $1`,
		notificationID, string(status), processedAt)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// QueryNotifications returns notifications newest-first, optionally filtered
// by type and bounded by limit.
func (s *Store) QueryNotifications(ctx context.Context, notificationType string, limit int) ([]*NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, notification_id, type, priority, source, target, payload, status,
		        pinned, expires_at, created_at, processed_at
		 FROM notifications
		 WHERE ($1 = '' OR type = $1)
		 ORDER BY id DESC LIMIT $2`,
		notificationType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*NotificationRecord
	for rows.Next() {
		rec := &NotificationRecord{}
		var target sql.NullString
		var processedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.NotificationID, &rec.Type, &rec.Priority, &rec.Source,
			&target, &rec.Payload, &rec.Status, &rec.Pinned, &rec.ExpiresAt,
			&rec.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		rec.Target = target.String
		if processedAt.Valid {
			rec.ProcessedAt = &processedAt.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ScanNotifications returns notifications with id greater than sinceID in
// ascending order, for reconciliation.
func (s *Store) ScanNotifications(ctx context.Context, sinceID int64, limit int) ([]*NotificationRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, notification_id, type, priority, source, target, payload, status,
		        pinned, expires_at, created_at, processed_at
		 FROM notifications WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*NotificationRecord
	for rows.Next() {
		rec := &NotificationRecord{}
		var target sql.NullString
		var processedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.NotificationID, &rec.Type, &rec.Priority, &rec.Source,
			&target, &rec.Payload, &rec.Status, &rec.Pinned, &rec.ExpiresAt,
			&rec.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		rec.Target = target.String
		if processedAt.Valid {
			rec.ProcessedAt = &processedAt.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
