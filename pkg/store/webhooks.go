package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateWebhook registers a new webhook endpoint.
func (s *Store) CreateWebhook(ctx context.Context, rec *WebhookRecord) error {
	eventTypes, err := json.Marshal(rec.EventTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal event types: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO webhooks (webhook_id, url, secret, event_types, active)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.WebhookID, rec.URL, nullString(rec.Secret), eventTypes, rec.Active)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// GetWebhook returns a webhook by id.
func (s *Store) GetWebhook(ctx context.Context, webhookID string) (*WebhookRecord, error) {
	return s.scanWebhook(s.db.QueryRowContext(ctx,
		`SELECT webhook_id, url, secret, event_types, active, disabled_reason,
		        total_deliveries, successful_deliveries, failed_deliveries,
		        last_delivery_at, created_at
		 FROM webhooks WHERE webhook_id = $1`, webhookID))
}

// ListWebhooks returns all registered webhooks.
func (s *Store) ListWebhooks(ctx context.Context) ([]*WebhookRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT webhook_id, url, secret, event_types, active, disabled_reason,
		        total_deliveries, successful_deliveries, failed_deliveries,
		        last_delivery_at, created_at
		 FROM webhooks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*WebhookRecord
	for rows.Next() {
		rec, err := s.scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteWebhook removes a webhook registration and its delivery attempts.
func (s *Store) DeleteWebhook(ctx context.Context, webhookID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE webhook_id = $1`, webhookID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DisableWebhook deactivates a webhook, recording why (e.g. "410 Gone").
func (s *Store) DisableWebhook(ctx context.Context, webhookID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET active = FALSE, disabled_reason = $2 WHERE webhook_id = $1`,
		webhookID, reason)
	if err != nil {
		return fmt.Errorf("failed to disable webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDeliveryOutcome updates webhook counters for one terminal delivery
// outcome: total always increments, exactly one of success/failure increments.
func (s *Store) RecordDeliveryOutcome(ctx context.Context, webhookID string, success bool) error {
	var query string
	if success {
		query = `UPDATE webhooks SET total_deliveries = total_deliveries + 1,
		         successful_deliveries = successful_deliveries + 1,
		         last_delivery_at = now() WHERE webhook_id = $1`
	} else {
		query = `UPDATE webhooks SET total_deliveries = total_deliveries + 1,
		         failed_deliveries = failed_deliveries + 1,
		         last_delivery_at = now() WHERE webhook_id = $1`
	}
	if _, err := s.db.ExecContext(ctx, query, webhookID); err != nil {
		return fmt.Errorf("failed to record delivery outcome: %w", err)
	}
	return nil
}

// AppendDeliveryAttempt persists one delivery attempt. Append-only.
func (s *Store) AppendDeliveryAttempt(ctx context.Context, rec *DeliveryAttemptRecord) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO delivery_attempts
		   (attempt_id, webhook_id, delivery_id, event_type, payload, success,
		    response_code, response_body, error_message, duration_ms, retry_count, dead_letter)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		rec.AttemptID, rec.WebhookID, rec.DeliveryID, rec.EventType, rec.Payload, rec.Success,
		nullInt(rec.ResponseCode), rec.ResponseBody, rec.ErrorMessage,
		rec.DurationMS, rec.RetryCount, rec.DeadLetter,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to persist delivery attempt: %w", err)
	}
	return id, nil
}

// QueryDeliveryAttempts returns attempts for a webhook newest-first.
func (s *Store) QueryDeliveryAttempts(ctx context.Context, webhookID string, since time.Time, limit int) ([]*DeliveryAttemptRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempt_id, webhook_id, delivery_id, event_type, payload, success,
		        response_code, response_body, error_message, duration_ms, retry_count,
		        dead_letter, created_at
		 FROM delivery_attempts
		 WHERE webhook_id = $1 AND created_at >= $2
		 ORDER BY id DESC LIMIT $3`,
		webhookID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*DeliveryAttemptRecord
	for rows.Next() {
		rec := &DeliveryAttemptRecord{}
		var code sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.AttemptID, &rec.WebhookID, &rec.DeliveryID,
			&rec.EventType, &rec.Payload, &rec.Success, &code, &rec.ResponseBody,
			&rec.ErrorMessage, &rec.DurationMS, &rec.RetryCount, &rec.DeadLetter,
			&rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		rec.ResponseCode = int(code.Int64)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendWebhookMetric persists one aggregated metrics window.
func (s *Store) AppendWebhookMetric(ctx context.Context, rec *WebhookMetricRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_metrics
		   (webhook_id, window_start, window_end, avg_delivery_ms, success_rate, error_rate, throughput)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.WebhookID, rec.WindowStart, rec.WindowEnd,
		rec.AvgDeliveryMS, rec.SuccessRate, rec.ErrorRate, rec.Throughput)
	if err != nil {
		return fmt.Errorf("failed to persist webhook metric: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanWebhook(row rowScanner) (*WebhookRecord, error) {
	rec := &WebhookRecord{}
	var secret, disabledReason sql.NullString
	var eventTypes []byte
	var lastDelivery sql.NullTime
	err := row.Scan(&rec.WebhookID, &rec.URL, &secret, &eventTypes, &rec.Active,
		&disabledReason, &rec.TotalDeliveries, &rec.SuccessfulDeliveries,
		&rec.FailedDeliveries, &lastDelivery, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook: %w", err)
	}
	rec.Secret = secret.String
	rec.DisabledReason = disabledReason.String
	if lastDelivery.Valid {
		rec.LastDeliveryAt = &lastDelivery.Time
	}
	if err := json.Unmarshal(eventTypes, &rec.EventTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event types: %w", err)
	}
	return rec, nil
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
