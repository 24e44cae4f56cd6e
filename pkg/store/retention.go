package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionConfig controls the TTL cleanup loop.
type RetentionConfig struct {
	// NotificationTTL is how long unpinned notifications are retained.
	NotificationTTL time.Duration
	// DeliveryAttemptTTL is how long delivery attempts are retained.
	DeliveryAttemptTTL time.Duration
	// MetricTTL is how long aggregated webhook metrics are retained.
	MetricTTL time.Duration
	// Interval is how often the cleanup loop runs.
	Interval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		NotificationTTL:    24 * time.Hour,
		DeliveryAttemptTTL: 7 * 24 * time.Hour,
		MetricTTL:          30 * 24 * time.Hour,
		Interval:           1 * time.Hour,
	}
}

// RetentionService periodically enforces retention policies:
//   - Removes unpinned notifications past their TTL.
//   - Removes delivery attempts and webhook metrics past their TTLs.
//   - Expires overdue pending approvals.
//
// All operations are idempotent and safe to run from multiple replicas.
type RetentionService struct {
	config RetentionConfig
	store  *Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionService creates a new retention service.
func NewRetentionService(cfg RetentionConfig, store *Store) *RetentionService {
	return &RetentionService{config: cfg, store: store}
}

// Start launches the background cleanup loop.
func (s *RetentionService) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started",
		"notification_ttl", s.config.NotificationTTL,
		"delivery_attempt_ttl", s.config.DeliveryAttemptTTL,
		"interval", s.config.Interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *RetentionService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention service stopped")
}

func (s *RetentionService) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *RetentionService) runAll(ctx context.Context) {
	s.cleanupNotifications(ctx)
	s.cleanupDeliveryAttempts(ctx)
	s.cleanupMetrics(ctx)
	s.expireApprovals(ctx)
}

func (s *RetentionService) cleanupNotifications(ctx context.Context) {
	count, err := s.deleteOlderThan(ctx,
		`DELETE FROM notifications WHERE pinned = FALSE AND created_at < $1`,
		s.config.NotificationTTL)
	if err != nil {
		slog.Error("Retention: notification cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: removed expired notifications", "count", count)
	}
}

func (s *RetentionService) cleanupDeliveryAttempts(ctx context.Context) {
	count, err := s.deleteOlderThan(ctx,
		`DELETE FROM delivery_attempts WHERE created_at < $1`,
		s.config.DeliveryAttemptTTL)
	if err != nil {
		slog.Error("Retention: delivery attempt cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: removed old delivery attempts", "count", count)
	}
}

func (s *RetentionService) cleanupMetrics(ctx context.Context) {
	count, err := s.deleteOlderThan(ctx,
		`DELETE FROM webhook_metrics WHERE created_at < $1`,
		s.config.MetricTTL)
	if err != nil {
		slog.Error("Retention: metric cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: removed old webhook metrics", "count", count)
	}
}

func (s *RetentionService) expireApprovals(ctx context.Context) {
	count, err := s.store.ExpireApprovals(ctx)
	if err != nil {
		slog.Error("Retention: approval expiry failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: expired overdue approvals", "count", count)
	}
}

func (s *RetentionService) deleteOlderThan(ctx context.Context, query string, ttl time.Duration) (int64, error) {
	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := s.store.db.ExecContext(writeCtx, query, time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("retention delete failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
