package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/relay/pkg/store"
)

// Stats is the reconciled view of one webhook's delivery history: lifetime
// counters from the registration row plus the most recent aggregation
// window computed from raw attempts.
type Stats struct {
	WebhookID            string     `json:"webhook_id"`
	URL                  string     `json:"url"`
	Active               bool       `json:"active"`
	DisabledReason       string     `json:"disabled_reason,omitempty"`
	TotalDeliveries      int64      `json:"total_deliveries"`
	SuccessfulDeliveries int64      `json:"successful_deliveries"`
	FailedDeliveries     int64      `json:"failed_deliveries"`
	LastDeliveryAt       *time.Time `json:"last_delivery_at,omitempty"`
	WindowAttempts       int        `json:"window_attempts"`
	WindowDeadLetters    int        `json:"window_dead_letters"`
	AvgDeliveryMS        float64    `json:"avg_delivery_ms"`
	SuccessRate          float64    `json:"success_rate"`
	ErrorRate            float64    `json:"error_rate"`
	Throughput           float64    `json:"throughput"` // deliveries per minute
}

// Stats aggregates the last hour of delivery attempts for one webhook and
// combines them with its lifetime counters.
func (m *Manager) Stats(ctx context.Context, webhookID string) (*Stats, error) {
	hook, err := m.store.GetWebhook(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	since := m.now().Add(-time.Hour)
	attempts, err := m.store.QueryDeliveryAttempts(ctx, webhookID, since, 1000)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		WebhookID:            hook.WebhookID,
		URL:                  hook.URL,
		Active:               hook.Active,
		DisabledReason:       hook.DisabledReason,
		TotalDeliveries:      hook.TotalDeliveries,
		SuccessfulDeliveries: hook.SuccessfulDeliveries,
		FailedDeliveries:     hook.FailedDeliveries,
		LastDeliveryAt:       hook.LastDeliveryAt,
	}
	agg := aggregate(attempts)
	stats.WindowAttempts = agg.count
	stats.WindowDeadLetters = agg.deadLetters
	stats.AvgDeliveryMS = agg.avgDurationMS
	stats.SuccessRate = agg.successRate
	stats.ErrorRate = agg.errorRate
	stats.Throughput = agg.throughput
	return stats, nil
}

// metricsWorker periodically persists one aggregated metrics window per
// webhook that saw traffic in the last hour.
func (m *Manager) metricsWorker() {
	defer m.workerWG.Done()
	ticker := time.NewTicker(m.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.aggregateAll()
		}
	}
}

func (m *Manager) aggregateAll() {
	hooks, err := m.store.ListWebhooks(m.ctx)
	if err != nil {
		slog.Error("Failed to list webhooks for metrics aggregation", "error", err)
		return
	}

	windowEnd := m.now()
	windowStart := windowEnd.Add(-time.Hour)

	for _, hook := range hooks {
		attempts, err := m.store.QueryDeliveryAttempts(m.ctx, hook.WebhookID, windowStart, 1000)
		if err != nil {
			slog.Error("Failed to query delivery attempts",
				"webhook_id", hook.WebhookID, "error", err)
			continue
		}
		if len(attempts) == 0 {
			continue
		}

		agg := aggregate(attempts)
		rec := &store.WebhookMetricRecord{
			WebhookID:     hook.WebhookID,
			WindowStart:   windowStart,
			WindowEnd:     windowEnd,
			AvgDeliveryMS: agg.avgDurationMS,
			SuccessRate:   agg.successRate,
			ErrorRate:     agg.errorRate,
			Throughput:    agg.throughput,
		}
		if err := m.store.AppendWebhookMetric(m.ctx, rec); err != nil {
			slog.Error("Failed to persist webhook metrics",
				"webhook_id", hook.WebhookID, "error", err)
		}
	}
}

type aggregation struct {
	count         int
	deadLetters   int
	avgDurationMS float64
	successRate   float64
	errorRate     float64
	throughput    float64
}

func aggregate(attempts []*store.DeliveryAttemptRecord) aggregation {
	agg := aggregation{count: len(attempts)}
	if agg.count == 0 {
		return agg
	}

	var successes int
	var totalMS int64
	for _, a := range attempts {
		if a.Success {
			successes++
		}
		if a.DeadLetter {
			agg.deadLetters++
		}
		totalMS += a.DurationMS
	}

	agg.avgDurationMS = float64(totalMS) / float64(agg.count)
	agg.successRate = float64(successes) / float64(agg.count)
	agg.errorRate = 1 - agg.successRate
	agg.throughput = float64(agg.count) / 60.0
	return agg
}
