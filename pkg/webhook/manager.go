// Package webhook delivers lifecycle events to registered HTTP endpoints:
// parallel signed deliveries, exponential-backoff retries, dead-letter
// persistence, per-endpoint circuit breaking, and rolling delivery
// metrics.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/store"
	"github.com/codeready-toolchain/relay/pkg/version"
)

// ErrBackpressure means the delivery queue is full. Callers may retry
// later; the overflow is never a silent drop.
var ErrBackpressure = errors.New("webhook queue full")

// errBreakerOpen marks attempts short-circuited by the circuit breaker.
var errBreakerOpen = errors.New("circuit breaker open")

// successCodes are the HTTP statuses that complete a delivery.
var successCodes = map[int]bool{200: true, 201: true, 202: true, 204: true}

const responseBodyLimit = 4 * 1024

// Config tunes the delivery pipeline.
type Config struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
	Jitter         bool
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration
	// MetricsInterval is how often rolling delivery metrics are aggregated.
	MetricsInterval time.Duration
}

// DefaultConfig returns the built-in delivery defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       256,
		MaxRetries:      5,
		InitialBackoff:  time.Second,
		Multiplier:      2.0,
		MaxBackoff:      300 * time.Second,
		Jitter:          true,
		ConnectTimeout:  10 * time.Second,
		ReadTimeout:     30 * time.Second,
		TotalTimeout:    60 * time.Second,
		MetricsInterval: 60 * time.Second,
	}
}

// Store is the slice of the event store the manager needs.
type Store interface {
	CreateWebhook(ctx context.Context, rec *store.WebhookRecord) error
	GetWebhook(ctx context.Context, webhookID string) (*store.WebhookRecord, error)
	ListWebhooks(ctx context.Context) ([]*store.WebhookRecord, error)
	DeleteWebhook(ctx context.Context, webhookID string) error
	DisableWebhook(ctx context.Context, webhookID, reason string) error
	RecordDeliveryOutcome(ctx context.Context, webhookID string, success bool) error
	AppendDeliveryAttempt(ctx context.Context, rec *store.DeliveryAttemptRecord) (int64, error)
	QueryDeliveryAttempts(ctx context.Context, webhookID string, since time.Time, limit int) ([]*store.DeliveryAttemptRecord, error)
	AppendWebhookMetric(ctx context.Context, rec *store.WebhookMetricRecord) error
}

// task is one delivery chain to one endpoint. RetryCount is the number of
// retries already performed (attempt RetryCount+1 is next).
type task struct {
	webhook    *store.WebhookRecord
	deliveryID string
	eventType  string
	payload    map[string]any
	body       []byte // canonical JSON, signed
	retryCount int
}

// Manager runs the four delivery workloads: bounded ingress, parallel
// delivery workers, the retry scheduler, and the metrics aggregator.
type Manager struct {
	config Config
	store  Store
	client *http.Client

	queue chan *task

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker

	ctx      context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup
	retryWG  sync.WaitGroup
	stopOnce sync.Once

	now func() time.Time
}

// NewManager creates a webhook manager backed by st.
func NewManager(cfg Config, st Store) *Manager {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = def.TotalTimeout
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = def.MetricsInterval
	}

	return &Manager{
		config: cfg,
		store:  st,
		client: &http.Client{
			Timeout: cfg.TotalTimeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
				ResponseHeaderTimeout: cfg.ReadTimeout,
				MaxIdleConnsPerHost:   4,
			},
		},
		queue:    make(chan *task, cfg.QueueSize),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		now:      time.Now,
	}
}

// Start launches the delivery workers and the metrics aggregator.
func (m *Manager) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	for i := 0; i < m.config.Workers; i++ {
		m.workerWG.Add(1)
		go m.deliveryWorker(i)
	}
	m.workerWG.Add(1)
	go m.metricsWorker()

	slog.Info("Webhook manager started",
		"workers", m.config.Workers, "queue_size", m.config.QueueSize,
		"max_retries", m.config.MaxRetries)
}

// Stop drains in-flight work within grace and shuts the workers down.
// Queued tasks beyond the grace period are abandoned (their attempts are
// already persisted, so nothing is silently lost).
func (m *Manager) Stop(grace time.Duration) {
	m.stopOnce.Do(func() {
		if m.cancel == nil {
			return
		}

		drained := make(chan struct{})
		go func() {
			m.retryWG.Wait()
			for len(m.queue) > 0 {
				time.Sleep(10 * time.Millisecond)
			}
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(grace):
			slog.Warn("Webhook drain grace expired, abandoning queued deliveries",
				"queued", len(m.queue))
		}

		m.cancel()
		m.workerWG.Wait()
		slog.Info("Webhook manager stopped")
	})
}

// Register creates a webhook from a validated registration payload and
// returns the stored record.
func (m *Manager) Register(ctx context.Context, reg *schema.WebhookRegistration) (*store.WebhookRecord, error) {
	if err := schema.Validate(reg, schema.KindWebhookRegistration); err != nil {
		return nil, err
	}
	rec := &store.WebhookRecord{
		WebhookID:  uuid.New().String(),
		URL:        reg.URL,
		Secret:     reg.Secret,
		EventTypes: reg.EventTypes,
		Active:     reg.Active,
	}
	if err := m.store.CreateWebhook(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("Webhook registered", "webhook_id", rec.WebhookID, "event_types", rec.EventTypes)
	return rec, nil
}

// Unregister deletes a webhook and its delivery history.
func (m *Manager) Unregister(ctx context.Context, webhookID string) error {
	return m.store.DeleteWebhook(ctx, webhookID)
}

// Send enqueues one delivery per active registered webhook matching
// eventType (optionally restricted to targetIDs). Returns the number of
// deliveries enqueued; ErrBackpressure if the queue overflowed for any of
// them.
func (m *Manager) Send(ctx context.Context, eventType string, payload map[string]any, targetIDs ...string) (int, error) {
	hooks, err := m.store.ListWebhooks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list webhooks: %w", err)
	}

	targets := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		targets[id] = true
	}

	body, err := schema.CanonicalJSON(payload)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, hook := range hooks {
		if !hook.Active || !hook.Matches(eventType) {
			continue
		}
		if len(targets) > 0 && !targets[hook.WebhookID] {
			continue
		}
		t := &task{
			webhook:    hook,
			deliveryID: uuid.New().String(),
			eventType:  eventType,
			payload:    payload,
			body:       body,
		}
		select {
		case m.queue <- t:
			enqueued++
		default:
			slog.Warn("Webhook queue full", "webhook_id", hook.WebhookID, "event_type", eventType)
			return enqueued, ErrBackpressure
		}
	}
	return enqueued, nil
}

func (m *Manager) deliveryWorker(id int) {
	defer m.workerWG.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case t := <-m.queue:
			m.process(t)
		}
	}
}

// process performs one attempt of a delivery chain and decides its fate:
// done, retry, or dead-letter.
func (m *Manager) process(t *task) {
	outcome := m.attempt(t)
	attemptRec := outcome.record(t)
	if _, err := m.store.AppendDeliveryAttempt(m.ctx, attemptRec); err != nil {
		slog.Error("Failed to persist delivery attempt",
			"webhook_id", t.webhook.WebhookID, "error", err)
	}

	switch {
	case outcome.success:
		m.recordOutcome(t.webhook.WebhookID, true)

	case outcome.gone:
		// 410: the endpoint asked us to stop. Disable and end the chain.
		if err := m.store.DisableWebhook(m.ctx, t.webhook.WebhookID, "410 Gone"); err != nil {
			slog.Error("Failed to disable webhook", "webhook_id", t.webhook.WebhookID, "error", err)
		}
		m.recordOutcome(t.webhook.WebhookID, false)
		slog.Warn("Webhook disabled by 410 response", "webhook_id", t.webhook.WebhookID)

	case t.retryCount < m.config.MaxRetries:
		t.retryCount++
		m.scheduleRetry(t)

	default:
		// Exhausted: the final attempt row carries the dead-letter flag.
		m.recordOutcome(t.webhook.WebhookID, false)
		slog.Warn("Delivery dead-lettered",
			"webhook_id", t.webhook.WebhookID, "delivery_id", t.deliveryID,
			"attempts", t.retryCount+1, "error", outcome.errMessage)
	}
}

// attemptOutcome captures what happened on one HTTP attempt.
type attemptOutcome struct {
	success    bool
	gone       bool
	statusCode int
	body       string
	errMessage string
	duration   time.Duration
	deadLetter bool
}

func (o *attemptOutcome) record(t *task) *store.DeliveryAttemptRecord {
	return &store.DeliveryAttemptRecord{
		AttemptID:    uuid.New().String(),
		WebhookID:    t.webhook.WebhookID,
		DeliveryID:   t.deliveryID,
		EventType:    t.eventType,
		Payload:      t.body,
		Success:      o.success,
		ResponseCode: o.statusCode,
		ResponseBody: o.body,
		ErrorMessage: o.errMessage,
		DurationMS:   o.duration.Milliseconds(),
		RetryCount:   t.retryCount,
		DeadLetter:   o.deadLetter,
	}
}

// attempt POSTs the signed payload once, short-circuiting through the
// endpoint's circuit breaker.
func (m *Manager) attempt(t *task) *attemptOutcome {
	outcome := &attemptOutcome{}
	start := m.now()

	_, err := m.breaker(t.webhook.WebhookID).Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(m.ctx, http.MethodPost, t.webhook.URL, bytes.NewReader(t.body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", version.Full())
		req.Header.Set("X-Webhook-ID", t.webhook.WebhookID)
		req.Header.Set("X-Event-Type", t.eventType)
		req.Header.Set("X-Delivery-ID", t.deliveryID)
		req.Header.Set("X-Timestamp", m.now().UTC().Format(time.RFC3339))
		if t.webhook.Secret != "" {
			sig, err := Sign(t.webhook.Secret, t.payload)
			if err != nil {
				return nil, err
			}
			req.Header.Set(SignatureHeader, sig)
		}

		resp, err := m.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
		outcome.statusCode = resp.StatusCode
		outcome.body = string(raw)

		if successCodes[resp.StatusCode] {
			outcome.success = true
			return nil, nil
		}
		if resp.StatusCode == http.StatusGone {
			outcome.gone = true
		}
		// Non-success responses count as breaker failures.
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	})

	outcome.duration = m.now().Sub(start)
	if err != nil && !outcome.success {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = errBreakerOpen
		}
		outcome.errMessage = err.Error()
	}
	outcome.deadLetter = !outcome.success && !outcome.gone && t.retryCount >= m.config.MaxRetries
	return outcome
}

// scheduleRetry re-enqueues the task after its backoff delay. If the queue
// is still full when the delay expires, the chain is dead-lettered rather
// than dropped silently.
func (m *Manager) scheduleRetry(t *task) {
	delay := m.backoff(t.retryCount)
	slog.Debug("Scheduling delivery retry",
		"webhook_id", t.webhook.WebhookID, "delivery_id", t.deliveryID,
		"retry", t.retryCount, "delay", delay)

	m.retryWG.Add(1)
	fired := make(chan struct{})
	timer := time.AfterFunc(delay, func() {
		defer close(fired)
		defer m.retryWG.Done()
		select {
		case m.queue <- t:
		case <-m.ctx.Done():
		default:
			m.deadLetterNow(t, "retry queue full")
		}
	})
	// The watcher releases the pending-retry count on shutdown and exits
	// once the timer has fired.
	go func() {
		select {
		case <-fired:
		case <-m.ctx.Done():
			if timer.Stop() {
				m.retryWG.Done()
			}
		}
	}()
}

// deadLetterNow persists a terminal dead-letter attempt without a network
// call (queue overflow on retry re-enqueue).
func (m *Manager) deadLetterNow(t *task, reason string) {
	rec := &store.DeliveryAttemptRecord{
		AttemptID:    uuid.New().String(),
		WebhookID:    t.webhook.WebhookID,
		DeliveryID:   t.deliveryID,
		EventType:    t.eventType,
		Payload:      t.body,
		Success:      false,
		ErrorMessage: reason,
		RetryCount:   t.retryCount,
		DeadLetter:   true,
	}
	if _, err := m.store.AppendDeliveryAttempt(context.Background(), rec); err != nil {
		slog.Error("Failed to persist dead-letter attempt",
			"webhook_id", t.webhook.WebhookID, "error", err)
	}
	m.recordOutcome(t.webhook.WebhookID, false)
}

// backoff computes the delay before retry n (1-based):
// min(initial * multiplier^(n-1), max), with optional +-50% jitter.
func (m *Manager) backoff(retry int) time.Duration {
	delay := float64(m.config.InitialBackoff)
	for i := 1; i < retry; i++ {
		delay *= m.config.Multiplier
		if delay >= float64(m.config.MaxBackoff) {
			delay = float64(m.config.MaxBackoff)
			break
		}
	}
	if delay > float64(m.config.MaxBackoff) {
		delay = float64(m.config.MaxBackoff)
	}
	if m.config.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

func (m *Manager) breaker(webhookID string) *gobreaker.CircuitBreaker {
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()
	cb, ok := m.breakers[webhookID]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    webhookID,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
		m.breakers[webhookID] = cb
	}
	return cb
}

func (m *Manager) recordOutcome(webhookID string, success bool) {
	if err := m.store.RecordDeliveryOutcome(m.ctx, webhookID, success); err != nil {
		slog.Error("Failed to record delivery outcome", "webhook_id", webhookID, "error", err)
	}
}

// QueueDepth returns the number of queued deliveries.
func (m *Manager) QueueDepth() int {
	return len(m.queue)
}
