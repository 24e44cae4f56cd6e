package store

import "time"

// NotificationStatus tracks a notification through the protocol state machine.
type NotificationStatus string

const (
	NotificationReceived  NotificationStatus = "received"
	NotificationPersisted NotificationStatus = "persisted"
	NotificationDispatch  NotificationStatus = "dispatched"
	NotificationHandled   NotificationStatus = "handled"
	NotificationNoHandler NotificationStatus = "no_handler"
	NotificationProcessed NotificationStatus = "processed"
	NotificationExpired   NotificationStatus = "expired"
)

// NotificationRecord is the persisted form of a notification payload.
type NotificationRecord struct {
	ID             int64
	NotificationID string
	Type           string
	Priority       string
	Source         string
	Target         string
	Payload        []byte // full JSON payload snapshot
	Status         NotificationStatus
	Pinned         bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// WebhookRecord is a registered outbound endpoint with delivery counters.
// Counters follow terminal-outcome semantics: successful_deliveries counts
// chains that eventually succeeded, failed_deliveries counts exhausted chains.
type WebhookRecord struct {
	WebhookID            string
	URL                  string
	Secret               string
	EventTypes           []string
	Active               bool
	DisabledReason       string
	TotalDeliveries      int64
	SuccessfulDeliveries int64
	FailedDeliveries     int64
	LastDeliveryAt       *time.Time
	CreatedAt            time.Time
}

// Matches reports whether the webhook subscribes to the given event type.
func (w *WebhookRecord) Matches(eventType string) bool {
	for _, et := range w.EventTypes {
		if et == "all" || et == eventType {
			return true
		}
	}
	return false
}

// DeliveryAttemptRecord is one HTTP POST attempt to a webhook. Append-only.
type DeliveryAttemptRecord struct {
	ID           int64
	AttemptID    string
	WebhookID    string
	DeliveryID   string
	EventType    string
	Payload      []byte
	Success      bool
	ResponseCode int
	ResponseBody string
	ErrorMessage string
	DurationMS   int64
	RetryCount   int
	DeadLetter   bool
	CreatedAt    time.Time
}

// ApprovalStatus tracks an approval request to a terminal state.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRecord is a pending or resolved approval request. The approval id
// is a deterministic hash of (action_name, canonical input) so the same
// logical request collapses onto one record.
type ApprovalRecord struct {
	ApprovalID        string
	ActionName        string
	Requester         string
	Approvers         []string
	ApprovalsReceived []string
	Required          int
	Status            ApprovalStatus
	CreatedAt         time.Time
	ExpiresAt         time.Time
	ResolvedAt        *time.Time
}

// AuditLevel is the severity of an audit event.
type AuditLevel string

const (
	AuditInfo     AuditLevel = "info"
	AuditWarning  AuditLevel = "warning"
	AuditError    AuditLevel = "error"
	AuditCritical AuditLevel = "critical"
)

// Rank orders audit levels for filtering (info < warning < error < critical).
func (l AuditLevel) Rank() int {
	switch l {
	case AuditInfo:
		return 0
	case AuditWarning:
		return 1
	case AuditError:
		return 2
	case AuditCritical:
		return 3
	default:
		return -1
	}
}

// AuditEventRecord is a structured audit event. Append-only; id is monotonic
// within the store.
type AuditEventRecord struct {
	ID          int64
	EventType   string
	Level       AuditLevel
	UserID      string
	ActionName  string
	ExecutionID string
	Data        map[string]any
	CreatedAt   time.Time
}

// EndTaskRecord is a persisted agent_end_task event with processing flags.
type EndTaskRecord struct {
	ID               int64
	TaskID           string
	AgentID          string
	Reason           string
	ExecutionSummary string
	CleanupActions   []string
	NextSteps        []string
	Metadata         map[string]any
	Processed        bool
	WebhookSent      bool
	CreatedAt        time.Time
	ProcessedAt      *time.Time
}

// WebhookMetricRecord is one aggregated metrics window for a webhook.
type WebhookMetricRecord struct {
	ID            int64
	WebhookID     string
	WindowStart   time.Time
	WindowEnd     time.Time
	AvgDeliveryMS float64
	SuccessRate   float64
	ErrorRate     float64
	Throughput    float64
	CreatedAt     time.Time
}

// AuditFilter narrows audit event queries. Zero values mean "no constraint".
type AuditFilter struct {
	EventType   string
	Level       AuditLevel
	MinLevel    AuditLevel
	UserID      string
	ActionName  string
	ExecutionID string
	Since       time.Time
	Until       time.Time
	Limit       int
}
