package models

import (
	"encoding/json"
	"time"
)

// EventKind names the webhook event types a hook can subscribe to.
type EventKind string

const (
	EventFileCreated   EventKind = "file.created"
	EventFileUpdated   EventKind = "file.updated"
	EventFileDeleted   EventKind = "file.deleted"
	EventAppendCreated EventKind = "append.created"
	EventTaskCreated   EventKind = "task.created"
	EventTaskClaimed   EventKind = "task.claimed"
	EventTaskCompleted EventKind = "task.completed"
	EventTaskCancelled EventKind = "task.cancelled"
	EventTaskStalled   EventKind = "task.stalled"
	EventHeartbeat     EventKind = "heartbeat"
)

// AllEventKinds lists every subscribable event kind.
var AllEventKinds = []EventKind{
	EventFileCreated, EventFileUpdated, EventFileDeleted,
	EventAppendCreated,
	EventTaskCreated, EventTaskClaimed, EventTaskCompleted,
	EventTaskCancelled, EventTaskStalled,
	EventHeartbeat,
}

// IsValid checks if the kind is a recognized event.
func (e EventKind) IsValid() bool {
	for _, k := range AllEventKinds {
		if e == k {
			return true
		}
	}
	return false
}

// WebhookStatus is the delivery gate for a hook.
type WebhookStatus string

const (
	WebhookActive WebhookStatus = "active"
	WebhookPaused WebhookStatus = "paused"
)

// IsValid checks if the status is a recognized value.
func (s WebhookStatus) IsValid() bool {
	return s == WebhookActive || s == WebhookPaused
}

// MaxWebhooksPerScope caps active hooks sharing one scope.
const MaxWebhooksPerScope = 10

// Webhook is an outbound event subscription. The secret signs delivery
// payloads (HMAC-SHA-256) and is generated server-side at creation.
type Webhook struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	WorkspaceID string     `gorm:"not null;size:64;index" json:"workspaceId"`
	ScopeType   string     `gorm:"not null;size:16" json:"scopeType"` // workspace, folder, file
	ScopePath   string     `gorm:"not null;size:1024" json:"scopePath"`
	Recursive   bool       `gorm:"default:false" json:"recursive"` // folder scope only
	URL         string     `gorm:"not null;size:2048" json:"url"`
	Secret      string     `gorm:"not null;size:64" json:"-"`
	Events      string     `gorm:"type:text" json:"-"`                // JSON array of event kinds
	Status      string     `gorm:"not null;size:16" json:"status"`    // active, paused
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt   *time.Time `gorm:"index" json:"deletedAt,omitempty"`

	// Parsed events (not stored in DB)
	ParsedEvents []EventKind `gorm:"-" json:"events,omitempty"`
}

// TableName returns the table name for Webhook.
func (Webhook) TableName() string {
	return "webhooks"
}

// GetEvents returns the parsed subscription list.
func (w *Webhook) GetEvents() ([]EventKind, error) {
	if w.ParsedEvents != nil {
		return w.ParsedEvents, nil
	}
	if w.Events == "" {
		return []EventKind{}, nil
	}
	var events []EventKind
	if err := json.Unmarshal([]byte(w.Events), &events); err != nil {
		return nil, err
	}
	w.ParsedEvents = events
	return events, nil
}

// SetEvents stores the subscription list.
func (w *Webhook) SetEvents(events []EventKind) error {
	if events == nil {
		events = []EventKind{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	w.Events = string(data)
	w.ParsedEvents = events
	return nil
}

// SubscribesTo reports whether the hook wants the given event kind.
// An empty subscription list means all events.
func (w *Webhook) SubscribesTo(kind EventKind) bool {
	events, err := w.GetEvents()
	if err != nil {
		return false
	}
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == kind {
			return true
		}
	}
	return false
}

// GetScope returns the hook's scope as a typed value.
func (w *Webhook) GetScope() Scope {
	return Scope{Type: ScopeType(w.ScopeType), Path: w.ScopePath}
}

// Matches reports whether an event at path falls inside the hook's scope.
// Non-recursive folder hooks only match direct children.
func (w *Webhook) Matches(path string) bool {
	scope := w.GetScope()
	if !scope.Covers(path) {
		return false
	}
	if ScopeType(w.ScopeType) == ScopeFolder && !w.Recursive {
		rest := path[len(scope.Path):]
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				return false
			}
		}
	}
	return true
}

// DeliveryStatus is the lifecycle of one webhook delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// WebhookDelivery is one queued event for one hook. The dispatcher claims
// due rows (NextAttemptAt <= now, status pending) and retries with backoff
// until delivered or the attempt budget runs out.
type WebhookDelivery struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	WebhookID     string    `gorm:"not null;size:64;index" json:"webhookId"`
	Event         string    `gorm:"not null;size:32" json:"event"`
	Payload       string    `gorm:"type:text" json:"-"`
	Attempts      int       `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt time.Time `gorm:"not null;index" json:"nextAttemptAt"`
	Status        string    `gorm:"not null;size:16;index" json:"status"` // pending, delivered, failed
	LastError     string    `gorm:"size:512" json:"lastError,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for WebhookDelivery.
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
