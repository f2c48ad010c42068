package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// Event is one occurrence fanned out to subscribed hooks.
type Event struct {
	Kind        models.EventKind `json:"event"`
	WorkspaceID string           `json:"workspaceId"`
	Path        string           `json:"path"`
	Timestamp   time.Time        `json:"timestamp"`
	Data        map[string]any   `json:"data,omitempty"`
}

// Emitter matches events against active hooks and enqueues deliveries.
// Emit is synchronous with the request but cheap: only the queue insert
// happens inline, the outbound POST is the dispatcher's job.
type Emitter struct {
	store store.Store
}

// NewEmitter creates an emitter over the given store.
func NewEmitter(st store.Store) *Emitter {
	return &Emitter{store: st}
}

// Emit fans the event out to every active hook whose scope covers the
// event path and whose subscription includes the kind. Fanout failures
// are logged, not surfaced: the triggering mutation already happened.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	hooks, err := e.store.ListActiveWebhooks(ctx, event.WorkspaceID)
	if err != nil {
		logger.Error("failed to list webhooks for event fanout",
			"error", err, "workspace", event.WorkspaceID, "event", string(event.Kind))
		return
	}

	var deliveries []*models.WebhookDelivery
	var payload []byte
	for _, hook := range hooks {
		if !hook.SubscribesTo(event.Kind) || !hook.Matches(event.Path) {
			continue
		}
		if payload == nil {
			if payload, err = json.Marshal(event); err != nil {
				logger.Error("failed to marshal webhook payload", "error", err)
				return
			}
		}
		deliveries = append(deliveries, &models.WebhookDelivery{
			WebhookID:     hook.ID,
			Event:         string(event.Kind),
			Payload:       string(payload),
			Status:        string(models.DeliveryPending),
			NextAttemptAt: event.Timestamp,
		})
	}
	if len(deliveries) == 0 {
		return
	}

	if err := e.store.EnqueueDeliveries(ctx, deliveries); err != nil {
		logger.Error("failed to enqueue webhook deliveries",
			"error", err, "count", len(deliveries), "event", string(event.Kind))
	}
}
