// Package webhook implements outbound event notification: URL vetting,
// event fanout into a persistent delivery queue, and a retrying
// dispatcher that signs payloads with the hook secret.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/internal/telemetry"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

const (
	// SignatureHeader carries the payload HMAC so receivers can verify
	// origin: "sha256=<hex>".
	SignatureHeader = "X-Webhook-Signature"

	requestTimeout = 10 * time.Second
	maxAttempts    = 5

	defaultPollInterval = time.Second
	defaultBatchSize    = 50
)

// backoffSchedule is the delay before attempt n+1 after attempt n fails.
var backoffSchedule = []time.Duration{
	time.Second,
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

// Sign computes the signature header value for a payload.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Dispatcher drains the delivery queue. One dispatcher runs per process;
// due deliveries are claimed in poll order so per-hook deliveries go out
// in enqueue order.
type Dispatcher struct {
	store  store.Store
	client *http.Client

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// DispatcherConfig tunes the delivery loop. Zero fields take defaults.
type DispatcherConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
	MaxAttempts  int
	BatchSize    int
}

// NewDispatcher creates a dispatcher over the given store with default
// tuning.
func NewDispatcher(st store.Store) *Dispatcher {
	return NewDispatcherWith(st, nil)
}

// NewDispatcherWith creates a dispatcher with explicit tuning.
func NewDispatcherWith(st store.Store, cfg *DispatcherConfig) *Dispatcher {
	c := DispatcherConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = requestTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = maxAttempts
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return &Dispatcher{
		store:        st,
		client:       &http.Client{Timeout: c.Timeout},
		pollInterval: c.PollInterval,
		batchSize:    c.BatchSize,
		maxAttempts:  c.MaxAttempts,
		stop:         make(chan struct{}),
	}
}

// Start launches the polling loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.RunOnce(context.Background())
			case <-d.stop:
				return
			}
		}
	}()
}

// Stop halts the polling loop. In-flight deliveries finish first.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// RunOnce processes one batch of due deliveries and returns how many it
// attempted.
func (d *Dispatcher) RunOnce(ctx context.Context) int {
	due, err := d.store.DueDeliveries(ctx, time.Now(), d.batchSize)
	if err != nil {
		logger.Error("failed to poll webhook deliveries", "error", err)
		return 0
	}

	hooks := make(map[string]*models.Webhook)
	for _, delivery := range due {
		hook, ok := hooks[delivery.WebhookID]
		if !ok {
			// The hook may have been deleted or paused since enqueue.
			hook, err = d.hookByID(ctx, delivery.WebhookID)
			if err != nil {
				d.finalize(ctx, delivery, "webhook no longer exists")
				continue
			}
			hooks[delivery.WebhookID] = hook
		}
		d.attempt(ctx, hook, delivery)
	}
	return len(due)
}

func (d *Dispatcher) hookByID(ctx context.Context, id string) (*models.Webhook, error) {
	hook, err := d.store.GetWebhookByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if hook.Status != string(models.WebhookActive) {
		return nil, models.ErrWebhookNotFound
	}
	return hook, nil
}

func (d *Dispatcher) attempt(ctx context.Context, hook *models.Webhook, delivery *models.WebhookDelivery) {
	attempts := delivery.Attempts + 1
	ctx, span := telemetry.StartDeliverySpan(ctx, hook.ID, delivery.ID, attempts)
	defer span.End()

	err := d.post(ctx, hook, delivery)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	if err == nil {
		if err := d.store.MarkDeliveryDelivered(ctx, delivery.ID, attempts); err != nil {
			logger.Error("failed to mark delivery delivered", "error", err, "delivery", delivery.ID)
		}
		return
	}

	logger.Warn("webhook delivery attempt failed",
		"delivery", delivery.ID, "webhook", hook.ID, "attempt", attempts, "error", err)

	if attempts >= d.maxAttempts {
		d.finalize(ctx, delivery, err.Error())
		return
	}
	backoff := backoffSchedule[len(backoffSchedule)-1]
	if attempts-1 < len(backoffSchedule) {
		backoff = backoffSchedule[attempts-1]
	}
	next := time.Now().Add(backoff)
	if markErr := d.store.MarkDeliveryAttempt(ctx, delivery.ID, attempts, err.Error(), next); markErr != nil {
		logger.Error("failed to record delivery attempt", "error", markErr, "delivery", delivery.ID)
	}
}

func (d *Dispatcher) finalize(ctx context.Context, delivery *models.WebhookDelivery, reason string) {
	if err := d.store.MarkDeliveryFailed(ctx, delivery.ID, delivery.Attempts+1, reason); err != nil {
		logger.Error("failed to mark delivery failed", "error", err, "delivery", delivery.ID)
	}
}

func (d *Dispatcher) post(ctx context.Context, hook *models.Webhook, delivery *models.WebhookDelivery) error {
	body := []byte(delivery.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(hook.Secret, body))
	req.Header.Set("User-Agent", "marklog-webhook/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("receiver returned %d", resp.StatusCode)
	}
	return nil
}
