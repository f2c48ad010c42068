// Package audit records mutating actions off the request path. Handlers
// enqueue entries onto a buffered channel; a background flusher batches
// them into the store on a size or interval trigger. Recording never
// blocks a request: when the buffer is full the entry is dropped and
// counted.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = 2 * time.Second
	flushTimeout         = 5 * time.Second
)

// Config tunes the recorder. Zero fields fall back to defaults.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Recorder accepts audit entries and flushes them in batches.
type Recorder struct {
	store store.Store

	ch        chan *models.AuditLogEntry
	batchSize int
	interval  time.Duration

	dropped atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once
}

// NewRecorder starts a recorder and its background flusher.
func NewRecorder(st store.Store, cfg *Config) *Recorder {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}

	r := &Recorder{
		store:     st,
		ch:        make(chan *models.AuditLogEntry, c.BufferSize),
		batchSize: c.BatchSize,
		interval:  c.FlushInterval,
		shutdown:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.flushLoop()
	return r
}

// Record enqueues one entry. details is marshalled to JSON; a nil map
// stores no details.
func (r *Recorder) Record(workspaceID string, actorType models.ActorType, actor, action, resourceID string, details map[string]any) {
	entry := &models.AuditLogEntry{
		WorkspaceID: workspaceID,
		ActorType:   string(actorType),
		Actor:       actor,
		Action:      action,
		ResourceID:  resourceID,
		CreatedAt:   time.Now(),
	}
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = string(data)
		}
	}

	select {
	case r.ch <- entry:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many entries were discarded because the buffer
// was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]*models.AuditLogEntry, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := r.store.InsertAuditEntries(ctx, batch); err != nil {
			logger.Error("failed to flush audit batch", "error", err, "entries", len(batch))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-r.ch:
			batch = append(batch, entry)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.shutdown:
			// Drain whatever is still queued, then do a final flush.
			for {
				select {
				case entry := <-r.ch:
					batch = append(batch, entry)
					if len(batch) >= r.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes all pending entries and stops the flusher.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.shutdown) })
	r.wg.Wait()
}
