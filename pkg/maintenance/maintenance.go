// Package maintenance runs the periodic background jobs: the claim
// expiry sweep, soft-delete purges and audit retention. Each job polls
// on its own interval; none needs coordination across processes.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
	"github.com/marklog/marklog/pkg/webhook"
)

const (
	DefaultSweepInterval  = 5 * time.Second
	DefaultPurgeInterval  = time.Hour
	DefaultPurgeAfter     = 7 * 24 * time.Hour
	DefaultAuditRetention = 90 * 24 * time.Hour

	sweepBatchSize = 500
)

// Config tunes the maintenance jobs. Zero fields fall back to defaults.
type Config struct {
	SweepInterval  time.Duration
	PurgeInterval  time.Duration
	PurgeAfter     time.Duration
	AuditRetention time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = DefaultSweepInterval
	}
	if out.PurgeInterval <= 0 {
		out.PurgeInterval = DefaultPurgeInterval
	}
	if out.PurgeAfter <= 0 {
		out.PurgeAfter = DefaultPurgeAfter
	}
	if out.AuditRetention <= 0 {
		out.AuditRetention = DefaultAuditRetention
	}
	return out
}

// Manager owns the background job goroutines.
type Manager struct {
	store   store.Store
	emitter *webhook.Emitter
	cfg     Config

	// Claims already reported stalled, keyed by append row id. The sweep
	// never mutates the log, so this is the only thing preventing a
	// task.stalled event per poll.
	notifiedMu sync.Mutex
	notified   map[string]struct{}

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewManager creates a manager. emitter may be nil to disable stalled
// notifications.
func NewManager(st store.Store, emitter *webhook.Emitter, cfg *Config) *Manager {
	return &Manager{
		store:    st,
		emitter:  emitter,
		cfg:      cfg.withDefaults(),
		notified: make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

// Start launches the job loops.
func (m *Manager) Start() {
	m.runPeriodic(m.cfg.SweepInterval, m.SweepExpiredClaims)
	m.runPeriodic(m.cfg.PurgeInterval, m.PurgeSoftDeleted)
	m.runPeriodic(m.cfg.PurgeInterval, m.PruneAudit)
}

// Stop halts all job loops.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Manager) runPeriodic(interval time.Duration, job func(context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				job(context.Background())
			case <-m.stop:
				return
			}
		}
	}()
}

// SweepExpiredClaims surfaces lapsed leases. The sweep is idempotent and
// read-only with respect to the append log: stalledness stays a derived
// property, the sweep only notifies subscribers once per claim.
func (m *Manager) SweepExpiredClaims(ctx context.Context) {
	expired, err := m.store.ListExpiredClaims(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		logger.Error("claim expiry sweep failed", "error", err)
		return
	}

	for _, claim := range expired {
		if !m.markNotified(claim.ID) {
			continue
		}
		logger.Info("claim lease expired",
			"workspace", claim.WorkspaceID, "file", claim.FilePath,
			"claim", claim.AppendID, "task", claim.Ref, "author", claim.Author)
		if m.emitter != nil {
			m.emitter.Emit(ctx, webhook.Event{
				Kind:        models.EventTaskStalled,
				WorkspaceID: claim.WorkspaceID,
				Path:        claim.FilePath,
				Data: map[string]any{
					"taskId":  claim.Ref,
					"claimId": claim.AppendID,
					"author":  claim.Author,
				},
			})
		}
	}
}

// markNotified records the claim and reports whether it was new.
func (m *Manager) markNotified(claimRowID string) bool {
	m.notifiedMu.Lock()
	defer m.notifiedMu.Unlock()
	if _, seen := m.notified[claimRowID]; seen {
		return false
	}
	// Renewing a lapsed claim is impossible, so entries never need to be
	// un-marked; cap the set to bound memory.
	if len(m.notified) > 100_000 {
		m.notified = make(map[string]struct{})
	}
	m.notified[claimRowID] = struct{}{}
	return true
}

// PurgeSoftDeleted hard-deletes files and workspaces whose tombstones
// are older than the retention window.
func (m *Manager) PurgeSoftDeleted(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.PurgeAfter)

	files, err := m.store.PurgeDeletedFiles(ctx, cutoff)
	if err != nil {
		logger.Error("failed to purge soft-deleted files", "error", err)
	} else if files > 0 {
		logger.Info("purged soft-deleted files", "count", files)
	}

	workspaces, err := m.store.PurgeDeletedWorkspaces(ctx, cutoff)
	if err != nil {
		logger.Error("failed to purge soft-deleted workspaces", "error", err)
	} else if workspaces > 0 {
		logger.Info("purged soft-deleted workspaces", "count", workspaces)
	}
}

// PruneAudit drops audit entries past the retention window.
func (m *Manager) PruneAudit(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.AuditRetention)
	pruned, err := m.store.PruneAuditEntries(ctx, cutoff)
	if err != nil {
		logger.Error("failed to prune audit log", "error", err)
		return
	}
	if pruned > 0 {
		logger.Info("pruned audit log", "count", pruned)
	}
}
