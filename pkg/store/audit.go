package store

import (
	"context"
	"time"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// AUDIT OPERATIONS
// ============================================

func (s *GORMStore) InsertAuditEntries(ctx context.Context, entries []*models.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = models.NewID("aud_")
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
	}
	return s.db.WithContext(ctx).CreateInBatches(entries, 100).Error
}

func (s *GORMStore) ListAuditEntries(ctx context.Context, workspaceID string, limit int) ([]*models.AuditLogEntry, error) {
	var entries []*models.AuditLogEntry
	q := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GORMStore) PruneAuditEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLogEntry{})
	return result.RowsAffected, result.Error
}
