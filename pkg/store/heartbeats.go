package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// HEARTBEAT OPERATIONS
// ============================================

func (s *GORMStore) UpsertHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	if hb.ID == "" {
		hb.ID = models.NewID(models.PrefixHeartbeat)
	}
	// One row per (workspace, author); repeats refresh in place so the
	// count stays 1 and lastSeen moves forward.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "workspace_id"}, {Name: "author"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "current_task", "metadata", "last_seen",
		}),
	}).Create(hb).Error
}

func (s *GORMStore) ListHeartbeats(ctx context.Context, workspaceID string) ([]*models.Heartbeat, error) {
	return listByField[models.Heartbeat](s.db, ctx, "workspace_id", workspaceID, "last_seen DESC")
}
