package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// WORKSPACE OPERATIONS
// ============================================

func (s *GORMStore) CreateWorkspace(ctx context.Context, ws *models.Workspace) (string, error) {
	now := time.Now()
	ws.CreatedAt = now
	ws.LastActivityAt = now
	return createWithID(s.db, ctx, ws, func(w *models.Workspace, id string) { w.ID = id }, ws.ID, models.PrefixWorkspace, models.ErrDuplicateWorkspace)
}

func (s *GORMStore) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	ws, err := getByField[models.Workspace](s.db, ctx, "id", id, models.ErrWorkspaceNotFound)
	if err != nil {
		return nil, err
	}
	if ws.IsDeleted() {
		return nil, models.ErrWorkspaceDeleted
	}
	return ws, nil
}

func (s *GORMStore) ListWorkspaces(ctx context.Context) ([]*models.Workspace, error) {
	var out []*models.Workspace
	err := s.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GORMStore) RenameWorkspace(ctx context.Context, id, name string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("name", name)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrWorkspaceNotFound
	}
	return nil
}

func (s *GORMStore) ClaimWorkspace(ctx context.Context, id, email string, now time.Time) error {
	// Conditional update: exactly one claimer wins, the rest observe
	// ALREADY_CLAIMED. claimed_at transitions null to set exactly once.
	result := s.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ? AND claimed_at IS NULL AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"claimed_at":       now,
			"claimed_by_email": email,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetWorkspace(ctx, id); err != nil {
			return err
		}
		return models.ErrAlreadyClaimed
	}
	return nil
}

func (s *GORMStore) TouchWorkspaceActivity(ctx context.Context, id string, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("last_activity_at", now).Error
}

func (s *GORMStore) SoftDeleteWorkspace(ctx context.Context, id string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", now)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var ws models.Workspace
		if err := s.db.WithContext(ctx).Where("id = ?", id).First(&ws).Error; err != nil {
			return convertNotFoundError(err, models.ErrWorkspaceNotFound)
		}
		return models.ErrWorkspaceDeleted
	}
	return nil
}

func (s *GORMStore) PurgeDeletedWorkspaces(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.Workspace{}).
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		// Dependent rows go first; sqlite has no ON DELETE CASCADE here.
		var hookIDs []string
		if err := tx.Model(&models.Webhook{}).
			Where("workspace_id IN ?", ids).
			Pluck("id", &hookIDs).Error; err != nil {
			return err
		}
		if len(hookIDs) > 0 {
			if err := tx.Where("webhook_id IN ?", hookIDs).Delete(&models.WebhookDelivery{}).Error; err != nil {
				return err
			}
		}
		for _, model := range []any{
			&models.Append{}, &models.File{}, &models.Folder{},
			&models.Heartbeat{}, &models.CapabilityKey{}, &models.ApiKey{},
			&models.Webhook{}, &models.AuditLogEntry{}, &models.ExportJob{},
			&models.UserWorkspace{},
		} {
			if err := tx.Where("workspace_id IN ?", ids).Delete(model).Error; err != nil {
				return err
			}
		}

		result := tx.Where("id IN ?", ids).Delete(&models.Workspace{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	return purged, err
}

func (s *GORMStore) WorkspaceUsage(ctx context.Context, id string) (int64, error) {
	var usage int64
	err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("workspace_id = ? AND deleted_at IS NULL", id).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&usage).Error
	return usage, err
}
