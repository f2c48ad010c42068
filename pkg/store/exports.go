package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// EXPORT OPERATIONS
// ============================================

func (s *GORMStore) CreateExportJob(ctx context.Context, job *models.ExportJob) (string, error) {
	if job.Status == "" {
		job.Status = string(models.ExportPending)
	}
	return createWithID(s.db, ctx, job, func(j *models.ExportJob, id string) { j.ID = id }, job.ID, models.PrefixExport, models.ErrExportNotFound)
}

func (s *GORMStore) GetExportJob(ctx context.Context, workspaceID, id string) (*models.ExportJob, error) {
	var job models.ExportJob
	err := s.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		First(&job).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrExportNotFound)
	}
	return &job, nil
}

func (s *GORMStore) ListExportJobs(ctx context.Context, workspaceID string) ([]*models.ExportJob, error) {
	return listByField[models.ExportJob](s.db, ctx, "workspace_id", workspaceID, "created_at DESC")
}

func (s *GORMStore) ClaimNextExportJob(ctx context.Context, now time.Time) (*models.ExportJob, error) {
	var job models.ExportJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("status = ?", string(models.ExportPending)).
			Order("created_at ASC").
			First(&job).Error
		if err != nil {
			return convertNotFoundError(err, models.ErrExportNotFound)
		}

		// Conditional transition so two workers cannot claim the same job.
		result := tx.Model(&models.ExportJob{}).
			Where("id = ? AND status = ?", job.ID, string(models.ExportPending)).
			Updates(map[string]any{
				"status":     string(models.ExportRunning),
				"started_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrExportNotFound
		}
		job.Status = string(models.ExportRunning)
		job.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GORMStore) CompleteExportJob(ctx context.Context, id, artifactRef string, fileCount int, sizeBytes int64, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.ExportJob{}).
		Where("id = ? AND status = ?", id, string(models.ExportRunning)).
		Updates(map[string]any{
			"status":       string(models.ExportDone),
			"artifact_ref": artifactRef,
			"file_count":   fileCount,
			"size_bytes":   sizeBytes,
			"completed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrExportNotFound
	}
	return nil
}

func (s *GORMStore) FailExportJob(ctx context.Context, id, errMsg string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.ExportJob{}).
		Where("id = ? AND status = ?", id, string(models.ExportRunning)).
		Updates(map[string]any{
			"status":       string(models.ExportFailed),
			"error":        errMsg,
			"completed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrExportNotFound
	}
	return nil
}
