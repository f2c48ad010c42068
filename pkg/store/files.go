package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// FILE OPERATIONS
// ============================================

func (s *GORMStore) GetFile(ctx context.Context, workspaceID, path string) (*models.File, error) {
	return getFileTx(s.db.WithContext(ctx), workspaceID, path)
}

// getFileTx resolves the live file at a path, distinguishing tombstoned
// files (ErrFileDeleted, surfaced as 410) from paths that never held one.
func getFileTx(tx *gorm.DB, workspaceID, path string) (*models.File, error) {
	var file models.File
	err := tx.
		Where("workspace_id = ? AND path = ? AND deleted_at IS NULL", workspaceID, path).
		First(&file).Error
	if err == nil {
		return &file, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var deleted int64
	if err := tx.Model(&models.File{}).
		Where("workspace_id = ? AND path = ? AND deleted_at IS NOT NULL", workspaceID, path).
		Count(&deleted).Error; err != nil {
		return nil, err
	}
	if deleted > 0 {
		return nil, models.ErrFileDeleted
	}
	return nil, models.ErrFileNotFound
}

func (s *GORMStore) GetFileByID(ctx context.Context, id string) (*models.File, error) {
	return getByField[models.File](s.db, ctx, "id", id, models.ErrFileNotFound)
}

func (s *GORMStore) CreateFile(ctx context.Context, file *models.File, quota int64) (string, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live int64
		if err := tx.Model(&models.File{}).
			Where("workspace_id = ? AND path = ? AND deleted_at IS NULL", file.WorkspaceID, file.Path).
			Count(&live).Error; err != nil {
			return err
		}
		if live > 0 {
			return models.ErrDuplicateFile
		}

		if err := checkQuotaTx(tx, file.WorkspaceID, int64(len(file.Content)), 0, quota); err != nil {
			return err
		}

		if file.ID == "" {
			file.ID = models.NewID(models.PrefixFile)
		}
		file.ETag = models.ComputeETag(file.Content)
		file.SizeBytes = int64(len(file.Content))
		if err := tx.Create(file).Error; err != nil {
			// Racing creators that both pass the count above are caught
			// by the live path unique index.
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateFile
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return file.ID, nil
}

func (s *GORMStore) PutFile(ctx context.Context, workspaceID, path, content string, ifMatch *string, quota int64) (*models.File, bool, error) {
	var (
		stored  *models.File
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := getFileTx(tx, workspaceID, path)
		if err != nil && !errors.Is(err, models.ErrFileNotFound) {
			return err
		}

		newSize := int64(len(content))
		newEtag := models.ComputeETag(content)

		if existing == nil {
			if err := checkQuotaTx(tx, workspaceID, newSize, 0, quota); err != nil {
				return err
			}
			file := &models.File{
				ID:          models.NewID(models.PrefixFile),
				WorkspaceID: workspaceID,
				Path:        path,
				Content:     content,
				ETag:        newEtag,
				SizeBytes:   newSize,
			}
			if err := tx.Create(file).Error; err != nil {
				if isUniqueConstraintError(err) {
					return models.ErrDuplicateFile
				}
				return err
			}
			stored = file
			created = true
			return nil
		}

		if err := checkQuotaTx(tx, workspaceID, newSize, existing.SizeBytes, quota); err != nil {
			return err
		}

		updates := map[string]any{
			"content":    content,
			"etag":       newEtag,
			"size_bytes": newSize,
			"updated_at": time.Now(),
		}

		q := tx.Model(&models.File{}).Where("id = ? AND deleted_at IS NULL", existing.ID)
		if ifMatch != nil {
			// Conditional write: exactly one of two concurrent writers with
			// the same If-Match sees RowsAffected == 1.
			q = q.Where("etag = ?", *ifMatch)
		}
		result := q.Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			current, err := getFileTx(tx, workspaceID, path)
			if err != nil {
				return err
			}
			return &models.ETagConflictError{Current: current.ETag, Provided: *ifMatch}
		}

		existing.Content = content
		existing.ETag = newEtag
		existing.SizeBytes = newSize
		stored = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// lockWorkspaceTx takes the workspace row lock so concurrent writers in
// the same workspace serialize. The self-assignment is a no-op write
// whose only effect is the lock.
func lockWorkspaceTx(tx *gorm.DB, workspaceID string) error {
	return tx.Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		UpdateColumn("id", gorm.Expr("id")).Error
}

// checkQuotaTx enforces the workspace byte budget inside a write
// transaction: current sum minus the replaced file plus the new content
// must stay at or below the quota. A quota of 0 means unlimited.
// The workspace row lock keeps concurrent writers from both reading a
// usage that ignores the other's pending write.
func checkQuotaTx(tx *gorm.DB, workspaceID string, newSize, replacedSize, quota int64) error {
	if quota <= 0 {
		return nil
	}
	if err := lockWorkspaceTx(tx, workspaceID); err != nil {
		return err
	}
	var usage int64
	if err := tx.Model(&models.File{}).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&usage).Error; err != nil {
		return err
	}
	if usage-replacedSize+newSize > quota {
		return models.ErrQuotaExceeded
	}
	return nil
}

func (s *GORMStore) SoftDeleteFile(ctx context.Context, workspaceID, path string, now time.Time) (*models.File, error) {
	var deleted *models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		file, err := getFileTx(tx, workspaceID, path)
		if err != nil {
			return err
		}
		result := tx.Model(&models.File{}).
			Where("id = ? AND deleted_at IS NULL", file.ID).
			Update("deleted_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrFileDeleted
		}
		file.DeletedAt = &now
		deleted = file
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *GORMStore) HardDeleteFile(ctx context.Context, workspaceID, path string) (*models.File, error) {
	var removed *models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		file, err := getFileTx(tx, workspaceID, path)
		if err != nil {
			return err
		}
		if err := tx.Where("file_id = ?", file.ID).Delete(&models.Append{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", file.ID).Delete(&models.File{}).Error; err != nil {
			return err
		}
		removed = file
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *GORMStore) ListFilesByParent(ctx context.Context, workspaceID, parent string) ([]*models.File, error) {
	var files []*models.File
	q := s.db.WithContext(ctx).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID)
	q = whereDirectChildren(q, "path", parent)
	if err := q.Order("LOWER(path) ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// whereDirectChildren restricts a path column to entries whose parent
// folder is exactly parent: one level below, no deeper.
func whereDirectChildren(q *gorm.DB, column string, parent string) *gorm.DB {
	base := strings.TrimSuffix(parent, "/")
	escaped := escapeLike(base)
	return q.
		Where(column+` LIKE ? ESCAPE '\'`, escaped+"/%").
		Where(column+` NOT LIKE ? ESCAPE '\'`, escaped+"/%/%")
}

func (s *GORMStore) ListFilesUnder(ctx context.Context, workspaceID, folder string) ([]*models.File, error) {
	var files []*models.File
	q := s.db.WithContext(ctx).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID)
	if folder != "" && folder != "/" {
		q = q.Where(`path LIKE ? ESCAPE '\'`, escapeLike(strings.TrimSuffix(folder, "/"))+"/%")
	}
	if err := q.Order("path ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (s *GORMStore) CountFilesUnder(ctx context.Context, workspaceID, folder string) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.File{}).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID)
	if folder != "" && folder != "/" {
		q = q.Where(`path LIKE ? ESCAPE '\'`, escapeLike(strings.TrimSuffix(folder, "/"))+"/%")
	}
	err := q.Count(&count).Error
	return count, err
}

func (s *GORMStore) SearchFiles(ctx context.Context, workspaceID string, scope models.Scope, q string, limit int) ([]*models.File, error) {
	var files []*models.File
	pattern := "%" + escapeLike(q) + "%"
	query := s.db.WithContext(ctx).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID)
	query = scopedFiles(query, "path", scope)
	query = query.Where(`(path LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')`, pattern, pattern)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Order("path ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (s *GORMStore) PurgeDeletedFiles(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.File{}).
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("file_id IN ?", ids).Delete(&models.Append{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&models.File{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	return purged, err
}
