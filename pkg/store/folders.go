package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// FOLDER OPERATIONS
// ============================================

func (s *GORMStore) CreateFolder(ctx context.Context, folder *models.Folder) (string, error) {
	return createWithID(s.db, ctx, folder, func(f *models.Folder, id string) { f.ID = id }, folder.ID, models.PrefixFolder, models.ErrDuplicateFolder)
}

func (s *GORMStore) GetFolder(ctx context.Context, workspaceID, path string) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND path = ?", workspaceID, path).
		First(&folder).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFolderNotFound)
	}
	return &folder, nil
}

func (s *GORMStore) ListFoldersByParent(ctx context.Context, workspaceID, parent string) ([]*models.Folder, error) {
	var folders []*models.Folder
	q := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID)
	q = whereDirectChildren(q, "path", parent)
	if err := q.Order("LOWER(name) ASC").Find(&folders).Error; err != nil {
		return nil, err
	}
	return folders, nil
}

func (s *GORMStore) FolderExists(ctx context.Context, workspaceID, path string) (bool, error) {
	if path == "/" {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Folder{}).
		Where("workspace_id = ? AND path = ?", workspaceID, path).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	// Virtual folder: exists while at least one live file sits below it.
	prefix := escapeLike(strings.TrimSuffix(path, "/")) + "/%"
	if err := s.db.WithContext(ctx).Model(&models.File{}).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
		Where(`path LIKE ? ESCAPE '\'`, prefix).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteFolder soft-deletes every live file under the folder and drops
// the explicit folder rows at and below it. Returns the number of files
// tombstoned. The folder must exist, explicitly or virtually.
func (s *GORMStore) DeleteFolder(ctx context.Context, workspaceID, path string, now time.Time) (int64, error) {
	var files int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prefix := escapeLike(strings.TrimSuffix(path, "/")) + "/%"

		var explicit int64
		if err := tx.Model(&models.Folder{}).
			Where("workspace_id = ? AND path = ?", workspaceID, path).
			Count(&explicit).Error; err != nil {
			return err
		}

		result := tx.Model(&models.File{}).
			Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
			Where(`path LIKE ? ESCAPE '\'`, prefix).
			Update("deleted_at", now)
		if result.Error != nil {
			return result.Error
		}
		files = result.RowsAffected

		if explicit == 0 && files == 0 {
			return models.ErrFolderNotFound
		}

		return tx.Where("workspace_id = ?", workspaceID).
			Where(`(path = ? OR path LIKE ? ESCAPE '\')`, path, prefix).
			Delete(&models.Folder{}).Error
	})
	if err != nil {
		return 0, err
	}
	return files, nil
}
