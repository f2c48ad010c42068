package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// CAPABILITY KEY OPERATIONS
// ============================================

func (s *GORMStore) CreateCapabilityKey(ctx context.Context, key *models.CapabilityKey) (string, error) {
	return createWithID(s.db, ctx, key, func(k *models.CapabilityKey, id string) { k.ID = id }, key.ID, models.PrefixKey, models.ErrKeyNotFound)
}

func (s *GORMStore) GetCapabilityKeyByHash(ctx context.Context, hash string) (*models.CapabilityKey, error) {
	return getByField[models.CapabilityKey](s.db, ctx, "key_hash", hash, models.ErrKeyNotFound)
}

func (s *GORMStore) ListCapabilityKeys(ctx context.Context, workspaceID string) ([]*models.CapabilityKey, error) {
	return listByField[models.CapabilityKey](s.db, ctx, "workspace_id", workspaceID, "created_at DESC")
}

func (s *GORMStore) RevokeCapabilityKey(ctx context.Context, workspaceID, id string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.CapabilityKey{}).
		Where("id = ? AND workspace_id = ? AND revoked_at IS NULL", id, workspaceID).
		Update("revoked_at", now)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var key models.CapabilityKey
		if err := s.db.WithContext(ctx).
			Where("id = ? AND workspace_id = ?", id, workspaceID).
			First(&key).Error; err != nil {
			return convertNotFoundError(err, models.ErrKeyNotFound)
		}
		return models.ErrKeyRevoked
	}
	return nil
}

func (s *GORMStore) RotateAllCapabilityKeys(ctx context.Context, workspaceID string, now time.Time, mint func(old *models.CapabilityKey) (*models.CapabilityKey, error)) ([]*models.CapabilityKey, error) {
	var replacements []*models.CapabilityKey
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active []*models.CapabilityKey
		if err := tx.
			Where("workspace_id = ? AND revoked_at IS NULL", workspaceID).
			Where("expires_at IS NULL OR expires_at > ?", now).
			Find(&active).Error; err != nil {
			return err
		}

		// Old keys die and replacements appear in one transaction, so a
		// reader never sees a workspace without a working key set.
		if err := tx.Model(&models.CapabilityKey{}).
			Where("workspace_id = ? AND revoked_at IS NULL", workspaceID).
			Update("revoked_at", now).Error; err != nil {
			return err
		}

		for _, old := range active {
			replacement, err := mint(old)
			if err != nil {
				return err
			}
			if replacement.ID == "" {
				replacement.ID = models.NewID(models.PrefixKey)
			}
			if err := tx.Create(replacement).Error; err != nil {
				return err
			}
			replacements = append(replacements, replacement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replacements, nil
}

func (s *GORMStore) TouchCapabilityKeyUsed(ctx context.Context, id string, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.CapabilityKey{}).
		Where("id = ?", id).
		Update("last_used_at", now).Error
}
