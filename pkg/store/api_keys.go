package store

import (
	"context"
	"time"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// API KEY OPERATIONS
// ============================================

func (s *GORMStore) CreateApiKey(ctx context.Context, key *models.ApiKey) (string, error) {
	return createWithID(s.db, ctx, key, func(k *models.ApiKey, id string) { k.ID = id }, key.ID, models.PrefixKey, models.ErrKeyNotFound)
}

func (s *GORMStore) GetApiKeyByHash(ctx context.Context, hash string) (*models.ApiKey, error) {
	return getByField[models.ApiKey](s.db, ctx, "key_hash", hash, models.ErrKeyNotFound)
}

func (s *GORMStore) ListApiKeys(ctx context.Context, workspaceID string) ([]*models.ApiKey, error) {
	var keys []*models.ApiKey
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND revoked_at IS NULL", workspaceID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *GORMStore) RevokeApiKey(ctx context.Context, workspaceID, id string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.ApiKey{}).
		Where("id = ? AND workspace_id = ? AND revoked_at IS NULL", id, workspaceID).
		Update("revoked_at", now)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var key models.ApiKey
		if err := s.db.WithContext(ctx).
			Where("id = ? AND workspace_id = ?", id, workspaceID).
			First(&key).Error; err != nil {
			return convertNotFoundError(err, models.ErrKeyNotFound)
		}
		return models.ErrKeyRevoked
	}
	return nil
}

func (s *GORMStore) TouchApiKeyUsed(ctx context.Context, id string, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.ApiKey{}).
		Where("id = ?", id).
		Update("last_used_at", now).Error
}
