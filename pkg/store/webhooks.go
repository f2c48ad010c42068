package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// WEBHOOK OPERATIONS
// ============================================

func (s *GORMStore) CreateWebhook(ctx context.Context, hook *models.Webhook) (string, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Webhook{}).
			Where("workspace_id = ? AND scope_type = ? AND scope_path = ? AND status = ? AND deleted_at IS NULL",
				hook.WorkspaceID, hook.ScopeType, hook.ScopePath, string(models.WebhookActive)).
			Count(&active).Error; err != nil {
			return err
		}
		if active >= models.MaxWebhooksPerScope {
			return models.ErrWebhookLimitExceeded
		}

		if hook.ID == "" {
			hook.ID = models.NewID(models.PrefixWebhook)
		}
		return tx.Create(hook).Error
	})
	if err != nil {
		return "", err
	}
	return hook.ID, nil
}

func (s *GORMStore) GetWebhook(ctx context.Context, workspaceID, id string) (*models.Webhook, error) {
	var hook models.Webhook
	err := s.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ? AND deleted_at IS NULL", id, workspaceID).
		First(&hook).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrWebhookNotFound)
	}
	return &hook, nil
}

func (s *GORMStore) GetWebhookByID(ctx context.Context, id string) (*models.Webhook, error) {
	var hook models.Webhook
	err := s.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&hook).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrWebhookNotFound)
	}
	return &hook, nil
}

func (s *GORMStore) ListWebhooks(ctx context.Context, workspaceID string) ([]*models.Webhook, error) {
	var hooks []*models.Webhook
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
		Order("created_at DESC").
		Find(&hooks).Error
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

func (s *GORMStore) ListActiveWebhooks(ctx context.Context, workspaceID string) ([]*models.Webhook, error) {
	var hooks []*models.Webhook
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND status = ? AND deleted_at IS NULL",
			workspaceID, string(models.WebhookActive)).
		Find(&hooks).Error
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

func (s *GORMStore) UpdateWebhook(ctx context.Context, hook *models.Webhook) error {
	result := s.db.WithContext(ctx).
		Model(&models.Webhook{}).
		Where("id = ? AND workspace_id = ? AND deleted_at IS NULL", hook.ID, hook.WorkspaceID).
		Updates(map[string]any{
			"url":        hook.URL,
			"events":     hook.Events,
			"status":     hook.Status,
			"scope_type": hook.ScopeType,
			"scope_path": hook.ScopePath,
			"recursive":  hook.Recursive,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrWebhookNotFound
	}
	return nil
}

func (s *GORMStore) SoftDeleteWebhook(ctx context.Context, workspaceID, id string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Webhook{}).
		Where("id = ? AND workspace_id = ? AND deleted_at IS NULL", id, workspaceID).
		Update("deleted_at", now)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrWebhookNotFound
	}
	return nil
}

// ============================================
// WEBHOOK DELIVERY OPERATIONS
// ============================================

func (s *GORMStore) EnqueueDeliveries(ctx context.Context, deliveries []*models.WebhookDelivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	for _, d := range deliveries {
		if d.ID == "" {
			d.ID = models.NewID(models.PrefixDelivery)
		}
		if d.Status == "" {
			d.Status = string(models.DeliveryPending)
		}
	}
	return s.db.WithContext(ctx).Create(deliveries).Error
}

func (s *GORMStore) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error) {
	var due []*models.WebhookDelivery
	q := s.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", string(models.DeliveryPending), now).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&due).Error; err != nil {
		return nil, err
	}
	return due, nil
}

func (s *GORMStore) MarkDeliveryAttempt(ctx context.Context, id string, attempts int, lastError string, nextAttempt time.Time) error {
	return s.updateDelivery(ctx, id, map[string]any{
		"attempts":        attempts,
		"last_error":      lastError,
		"next_attempt_at": nextAttempt,
	})
}

func (s *GORMStore) MarkDeliveryDelivered(ctx context.Context, id string, attempts int) error {
	return s.updateDelivery(ctx, id, map[string]any{
		"attempts":   attempts,
		"status":     string(models.DeliveryDelivered),
		"last_error": "",
	})
}

func (s *GORMStore) MarkDeliveryFailed(ctx context.Context, id string, attempts int, lastError string) error {
	return s.updateDelivery(ctx, id, map[string]any{
		"attempts":   attempts,
		"status":     string(models.DeliveryFailed),
		"last_error": lastError,
	})
}

func (s *GORMStore) updateDelivery(ctx context.Context, id string, updates map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrDeliveryNotFound
	}
	return nil
}
