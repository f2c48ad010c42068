package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// USER OPERATIONS
// ============================================

func (s *GORMStore) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now()
	var stored models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", user.Email).First(&stored).Error
		switch {
		case err == nil:
			updates := map[string]any{"last_login_at": now}
			if user.Name != "" && user.Name != stored.Name {
				updates["name"] = user.Name
				stored.Name = user.Name
			}
			stored.LastLoginAt = &now
			return tx.Model(&models.User{}).
				Where("id = ?", stored.ID).
				Updates(updates).Error
		case convertNotFoundError(err, models.ErrUserNotFound) == models.ErrUserNotFound:
			if user.ID == "" {
				user.ID = models.NewID(models.PrefixUser)
			}
			user.LastLoginAt = &now
			if createErr := tx.Create(user).Error; createErr != nil {
				if isUniqueConstraintError(createErr) {
					return models.ErrDuplicateUser
				}
				return createErr
			}
			stored = *user
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *GORMStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound)
}

func (s *GORMStore) LinkUserWorkspace(ctx context.Context, userID, workspaceID string) error {
	link := &models.UserWorkspace{
		ID:          models.NewID(models.PrefixUserWorkspace),
		UserID:      userID,
		WorkspaceID: workspaceID,
	}
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrAlreadyClaimed
		}
		return err
	}
	return nil
}

func (s *GORMStore) GetWorkspaceOwner(ctx context.Context, workspaceID string) (string, error) {
	var link models.UserWorkspace
	err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&link).Error
	if err != nil {
		if convertNotFoundError(err, models.ErrUserNotFound) == models.ErrUserNotFound {
			return "", nil
		}
		return "", err
	}
	return link.UserID, nil
}

func (s *GORMStore) ListUserWorkspaces(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.UserWorkspace{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("workspace_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
