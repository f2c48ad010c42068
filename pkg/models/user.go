package models

import "time"

// User is an OAuth-authenticated account. Users exist only to own
// workspaces; authentication itself happens in the session layer.
type User struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	Email       string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name        string     `gorm:"size:255" json:"name,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// UserWorkspace links a user to a workspace they own.
// A workspace is owned by at most one user.
type UserWorkspace struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	UserID      string    `gorm:"not null;size:64;index" json:"userId"`
	WorkspaceID string    `gorm:"not null;size:64;uniqueIndex" json:"workspaceId"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for UserWorkspace.
func (UserWorkspace) TableName() string {
	return "user_workspaces"
}
