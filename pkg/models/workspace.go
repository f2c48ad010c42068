package models

import "time"

// Workspace is the tenancy root. Every file, key, webhook and audit entry
// belongs to exactly one workspace.
//
// A workspace is created by bootstrap, may be claimed at most once by an
// OAuth user, and is soft-deleted by its owner. Claiming transitions
// ClaimedAt from null to set exactly once.
type Workspace struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	Name           string     `gorm:"not null;size:255" json:"name"`
	ClaimedAt      *time.Time `json:"claimedAt,omitempty"`
	ClaimedByEmail string     `gorm:"size:255" json:"claimedByEmail,omitempty"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt      *time.Time `gorm:"index" json:"deletedAt,omitempty"`
}

// TableName returns the table name for Workspace.
func (Workspace) TableName() string {
	return "workspaces"
}

// IsClaimed reports whether an OAuth user has claimed the workspace.
func (w *Workspace) IsClaimed() bool {
	return w.ClaimedAt != nil
}

// IsDeleted reports whether the workspace has been soft-deleted.
func (w *Workspace) IsDeleted() bool {
	return w.DeletedAt != nil
}
