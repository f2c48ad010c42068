package models

import "time"

// MaxFolderNameLength bounds a single folder name segment.
const MaxFolderNameLength = 255

// Folder is an explicitly materialized folder. Most folders are virtual:
// any prefix of a file path "exists" as long as it contains a non-deleted
// file. Explicit creation makes an empty folder listable.
//
// Path is stored without a trailing slash ("/notes/sub"); the root "/" is
// never stored.
type Folder struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	WorkspaceID string    `gorm:"not null;size:64;uniqueIndex:idx_folders_ws_path" json:"workspaceId"`
	Path        string    `gorm:"not null;size:1024;uniqueIndex:idx_folders_ws_path" json:"path"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for Folder.
func (Folder) TableName() string {
	return "folders"
}
