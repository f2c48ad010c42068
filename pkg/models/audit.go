package models

import "time"

// ActorType identifies which credential family performed an action.
type ActorType string

const (
	ActorSession    ActorType = "session"
	ActorAPIKey     ActorType = "api-key"
	ActorCapability ActorType = "capability"
	ActorSystem     ActorType = "system"
)

// IsValid checks if the actor type is a recognized value.
func (a ActorType) IsValid() bool {
	switch a {
	case ActorSession, ActorAPIKey, ActorCapability, ActorSystem:
		return true
	}
	return false
}

// AuditLogEntry records one mutating action. Entries are buffered in
// memory and batch-inserted by a background flusher.
//
// Action names are dot-namespaced: "file.put", "apikey.revoke",
// "webhook.create", "workspace.rotate_keys".
type AuditLogEntry struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	WorkspaceID string    `gorm:"not null;size:64;index" json:"workspaceId"`
	ActorType   string    `gorm:"not null;size:16" json:"actorType"` // session, api-key, capability, system
	Actor       string    `gorm:"size:255" json:"actor"`
	Action      string    `gorm:"not null;size:64;index" json:"action"`
	ResourceID  string    `gorm:"size:128" json:"resourceId,omitempty"`
	Details     string    `gorm:"type:text" json:"details,omitempty"` // JSON blob
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

// TableName returns the table name for AuditLogEntry.
func (AuditLogEntry) TableName() string {
	return "audit_logs"
}
