package models

import "time"

// CapabilityKey is a URL-embedded credential binding a permission and a
// scope to a workspace. The plaintext is never persisted; lookups go
// through the SHA-256 hash. Possession of the plaintext grants access.
type CapabilityKey struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	WorkspaceID string     `gorm:"not null;size:64;index" json:"workspaceId"`
	Prefix      string     `gorm:"not null;size:8" json:"prefix"` // first 4 chars, for display
	KeyHash     string     `gorm:"uniqueIndex;not null;size:64" json:"-"`
	Permission  string     `gorm:"not null;size:16" json:"permission"` // read, append, write
	ScopeType   string     `gorm:"not null;size:16" json:"scopeType"`  // workspace, folder, file
	ScopePath   string     `gorm:"not null;size:1024" json:"scopePath"`
	BoundAuthor string     `gorm:"size:64" json:"boundAuthor,omitempty"`
	WIPLimit    *int       `json:"wipLimit,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

// TableName returns the table name for CapabilityKey.
func (CapabilityKey) TableName() string {
	return "capability_keys"
}

// IsRevoked reports whether the key has been revoked.
func (k *CapabilityKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsExpired reports whether the key has expired at the given instant.
func (k *CapabilityKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// IsActive reports whether the key can authenticate requests: not revoked
// and not past its expiry.
func (k *CapabilityKey) IsActive(now time.Time) bool {
	return !k.IsRevoked() && !k.IsExpired(now)
}

// GetPermission returns the key's permission as a typed value.
func (k *CapabilityKey) GetPermission() Permission {
	return Permission(k.Permission)
}

// GetScope returns the key's scope as a typed value.
func (k *CapabilityKey) GetScope() Scope {
	return Scope{Type: ScopeType(k.ScopeType), Path: k.ScopePath}
}
