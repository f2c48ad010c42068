package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// KeyMode distinguishes live and test API keys.
type KeyMode string

const (
	KeyModeLive KeyMode = "live"
	KeyModeTest KeyMode = "test"
)

// IsValid checks if the mode is a recognized value.
func (m KeyMode) IsValid() bool {
	return m == KeyModeLive || m == KeyModeTest
}

// APIKeyScopes is the set of scopes an API key may carry.
var APIKeyScopes = []string{"read", "append", "write", "export"}

// IsValidAPIKeyScope checks if s names a known API key scope.
func IsValidAPIKeyScope(s string) bool {
	for _, v := range APIKeyScopes {
		if s == v {
			return true
		}
	}
	return false
}

// ApiKey is a bearer credential owned by a workspace owner. The plaintext
// (`sk_live_...` / `sk_test_...`) is returned exactly once at creation;
// only the SHA-256 hash and a display prefix are stored.
type ApiKey struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	WorkspaceID string     `gorm:"not null;size:64;index" json:"workspaceId"`
	Name        string     `gorm:"not null;size:64" json:"name"`
	KeyHash     string     `gorm:"uniqueIndex;not null;size:64" json:"-"`
	KeyPrefix   string     `gorm:"not null;size:16" json:"keyPrefix"` // first 12 chars + "..."
	Mode        string     `gorm:"not null;size:8" json:"mode"`       // live, test
	Scopes      string     `gorm:"type:text" json:"-"`                // JSON array of scope names
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`

	// Parsed scopes (not stored in DB)
	ParsedScopes []string `gorm:"-" json:"scopes,omitempty"`
}

// TableName returns the table name for ApiKey.
func (ApiKey) TableName() string {
	return "api_keys"
}

// GetScopes returns the parsed scope list.
func (k *ApiKey) GetScopes() ([]string, error) {
	if k.ParsedScopes != nil {
		return k.ParsedScopes, nil
	}
	if k.Scopes == "" {
		return []string{}, nil
	}
	var scopes []string
	if err := json.Unmarshal([]byte(k.Scopes), &scopes); err != nil {
		return nil, err
	}
	k.ParsedScopes = scopes
	return scopes, nil
}

// SetScopes stores the scope list, deduplicated and order-preserving.
func (k *ApiKey) SetScopes(scopes []string) error {
	deduped := DedupScopes(scopes)
	data, err := json.Marshal(deduped)
	if err != nil {
		return err
	}
	k.Scopes = string(data)
	k.ParsedScopes = deduped
	return nil
}

// HasScope reports whether the key carries the named scope.
func (k *ApiKey) HasScope(scope string) bool {
	scopes, err := k.GetScopes()
	if err != nil {
		return false
	}
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsRevoked reports whether the key has been revoked.
func (k *ApiKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsExpired reports whether the key has expired at the given instant.
func (k *ApiKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// IsActive reports whether the key can authenticate requests.
func (k *ApiKey) IsActive(now time.Time) bool {
	return !k.IsRevoked() && !k.IsExpired(now)
}

// DedupScopes removes duplicate scope names, preserving first occurrence.
func DedupScopes(scopes []string) []string {
	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// SanitizeKeyName strips HTML tags from a key name and trims whitespace.
// Names longer than 64 characters are rejected upstream, not truncated.
func SanitizeKeyName(name string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(name, ""))
}
