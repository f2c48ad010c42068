package models

import "strings"

// Permission defines the access level granted by a credential.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionAppend Permission = "append"
	PermissionWrite  Permission = "write"
)

// Level returns the numeric level of the permission for comparison.
// Higher levels include all capabilities of lower levels.
func (p Permission) Level() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionAppend:
		return 2
	case PermissionWrite:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether the permission grants at least the required level.
func (p Permission) Satisfies(required Permission) bool {
	return p.Level() >= required.Level()
}

// IsValid checks if the permission is a recognized value.
func (p Permission) IsValid() bool {
	return p.Level() > 0
}

// ParsePermission converts a string to a Permission, returning false when
// the value is not recognized.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", false
	}
	return p, true
}

// ScopeType narrows a credential to a region of the workspace tree.
type ScopeType string

const (
	ScopeWorkspace ScopeType = "workspace"
	ScopeFolder    ScopeType = "folder"
	ScopeFile      ScopeType = "file"
)

// IsValid checks if the scope type is a recognized value.
func (s ScopeType) IsValid() bool {
	switch s {
	case ScopeWorkspace, ScopeFolder, ScopeFile:
		return true
	}
	return false
}

// Scope pairs a scope type with the path it applies to. Workspace scopes
// carry an empty path. Folder scopes use a trailing slash so prefix checks
// cannot cross name boundaries ("/notes/" does not cover "/notes.md").
type Scope struct {
	Type ScopeType
	Path string
}

// Covers reports whether the scope grants access to the given file path.
func (s Scope) Covers(path string) bool {
	switch s.Type {
	case ScopeWorkspace:
		return true
	case ScopeFolder:
		prefix := s.Path
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return strings.HasPrefix(path, prefix)
	case ScopeFile:
		return path == s.Path
	}
	return false
}

// CoversFolder reports whether the scope grants access to the given folder
// path, including the folder itself for folder scopes.
func (s Scope) CoversFolder(folderPath string) bool {
	switch s.Type {
	case ScopeWorkspace:
		return true
	case ScopeFolder:
		self := strings.TrimSuffix(s.Path, "/")
		target := strings.TrimSuffix(folderPath, "/")
		if target == self {
			return true
		}
		return strings.HasPrefix(target+"/", self+"/")
	case ScopeFile:
		return false
	}
	return false
}
