package models

import (
	"strings"
	"testing"
	"time"
)

func TestPermission_Level(t *testing.T) {
	tests := []struct {
		perm  Permission
		level int
	}{
		{PermissionRead, 1},
		{PermissionAppend, 2},
		{PermissionWrite, 3},
		{"unknown", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.perm), func(t *testing.T) {
			if got := tt.perm.Level(); got != tt.level {
				t.Errorf("Level() = %d, want %d", got, tt.level)
			}
		})
	}
}

func TestPermission_Satisfies(t *testing.T) {
	tests := []struct {
		granted   Permission
		required  Permission
		satisfied bool
	}{
		{PermissionWrite, PermissionRead, true},
		{PermissionWrite, PermissionAppend, true},
		{PermissionWrite, PermissionWrite, true},
		{PermissionAppend, PermissionRead, true},
		{PermissionAppend, PermissionWrite, false},
		{PermissionRead, PermissionAppend, false},
		{PermissionRead, PermissionWrite, false},
		{PermissionRead, PermissionRead, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.granted)+"_vs_"+string(tt.required), func(t *testing.T) {
			if got := tt.granted.Satisfies(tt.required); got != tt.satisfied {
				t.Errorf("Satisfies(%q) = %v, want %v", tt.required, got, tt.satisfied)
			}
		})
	}
}

func TestParsePermission(t *testing.T) {
	tests := []struct {
		input    string
		expected Permission
		ok       bool
	}{
		{"read", PermissionRead, true},
		{"append", PermissionAppend, true},
		{"write", PermissionWrite, true},
		{" Write ", PermissionWrite, true},
		{"admin", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParsePermission(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParsePermission(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.expected {
				t.Errorf("ParsePermission(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestScope_Covers(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		path    string
		covered bool
	}{
		{"workspace covers anything", Scope{Type: ScopeWorkspace, Path: "/"}, "/any/file.md", true},
		{"folder covers child", Scope{Type: ScopeFolder, Path: "/notes/"}, "/notes/a.md", true},
		{"folder covers nested", Scope{Type: ScopeFolder, Path: "/notes/"}, "/notes/sub/b.md", true},
		{"folder respects boundary", Scope{Type: ScopeFolder, Path: "/notes/"}, "/notes.md", false},
		{"folder without slash", Scope{Type: ScopeFolder, Path: "/notes"}, "/notes/a.md", true},
		{"folder excludes sibling", Scope{Type: ScopeFolder, Path: "/notes/"}, "/other/a.md", false},
		{"file exact match", Scope{Type: ScopeFile, Path: "/tasks.md"}, "/tasks.md", true},
		{"file no prefix match", Scope{Type: ScopeFile, Path: "/tasks.md"}, "/tasks.md.bak", false},
		{"file no other file", Scope{Type: ScopeFile, Path: "/tasks.md"}, "/other.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.Covers(tt.path); got != tt.covered {
				t.Errorf("Covers(%q) = %v, want %v", tt.path, got, tt.covered)
			}
		})
	}
}

func TestScope_CoversFolder(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		folder  string
		covered bool
	}{
		{"workspace covers root", Scope{Type: ScopeWorkspace, Path: "/"}, "/", true},
		{"folder covers itself", Scope{Type: ScopeFolder, Path: "/notes/"}, "/notes", true},
		{"folder covers subfolder", Scope{Type: ScopeFolder, Path: "/notes/"}, "/notes/sub", true},
		{"folder excludes parent", Scope{Type: ScopeFolder, Path: "/notes/"}, "/", false},
		{"folder respects boundary", Scope{Type: ScopeFolder, Path: "/notes/"}, "/notes2", false},
		{"file never covers folders", Scope{Type: ScopeFile, Path: "/tasks.md"}, "/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.CoversFolder(tt.folder); got != tt.covered {
				t.Errorf("CoversFolder(%q) = %v, want %v", tt.folder, got, tt.covered)
			}
		})
	}
}

func TestComputeETag(t *testing.T) {
	tests := []struct {
		name    string
		content string
		etag    string
	}{
		{"empty", "", "e3b0c44298fc1c14"},
		{"hello", "hello", "2cf24dba5fb0a30e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeETag(tt.content)
			if got != tt.etag {
				t.Errorf("ComputeETag() = %q, want %q", got, tt.etag)
			}
			if len(got) != 16 {
				t.Errorf("expected 16-char etag, got %d chars", len(got))
			}
			if got != strings.ToLower(got) {
				t.Errorf("expected lowercase etag, got %q", got)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"root", "/", "/", false},
		{"empty is root", "", "/", false},
		{"simple file", "/tasks.md", "/tasks.md", false},
		{"no leading slash", "tasks.md", "/tasks.md", false},
		{"nested", "/notes/sub/a.md", "/notes/sub/a.md", false},
		{"trailing slash stripped", "/notes/", "/notes", false},
		{"dotdot rejected", "/notes/../etc/passwd", "", true},
		{"bare dotdot rejected", "..", "", true},
		{"dot segment rejected", "/notes/./a.md", "", true},
		{"empty segment rejected", "/notes//a.md", "", true},
		{"null byte rejected", "/notes/a\x00b.md", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		path   string
		parent string
	}{
		{"/", "/"},
		{"/tasks.md", "/"},
		{"/notes/a.md", "/notes"},
		{"/notes/sub/b.md", "/notes/sub"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ParentPath(tt.path); got != tt.parent {
				t.Errorf("ParentPath(%q) = %q, want %q", tt.path, got, tt.parent)
			}
		})
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		path string
		base string
	}{
		{"/", "/"},
		{"/tasks.md", "tasks.md"},
		{"/notes/a.md", "a.md"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := BaseName(tt.path); got != tt.base {
				t.Errorf("BaseName(%q) = %q, want %q", tt.path, got, tt.base)
			}
		})
	}
}

func TestIsUnder(t *testing.T) {
	tests := []struct {
		folder string
		path   string
		under  bool
	}{
		{"/", "/tasks.md", true},
		{"/", "/notes/a.md", true},
		{"/", "/", false},
		{"/notes", "/notes/a.md", true},
		{"/notes", "/notes/sub/b.md", true},
		{"/notes", "/notes.md", false},
		{"/notes", "/notes", false},
	}

	for _, tt := range tests {
		t.Run(tt.folder+"_"+tt.path, func(t *testing.T) {
			if got := IsUnder(tt.folder, tt.path); got != tt.under {
				t.Errorf("IsUnder(%q, %q) = %v, want %v", tt.folder, tt.path, got, tt.under)
			}
		})
	}
}

func TestNewID(t *testing.T) {
	id := NewID(PrefixWorkspace)
	if !strings.HasPrefix(id, "ws_") {
		t.Errorf("expected ws_ prefix, got %q", id)
	}
	if strings.Contains(id, "-") {
		t.Errorf("expected no dashes in id, got %q", id)
	}
	if id == NewID(PrefixWorkspace) {
		t.Error("expected unique ids")
	}
}

func TestDedupScopes(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"no dups", []string{"read", "write"}, []string{"read", "write"}},
		{"dups removed", []string{"read", "read", "write", "read"}, []string{"read", "write"}},
		{"empty", []string{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupScopes(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d scopes, got %d", len(tt.expected), len(got))
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("scopes[%d] = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestSanitizeKeyName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "deploy key", "deploy key"},
		{"strips tags", "<script>alert(1)</script>ci", "alert(1)ci"},
		{"strips partial tag", "a<b>bold</b>", "abold"},
		{"trims whitespace", "  name  ", "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeKeyName(tt.input); got != tt.expected {
				t.Errorf("SanitizeKeyName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestApiKey_Scopes(t *testing.T) {
	key := &ApiKey{}
	if err := key.SetScopes([]string{"read", "append", "read"}); err != nil {
		t.Fatalf("SetScopes() error = %v", err)
	}

	scopes, err := key.GetScopes()
	if err != nil {
		t.Fatalf("GetScopes() error = %v", err)
	}
	if len(scopes) != 2 {
		t.Fatalf("expected 2 deduplicated scopes, got %d", len(scopes))
	}
	if !key.HasScope("read") || !key.HasScope("append") {
		t.Error("expected read and append scopes")
	}
	if key.HasScope("write") {
		t.Error("did not expect write scope")
	}
}

func TestApiKey_IsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		key    ApiKey
		active bool
	}{
		{"fresh key", ApiKey{}, true},
		{"expires later", ApiKey{ExpiresAt: &future}, true},
		{"expired", ApiKey{ExpiresAt: &past}, false},
		{"revoked", ApiKey{RevokedAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.IsActive(now); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestCapabilityKey_IsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name   string
		key    CapabilityKey
		active bool
	}{
		{"no expiry", CapabilityKey{}, true},
		{"future expiry", CapabilityKey{ExpiresAt: &future}, true},
		{"expired", CapabilityKey{ExpiresAt: &past}, false},
		{"revoked", CapabilityKey{RevokedAt: &past}, false},
		{"revoked and valid expiry", CapabilityKey{RevokedAt: &past, ExpiresAt: &future}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.IsActive(now); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	got := FormatTime(ts)
	want := "2025-03-14T09:26:53.589Z"
	if got != want {
		t.Errorf("FormatTime() = %q, want %q", got, want)
	}

	// Non-UTC times are rendered in UTC.
	est := time.FixedZone("EST", -5*3600)
	got = FormatTime(time.Date(2025, 3, 14, 4, 26, 53, 0, est))
	want = "2025-03-14T09:26:53.000Z"
	if got != want {
		t.Errorf("FormatTime() = %q, want %q", got, want)
	}
}
