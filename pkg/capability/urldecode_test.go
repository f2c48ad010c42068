package capability

import (
	"errors"
	"testing"

	"github.com/marklog/marklog/pkg/models"
)

func TestDecodeResourcePath(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{"plain path", "notes/tasks.md", "/notes/tasks.md", nil},
		{"leading slash", "/notes/tasks.md", "/notes/tasks.md", nil},
		{"root", "", "/", nil},
		{"root slash", "/", "/", nil},
		{"percent space", "my%20notes/a.md", "/my notes/a.md", nil},
		{"uppercase hex", "a%2Fb", "/a/b", nil},
		{"double-encoded dots stay literal", "%252e%252e/x.md", "/%2e%2e/x.md", nil},
		{"bad hex pair", "a%ZZb", "", ErrInvalidEncoding},
		{"trailing percent", "notes%", "", ErrInvalidEncoding},
		{"truncated escape", "notes%2", "", ErrInvalidEncoding},
		{"encoded nul", "a%00b", "", ErrInvalidEncoding},
		{"dotdot segment", "../etc/passwd", "", models.ErrInvalidPath},
		{"encoded dotdot", "%2e%2e/secret.md", "", models.ErrInvalidPath},
		{"single dot segment", "./a.md", "", models.ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResourcePath(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeResourcePath(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeResourcePath(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("DecodeResourcePath(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
