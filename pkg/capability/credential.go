package capability

import (
	"fmt"

	"github.com/marklog/marklog/pkg/models"
)

// Kind tags the credential variant a request authenticated with.
type Kind string

const (
	KindCapability Kind = "capability"
	KindAPIKey     Kind = "api-key"
	KindSession    Kind = "session"
)

// Credential is the resolved authentication context for a request. One
// tagged value covers all credential families so handlers authorize
// through a single path.
type Credential struct {
	Kind        Kind
	WorkspaceID string

	// Capability fields
	KeyID       string
	Permission  models.Permission
	Scope       models.Scope
	BoundAuthor string
	WIPLimit    int

	// API key fields
	Scopes []string
	Mode   string

	// Session fields
	UserID string
}

// ActorType maps the credential kind to the audit actor taxonomy.
func (c *Credential) ActorType() models.ActorType {
	switch c.Kind {
	case KindAPIKey:
		return models.ActorAPIKey
	case KindSession:
		return models.ActorSession
	default:
		return models.ActorCapability
	}
}

// Actor returns the audit actor string for the credential.
func (c *Credential) Actor() string {
	switch c.Kind {
	case KindSession:
		return c.UserID
	default:
		return c.KeyID
	}
}

// HasScope reports whether an API-key credential carries the named scope.
// Capability and session credentials answer through their own gates.
func (c *Credential) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AuthorMismatchError reports a bound-author violation. The message names
// both the expected and the received author, per the API contract.
type AuthorMismatchError struct {
	Expected string
	Received string
}

func (e *AuthorMismatchError) Error() string {
	return fmt.Sprintf("author mismatch: key is bound to %q, request carries %q", e.Expected, e.Received)
}

// Is makes errors.Is(err, models.ErrAuthorMismatch) succeed.
func (e *AuthorMismatchError) Is(target error) bool {
	return target == models.ErrAuthorMismatch
}

// Authorize checks that the credential grants the required permission.
// Write satisfies append, append satisfies read.
func (c *Credential) Authorize(required models.Permission) error {
	switch c.Kind {
	case KindCapability:
		if !c.Permission.Satisfies(required) {
			return models.ErrPermissionDenied
		}
		return nil
	case KindAPIKey:
		// API key scopes are flat; "write" does not imply "append" is
		// absent, so check the lattice the same way.
		best := models.Permission("")
		for _, s := range c.Scopes {
			if p, ok := models.ParsePermission(s); ok && p.Level() > best.Level() {
				best = p
			}
		}
		if !best.Satisfies(required) {
			return models.ErrPermissionDenied
		}
		return nil
	case KindSession:
		// Workspace owners hold full permission.
		return nil
	}
	return models.ErrPermissionDenied
}

// AuthorizePath checks that the credential's scope covers a file path.
func (c *Credential) AuthorizePath(path string) error {
	if c.Kind != KindCapability {
		return nil
	}
	if !c.Scope.Covers(path) {
		return models.ErrPermissionDenied
	}
	return nil
}

// AuthorizeFolder checks that the credential's scope covers a folder path.
func (c *Credential) AuthorizeFolder(folderPath string) error {
	if c.Kind != KindCapability {
		return nil
	}
	if !c.Scope.CoversFolder(folderPath) {
		return models.ErrPermissionDenied
	}
	return nil
}

// CheckAuthor enforces the bound-author constraint for append and write
// bodies that carry an author field.
func (c *Credential) CheckAuthor(author string) error {
	if c.Kind != KindCapability || c.BoundAuthor == "" {
		return nil
	}
	if author != c.BoundAuthor {
		return &AuthorMismatchError{Expected: c.BoundAuthor, Received: author}
	}
	return nil
}
