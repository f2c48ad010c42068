// Package middleware provides the HTTP middleware stack for the marklog
// API: request logging, credential resolution for capability URLs and
// session/API-key endpoints, rate limiting and the admin gate.
package middleware

import (
	"context"

	"github.com/marklog/marklog/pkg/auth"
	"github.com/marklog/marklog/pkg/capability"
)

type contextKey string

const (
	credentialContextKey contextKey = "credential"
	sessionContextKey    contextKey = "session"
	workspaceContextKey  contextKey = "workspaceID"
)

// GetCredential returns the resolved credential for the request, or nil.
func GetCredential(ctx context.Context) *capability.Credential {
	cred, ok := ctx.Value(credentialContextKey).(*capability.Credential)
	if !ok {
		return nil
	}
	return cred
}

// WithCredential stores a resolved credential on the context.
// Exposed for handler tests.
func WithCredential(ctx context.Context, cred *capability.Credential) context.Context {
	return context.WithValue(ctx, credentialContextKey, cred)
}

// GetSession returns the validated session claims for the request, or nil.
func GetSession(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(sessionContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// WithSession stores validated session claims on the context.
func WithSession(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, sessionContextKey, claims)
}

// GetWorkspaceID returns the workspace the request is authorized for.
func GetWorkspaceID(ctx context.Context) string {
	id, _ := ctx.Value(workspaceContextKey).(string)
	return id
}

// WithWorkspaceID stores the authorized workspace id on the context.
func WithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceContextKey, id)
}
