package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/auth"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// AuthHandler resolves session cookies. Sessions are minted by an
// external OAuth collaborator; this service only validates and resolves
// them.
type AuthHandler struct {
	store    store.Store
	sessions *auth.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(st store.Store, sessions *auth.Service) *AuthHandler {
	return &AuthHandler{store: st, sessions: sessions}
}

// Me handles GET /auth/me. The user row is materialized lazily on first
// resolution of a valid session.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetSession(r.Context())

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if errors.Is(err, models.ErrUserNotFound) {
		now := time.Now()
		user, err = h.store.UpsertUser(r.Context(), &models.User{
			ID:          claims.UserID,
			Email:       claims.Email,
			Name:        claims.Name,
			LastLoginAt: &now,
		})
	}
	if err != nil {
		InternalServerError(w)
		return
	}

	workspaces, err := h.store.ListUserWorkspaces(r.Context(), user.ID)
	if err != nil {
		InternalServerError(w)
		return
	}

	WriteOK(w, map[string]any{
		"user": map[string]any{
			"id":          user.ID,
			"email":       user.Email,
			"name":        user.Name,
			"lastLoginAt": models.FormatTimePtr(user.LastLoginAt),
		},
		"workspaces": workspaces,
	})
}

// Logout handles POST /auth/logout by clearing the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	WriteOK(w, map[string]any{"loggedOut": true})
}
