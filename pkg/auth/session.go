// Package auth issues and validates the session tokens that identify
// OAuth-authenticated workspace owners.
//
// The OAuth dance itself happens in a separate collaborator service; this
// package only mints JWT session cookies from its callback payload and
// resolves them back to user claims on each request.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marklog/marklog/pkg/models"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "better-auth.session_token"

// Common errors for session operations.
var (
	ErrInvalidToken        = errors.New("invalid session token")
	ErrExpiredToken        = errors.New("session has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign session token")
	ErrInvalidSecretLength = errors.New("session secret must be at least 32 characters")
)

// Config holds configuration for session token generation.
type Config struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "marklog"
	Issuer string

	// Duration is the session lifetime. Default: 7 days.
	Duration time.Duration
}

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"uid"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// Service mints and validates session tokens.
type Service struct {
	config Config
}

// NewService creates a session service with the given configuration.
func NewService(config Config) (*Service, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}

	if config.Issuer == "" {
		config.Issuer = "marklog"
	}
	if config.Duration == 0 {
		config.Duration = 7 * 24 * time.Hour
	}

	return &Service{config: config}, nil
}

// Mint creates a signed session token for the given user.
func (s *Service) Mint(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Duration)),
		},
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Validate parses and verifies a session token and returns its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Duration returns the configured session lifetime.
func (s *Service) Duration() time.Duration {
	return s.config.Duration
}

// SetCookie writes the session cookie on a response.
func (s *Service) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.config.Duration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on a response.
func (s *Service) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest extracts and validates the session carried by a request's
// cookie. Returns ErrInvalidToken when no cookie is present.
func (s *Service) FromRequest(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, ErrInvalidToken
	}
	return s.Validate(cookie.Value)
}
