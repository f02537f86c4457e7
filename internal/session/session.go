// Package session reads the signed-in citizen from the backend session token.
// The token is issued and verified by the backend; this side only needs the
// owner reference and expiry, so the signature is not checked here.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmerrifield20/civicsync/internal/model"
	"golang.org/x/oauth2"
)

// ErrExpired is returned by Token once the session has expired.
var ErrExpired = errors.New("session expired")

// Claims are the backend session token claims this client relies on.
type Claims struct {
	jwt.RegisteredClaims
	UserID json.Number `json:"user_id,omitempty"`
	Email  string      `json:"email,omitempty"`
}

// Session is a parsed backend session token.
type Session struct {
	raw       string
	owner     model.OwnerRef
	email     string
	expiresAt time.Time
	now       func() time.Time
}

// Anonymous is the session used when no token is configured.
var Anonymous = &Session{owner: model.AnonymousOwner, now: time.Now}

// Parse extracts the owner from a session token. The owner is taken from the
// user_id claim, falling back to sub; both must be positive integers.
func Parse(raw string) (*Session, error) {
	if raw == "" {
		return Anonymous, nil
	}

	var claims Claims
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	idStr := claims.UserID.String()
	if idStr == "" {
		idStr = claims.Subject
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("session token has no numeric user id")
	}

	s := &Session{raw: raw, owner: model.OwnerRef(id), email: claims.Email, now: time.Now}
	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Owner returns the owner reference of the signed-in citizen, or
// model.AnonymousOwner.
func (s *Session) Owner() model.OwnerRef { return s.owner }

// Email returns the email claim, if any.
func (s *Session) Email() string { return s.email }

// ExpiresAt returns the token expiry; the zero time means no expiry claim.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Expired reports whether the token's expiry has passed.
func (s *Session) Expired() bool {
	return !s.expiresAt.IsZero() && s.now().After(s.expiresAt)
}

// Token implements oauth2.TokenSource so the session can authenticate
// backend calls directly.
func (s *Session) Token() (*oauth2.Token, error) {
	if s.raw == "" {
		return nil, fmt.Errorf("anonymous session has no token")
	}
	if s.Expired() {
		return nil, ErrExpired
	}
	return &oauth2.Token{AccessToken: s.raw, TokenType: "Bearer", Expiry: s.expiresAt}, nil
}
