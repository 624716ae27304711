// Package auth supplies the bearer credential used to open a realtime
// session and signals logout to whoever holds one.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNotJWT = errors.New("token is not a JWT")

// TokenSource returns the current access token, or "" when logged out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a TokenSource with a fixed token.
type Static string

func (s Static) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// Store holds the credential of the logged-in user.
type Store struct {
	mu       sync.Mutex
	token    string
	onLogout []func()
}

func NewStore(token string) *Store {
	return &Store{token: strings.TrimSpace(token)}
}

func (s *Store) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// OnLogout registers fn to run on the next Logout.
func (s *Store) OnLogout(fn func()) {
	s.mu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.mu.Unlock()
}

// Logout clears the token and runs the registered callbacks outside the lock.
func (s *Store) Logout() {
	s.mu.Lock()
	s.token = ""
	callbacks := s.onLogout
	s.onLogout = nil
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Claims is the subset of access-token claims the client cares about.
type Claims struct {
	Subject   string
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token carried an expiry earlier than now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

type accessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// InspectToken decodes a JWT without verifying its signature; the server
// does that. Opaque tokens return ErrNotJWT.
func InspectToken(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return Claims{}, ErrNotJWT
	}

	var parsed accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &parsed); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	claims := Claims{
		Subject: parsed.Subject,
		UserID:  parsed.UserID,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}
