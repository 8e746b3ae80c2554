// Package auth holds the explicit authentication context handed to the exam
// session controller and the backend client.
package auth

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthRequired means the candidate must log in again.
var ErrAuthRequired = errors.New("authentication required")

// Session carries the candidate's bearer tokens. The zero value is an
// unauthenticated session.
type Session struct {
	mu       sync.Mutex
	access   string
	refresh  string
	expired  bool
	onExpire []func()
	now      func() time.Time
}

// NewSession creates a session from previously issued tokens.
func NewSession(access, refresh string) *Session {
	return &Session{access: access, refresh: refresh, now: time.Now}
}

// Token returns the bearer token to attach to a request. It fails with
// ErrAuthRequired when there is no token, the session was expired, or the
// token's exp claim has already passed.
func (s *Session) Token() (string, error) {
	if s == nil {
		return "", ErrAuthRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expired || s.access == "" {
		return "", ErrAuthRequired
	}
	if exp, ok := tokenExpiry(s.access); ok && !s.clock().Before(exp) {
		return "", ErrAuthRequired
	}
	return s.access, nil
}

// RefreshToken returns the refresh token, if any.
func (s *Session) RefreshToken() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

// Subject returns the token subject (user id) without verifying the signature.
// The portal only reads it for logging; the backend remains the verifier.
func (s *Session) Subject() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	token := s.access
	s.mu.Unlock()

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	if uid, ok := claims["user_id"]; ok {
		switch v := uid.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

// OnExpire registers a callback fired once when the session is expired.
func (s *Session) OnExpire(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = append(s.onExpire, fn)
}

// Expire clears the tokens (forced logout) and fires the expiry callbacks.
func (s *Session) Expire() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	s.access = ""
	s.refresh = ""
	callbacks := s.onExpire
	s.onExpire = nil
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Expired reports whether the session was forcibly logged out.
func (s *Session) Expired() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

func (s *Session) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
