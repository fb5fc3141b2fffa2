package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a browser's authenticated session.
// The session ID is stored in an opaque cookie, while all session data lives server-side.
type Session struct {
	SessionID uuid.UUID `json:"session_id"` // UUIDv7 - this is the only value stored in the cookie

	// User is nil for anonymous sessions. A session without a user is
	// treated as unauthenticated.
	User *User `json:"user,omitempty"`

	// Provider tokens, present only when operating against a real
	// identity provider (always empty in bypass mode).
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Optional audit metadata
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// IsAuthenticated reports whether the session carries a user.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.User != nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
