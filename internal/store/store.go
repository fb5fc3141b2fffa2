package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/neffi/trustgate/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionStore defines the interface for server-side session storage.
// The store is injected into the auth handlers rather than reached through
// ambient request state, so a distributed backend can be substituted
// without touching handler logic.
type SessionStore interface {
	// Create persists a new session.
	Create(ctx context.Context, session *models.Session) error

	// Get retrieves a session by ID. Returns ErrSessionNotFound if the
	// session does not exist and ErrSessionExpired if it has expired.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// Touch extends the session's expiry to now+ttl (rolling window).
	Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error

	// Delete deletes a session by ID (logout).
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteExpired deletes all expired sessions and returns how many
	// were removed. Backends with native TTL support may report zero.
	DeleteExpired(ctx context.Context) (int, error)
}
