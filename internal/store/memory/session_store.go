package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neffi/trustgate/internal/models"
	"github.com/neffi/trustgate/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// Sessions are lost on restart; use the redis store when more than one
// gateway instance serves the same browser population.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[uuid.UUID]*models.Session // session_id -> Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*models.Session),
	}
}

// Create persists a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone to avoid external modifications
	clone := *session
	s.sessions[session.SessionID] = &clone

	return nil
}

// Get retrieves a session by ID. Expired records are dropped on read so
// they do not stay resident between sweeps.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if session.IsExpired() {
		delete(s.sessions, sessionID)
		return nil, store.ErrSessionExpired
	}

	// Clone to avoid external modifications
	clone := *session
	return &clone, nil
}

// Touch extends the session's expiry (rolling window).
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	session.ExpiresAt = time.Now().Add(ttl)
	return nil
}

// Delete deletes a session by ID (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return store.ErrSessionNotFound
	}

	delete(s.sessions, sessionID)
	return nil
}

// DeleteExpired deletes all expired sessions (cleanup sweep).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toDelete []uuid.UUID
	now := time.Now()

	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			toDelete = append(toDelete, id)
		}
	}

	for _, sessionID := range toDelete {
		delete(s.sessions, sessionID)
	}

	return len(toDelete), nil
}
