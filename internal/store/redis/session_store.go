package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/neffi/trustgate/internal/models"
	"github.com/neffi/trustgate/internal/store"
)

// Redis key prefix for sessions
const sessionKeyPrefix = "session:"

// SessionStore implements store.SessionStore backed by Redis, for
// deployments where multiple gateway instances share session state.
// Redis key TTLs mirror the session expiry, so natural expiry needs no
// sweep.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates a Redis-backed session store from a URL
// (e.g. redis://localhost:6379/0) and verifies connectivity.
func NewSessionStore(ctx context.Context, url string) (*SessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &SessionStore{client: client}, nil
}

// NewSessionStoreWithClient wraps an existing client, used by tests.
func NewSessionStoreWithClient(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(sessionID uuid.UUID) string {
	return sessionKeyPrefix + sessionID.String()
}

// Create persists a new session with a TTL matching its expiry.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return store.ErrSessionExpired
	}

	if err := s.client.Set(ctx, sessionKey(session.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	// The key TTL is authoritative, but the stored expiry can lag a
	// crashed Touch; treat either as expired.
	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	return &session, nil
}

// Touch extends the session's expiry (rolling window). Last write wins
// under concurrent touches for the same session; session writes are
// coarse whole-record replacements.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.ExpiresAt = time.Now().Add(ttl)

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Delete deletes a session by ID (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	n, err := s.client.Del(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

// DeleteExpired is a no-op for Redis; key TTLs expire sessions natively.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Close releases the underlying Redis connection.
func (s *SessionStore) Close() error {
	return s.client.Close()
}
