//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/neffi/trustgate/internal/models"
	"github.com/neffi/trustgate/internal/store"
)

func setupRedisStore(t *testing.T, ctx context.Context) *SessionStore {
	t.Helper()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := NewSessionStore(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func makeSession(t *testing.T, ttl time.Duration) *models.Session {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	return &models.Session{
		SessionID: id,
		User: &models.User{
			ID:       "u1",
			Username: "jdoe",
			Email:    "jdoe@x.com",
			Roles:    []string{"user", "trust-manager"},
		},
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		IDToken:      "id-token",
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

func TestSessionStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := setupRedisStore(t, ctx)

	session := makeSession(t, time.Hour)
	require.NoError(t, s.Create(ctx, session))

	got, err := s.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, session.SessionID, got.SessionID)
	require.Equal(t, "jdoe", got.User.Username)
	require.Equal(t, []string{"user", "trust-manager"}, got.User.Roles)
	require.Equal(t, "refresh-token", got.RefreshToken)
}

func TestSessionStore_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := setupRedisStore(t, ctx)

	id, err := uuid.NewV7()
	require.NoError(t, err)

	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_DeleteRemovesKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := setupRedisStore(t, ctx)

	session := makeSession(t, time.Hour)
	require.NoError(t, s.Create(ctx, session))

	require.NoError(t, s.Delete(ctx, session.SessionID))

	_, err := s.Get(ctx, session.SessionID)
	require.ErrorIs(t, err, store.ErrSessionNotFound)

	require.ErrorIs(t, s.Delete(ctx, session.SessionID), store.ErrSessionNotFound)
}

func TestSessionStore_TouchExtendsExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := setupRedisStore(t, ctx)

	session := makeSession(t, time.Minute)
	require.NoError(t, s.Create(ctx, session))

	require.NoError(t, s.Touch(ctx, session.SessionID, 24*time.Hour))

	got, err := s.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.True(t, got.ExpiresAt.After(time.Now().Add(23*time.Hour)))
}

func TestSessionStore_NaturalExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := setupRedisStore(t, ctx)

	session := makeSession(t, time.Second)
	require.NoError(t, s.Create(ctx, session))

	time.Sleep(1500 * time.Millisecond)

	_, err := s.Get(ctx, session.SessionID)
	require.Error(t, err)
}
