package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		UserID:         "user-1",
		Email:          "alice@acme.example.com",
		OrganizationID: "org-1",
		Provider:       "legacy",
		CreatedAt:      now,
		ExpiresAt:      now.Add(24 * time.Hour),
	}
}

func TestRedisStore_CreateGetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	session := newTestSession("sess-1")
	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)
	assert.Equal(t, session.Email, got.Email)
	assert.Equal(t, session.Provider, got.Provider)

	require.NoError(t, store.Delete(ctx, "sess-1"))

	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	session := newTestSession("sess-ttl")
	session.ExpiresAt = time.Now().Add(time.Minute)
	require.NoError(t, store.Create(ctx, session))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "sess-ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CreateExpired(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)

	session := newTestSession("sess-old")
	session.ExpiresAt = time.Now().Add(-time.Minute)
	err := store.Create(context.Background(), session)
	assert.Error(t, err)
}

func TestMemoryStore_CreateGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := newTestSession("sess-1")
	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)

	require.NoError(t, store.Delete(ctx, "sess-1"))

	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ExpiredNotReturned(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := newTestSession("sess-exp")
	session.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, store.Create(ctx, session))

	_, err := store.Get(ctx, "sess-exp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	live := newTestSession("live")
	require.NoError(t, store.Create(ctx, live))

	expired := newTestSession("expired")
	expired.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, store.Create(ctx, expired))

	assert.Equal(t, 1, store.Sweep())

	_, err := store.Get(ctx, "live")
	assert.NoError(t, err)
}

func TestMemoryStore_StartSweeping(t *testing.T) {
	store := NewMemoryStore()

	expired := newTestSession("expired")
	expired.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, store.Create(context.Background(), expired))

	stop := store.StartSweeping(10 * time.Millisecond)
	defer stop()

	// The expired entry must leave the map, not merely be hidden by Get
	require.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		_, ok := store.sessions["expired"]
		return !ok
	}, time.Second, 10*time.Millisecond)

	// Stopping twice is safe
	stop()
}
