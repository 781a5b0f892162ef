package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "s1", KeyAuthToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Set(ctx, "s1", KeyAuthToken, "tok-1"))

	value, err := store.Get(ctx, "s1", KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", value)

	_, err = store.Get(ctx, "s1", KeyReturnURL)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStoreSetReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "s1", KeyAuthToken, "old"))
	require.NoError(t, store.Set(ctx, "s1", KeyAuthToken, "new"))

	value, err := store.Get(ctx, "s1", KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "new", value)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "s1", KeyAuthToken, "tok"))
	require.NoError(t, store.Delete(ctx, "s1", KeyAuthToken))

	_, err := store.Get(ctx, "s1", KeyAuthToken)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Deleting absent keys and sessions is not an error
	assert.NoError(t, store.Delete(ctx, "s1", KeyAuthToken))
	assert.NoError(t, store.Delete(ctx, "missing", KeyAuthToken))
}

func TestMemoryStoreDeleteSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "s1", KeyAuthToken, "tok"))
	require.NoError(t, store.Set(ctx, "s1", KeyReturnURL, "/catalogue/"))
	require.NoError(t, store.DeleteSession(ctx, "s1"))

	_, err := store.Get(ctx, "s1", KeyAuthToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.Set(ctx, "stale", KeyAuthToken, "tok"))

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	require.NoError(t, store.Set(ctx, "fresh", KeyAuthToken, "tok"))

	removed := store.Sweep(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	_, err := store.Get(ctx, "stale", KeyAuthToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, "fresh", KeyAuthToken)
	assert.NoError(t, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrKeyNotFound))
	assert.True(t, IsNotFound(ErrSessionNotFound))
	assert.False(t, IsNotFound(context.Canceled))
	assert.False(t, IsNotFound(nil))
}
