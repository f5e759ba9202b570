package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appauth/internal/authstate"
)

func TestSnapshotOf(t *testing.T) {
	s := authorizedState()
	snap := SnapshotOf(s, "refreshed")

	assert.Equal(t, authstate.PhaseAuthorized, snap.Phase)
	assert.True(t, snap.IsAuthorized)
	assert.True(t, snap.HasRefreshToken)
	require.NotNil(t, snap.AccessTokenExpirationTime)
	assert.Equal(t, "refreshed", snap.LastMessage)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "access-1")
	assert.NotContains(t, string(data), "refresh-1")
}

func TestFileSnapshotStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	store := NewFileSnapshotStore(path, time.Minute)

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Put(ctx, SnapshotOf(authorizedState(), "ok")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	snap, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", snap.LastMessage)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFileSnapshotStore_Expired(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewFileSnapshotStore(path, time.Minute)

	snap := SnapshotOf(authstate.New(), "old")
	snap.SavedAt = time.Now().Add(-2 * time.Minute)
	require.NoError(t, store.Put(ctx, snap))

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileSnapshotStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0600))

	_, err := NewFileSnapshotStore(path, 0).Get(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestGateway_SnapshotDisabled(t *testing.T) {
	g := NewGateway(nil, failingKeys{}, nil)
	g.SaveSnapshot(context.Background(), authstate.New(), "ignored")
	_, ok := g.LoadSnapshot(context.Background())
	assert.False(t, ok)
}

func TestRedisSnapshotStore(t *testing.T) {
	url := os.Getenv("APPAUTH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("APPAUTH_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	store, err := NewRedisSnapshotStore(url, "appauth:test:"+t.Name(), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Put(ctx, SnapshotOf(authorizedState(), "from redis")))
	snap, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from redis", snap.LastMessage)
	assert.True(t, snap.IsAuthorized)

	ttl, err := store.client.TTL(ctx, store.key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Clear(ctx))
}

func TestNewRedisSnapshotStore_InvalidURL(t *testing.T) {
	_, err := NewRedisSnapshotStore("not a url", "", 0)
	assert.Error(t, err)
}
