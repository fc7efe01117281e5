package instactl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSessionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileSessionStore(path)

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Save(ctx, []byte("blob-1")))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob-1"), got)

	require.NoError(t, store.Save(ctx, []byte("blob-2")))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob-2"), got)

	require.NoError(t, store.Delete(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Delete(ctx), "deleting twice is fine")
}

func TestFileSessionStore_EmptyFileIsNoSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := NewFileSessionStore(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, writeFileAtomic(path, []byte("x"), 0o644))
	require.NoError(t, writeFileAtomic(path, []byte("y"), 0o644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.json", entries[0].Name())
}

func TestOpenSessionStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionFile = "acct.session"

	store, err := OpenSessionStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileSessionStore{}, store)
	assert.Equal(t, "acct.session", store.Location())

	cfg.SessionStore = "redis://localhost:6379/2"
	store, err = OpenSessionStore(cfg)
	require.NoError(t, err)
	rs, ok := store.(*RedisSessionStore)
	require.True(t, ok)
	assert.Equal(t, redisKeyPrefix+"acct.session", rs.key)
	assert.Contains(t, rs.Location(), "localhost:6379")
	require.NoError(t, rs.Close())

	cfg.SessionStore = "s3://bucket"
	_, err = OpenSessionStore(cfg)
	assert.Error(t, err)
}

// The redis round trip needs a server; set INSTACTL_TEST_REDIS to run it.
func TestRedisSessionStore_Lifecycle(t *testing.T) {
	url := os.Getenv("INSTACTL_TEST_REDIS")
	if url == "" {
		t.Skip("INSTACTL_TEST_REDIS not set")
	}
	ctx := context.Background()
	store, err := NewRedisSessionStore(url, filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Save(ctx, []byte("blob")))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}
