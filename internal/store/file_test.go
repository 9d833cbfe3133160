package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func openTestStore(t *testing.T, clock *fakeClock) (*FileStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cache", "test.db")
	s, err := OpenFile(path, WithNow(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestFileStore_SetGet(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, _ := openTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "user@example.com", []byte(`{"result":"valid"}`), time.Hour))

	value, ok, err := s.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"result":"valid"}`, string(value))

	_, ok, err = s.Get(ctx, "missing@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_SetOverwrites(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, _ := openTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("one"), time.Hour))
	require.NoError(t, s.Set(ctx, "k", []byte("two"), 2*time.Hour))

	value, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(value))

	expiry, ok, err := s.ExpiresAt(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, expiry.Equal(clock.now.Add(2*time.Hour)), "got %s", expiry)
}

func TestFileStore_ExpiredEntryIsAbsent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, _ := openTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))

	clock.now = clock.now.Add(2 * time.Minute)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_ZeroTTLNeverExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, _ := openTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	clock.now = clock.now.Add(24 * 365 * time.Hour)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStore_DeleteAndClear(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, _ := openTestStore(t, clock)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, []byte(k), time.Hour))
	}

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	for _, k := range []string{"b", "c"} {
		_, ok, err := s.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, "key %s should be cleared", k)
	}
}

func TestFileStore_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, _ := openTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "long", []byte("v"), time.Hour))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))

	removed, err := s.Sweep(ctx, clock.now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err := s.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStore_ReopenKeepsEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := OpenFile(path, WithNow(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, s.Close())

	s, err = OpenFile(path, WithNow(clock.Now))
	require.NoError(t, err)
	defer s.Close()

	value, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(value))
}

func TestRemove(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	path := filepath.Join(t.TempDir(), "remove.db")

	s, err := OpenFile(path, WithNow(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), time.Hour))
	require.NoError(t, s.Close())
	require.True(t, Exists(path))

	require.NoError(t, Remove(path))
	assert.False(t, Exists(path))
	assert.False(t, Exists(path+"-wal"))

	// removing again is a no-op
	require.NoError(t, Remove(path))
}

func TestOpenFile_RequiresPath(t *testing.T) {
	_, err := OpenFile("")
	require.Error(t, err)
}
