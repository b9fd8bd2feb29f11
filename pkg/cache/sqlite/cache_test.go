package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache_test.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHashPrompt(t *testing.T) {
	h1 := HashPrompt("chainscribe-docusense-v1", "summarize this")
	h2 := HashPrompt("chainscribe-docusense-v1", "summarize this")
	h3 := HashPrompt("chainscribe-fast-1b", "summarize this")
	h4 := HashPrompt("chainscribe-docusense-v1s", "ummarize this")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h1, h4, "model and prompt are separated")
	assert.Len(t, h1, 64)
}

func TestPutAndGet(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()
	hash := HashPrompt("m", "hi")

	require.NoError(t, c.Put(ctx, hash, "m", []byte(`{"analysis":"hello"}`)))

	data, ok := c.Get(ctx, hash, "m")
	require.True(t, ok)
	assert.Equal(t, `{"analysis":"hello"}`, string(data))

	_, ok = c.Get(ctx, hash, "other")
	assert.False(t, ok)
}

func TestPutRejectsEmpty(t *testing.T) {
	c := newTestCache(t, time.Hour)
	assert.Error(t, c.Put(context.Background(), "h", "m", nil))
}

func TestTTLExpiration(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "h", "m", []byte("x")))
	_, ok := c.Get(ctx, "h", "m")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "h", "m")
	assert.False(t, ok, "expired entries miss")
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "h1", "m", []byte("a")))
	require.NoError(t, c.Put(ctx, "h2", "m", []byte("b")))
	c.Get(ctx, "h1", "m")
	c.Get(ctx, "missing", "m")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestClear(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "old", "m", []byte("a")))
	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Put(ctx, "fresh", "m", []byte("b")))

	n, err := c.Clear(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok := c.Get(ctx, "fresh", "m")
	assert.True(t, ok)

	n, err = c.Clear(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
