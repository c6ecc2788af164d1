package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/config"
)

func newTestRegistry(t *testing.T, cfg *config.CacheConfig) Registry {
	t.Helper()
	if cfg == nil {
		cfg = &config.CacheConfig{Backend: config.BackendMemory}
	}
	r, err := NewRegistry(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func testResponse(body string) *Response {
	return &Response{
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"text/html"}},
		Body:       []byte(body),
	}
}

func TestMemoryStore_PutAndMatch(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	store, err := r.Open(ctx, "v1-static")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "/index.html", testResponse("hello"), 0))

	got, err := store.Match(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Body)
	assert.Equal(t, "text/html", got.Header("Content-Type"))
}

func TestMemoryStore_MissReturnsError(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	store, err := r.Open(ctx, "v1-static")
	require.NoError(t, err)

	_, err = store.Match(ctx, "/absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	store, err := r.Open(ctx, "v1-runtime")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "/k", testResponse("old"), 0))
	require.NoError(t, store.Put(ctx, "/k", testResponse("new"), 0))

	got, err := store.Match(ctx, "/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got.Body)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	store, err := r.Open(ctx, "v1-runtime")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "/k", testResponse("x"), 20*time.Millisecond))

	_, err = store.Match(ctx, "/k")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = store.Match(ctx, "/k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	r := newTestRegistry(t, &config.CacheConfig{Backend: config.BackendMemory, MaxEntries: 2})
	ctx := context.Background()

	store, err := r.Open(ctx, "v1-image")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "/a", testResponse("a"), 0))
	require.NoError(t, store.Put(ctx, "/b", testResponse("b"), 0))

	// Touch /a so /b becomes the eviction candidate.
	_, err = store.Match(ctx, "/a")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "/c", testResponse("c"), 0))

	_, err = store.Match(ctx, "/a")
	assert.NoError(t, err)
	_, err = store.Match(ctx, "/b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = store.Match(ctx, "/c")
	assert.NoError(t, err)
}

func TestMemoryStore_DeleteAndKeys(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	store, err := r.Open(ctx, "v1-static")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "/a", testResponse("a"), 0))
	require.NoError(t, store.Put(ctx, "/b", testResponse("b"), 0))

	require.NoError(t, store.Delete(ctx, "/a"))
	require.NoError(t, store.Delete(ctx, "/a"), "deleting twice is not an error")

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/b"}, keys)
}

func TestMemoryRegistry_OpenIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	s1, err := r.Open(ctx, "v1-static")
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, "/k", testResponse("x"), 0))

	s2, err := r.Open(ctx, "v1-static")
	require.NoError(t, err)

	got, err := s2.Match(ctx, "/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got.Body)
}

func TestMemoryRegistry_NamesAndDrop(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := r.Open(ctx, "v1-static")
	require.NoError(t, err)
	_, err = r.Open(ctx, "v2-static")
	require.NoError(t, err)

	names, err := r.Names(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1-static", "v2-static"}, names)

	require.NoError(t, r.Drop(ctx, "v1-static"))
	require.NoError(t, r.Drop(ctx, "v1-static"), "dropping an absent store is not an error")

	names, err = r.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2-static"}, names)
}

func TestMemoryRegistry_Stats(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	store, err := r.Open(ctx, "v1-static")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "/k", testResponse("x"), 0))
	_, _ = store.Match(ctx, "/k")
	_, _ = store.Match(ctx, "/absent")

	provider, ok := r.(StatsProvider)
	require.True(t, ok)

	stats := provider.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Entries)
	assert.InDelta(t, 50.0, stats.HitRate(), 0.01)
}

func TestNewRegistry_UnknownBackend(t *testing.T) {
	_, err := NewRegistry(&config.CacheConfig{Backend: "tape"}, nil)
	assert.Error(t, err)
}

func TestNewRegistry_NilConfig(t *testing.T) {
	_, err := NewRegistry(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
