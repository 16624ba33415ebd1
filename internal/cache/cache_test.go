package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clareai/llmgateway/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	backend, err := NewMemoryBackend(100)
	require.NoError(t, err)
	return New(backend, StrategyDefault, 0, time.Hour)
}

func TestCache_SetThenGetHits(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	entry := &domain.CacheEntry{StatusCode: 200, Body: []byte("ok"), Model: "gpt-4o-mini", Provider: "openai"}
	assert.True(t, c.Set(ctx, "k1", entry, 0))

	got, hit := c.Get(ctx, "k1", "/v1/chat/completions", "gpt-4o-mini")
	require.True(t, hit)
	assert.Equal(t, "ok", string(got.Body))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestCache_MissIncrementsMissCounter(t *testing.T) {
	c := newTestCache(t)
	_, hit := c.Get(context.Background(), "missing", "/v1/chat/completions", "gpt-4o-mini")
	assert.False(t, hit)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCache_ExpiredEntryIsAMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	entry := &domain.CacheEntry{StatusCode: 200, Body: []byte("x")}
	require.True(t, c.Set(ctx, "k1", entry, 10*time.Millisecond))

	time.Sleep(25 * time.Millisecond)
	_, hit := c.Get(ctx, "k1", "/v1/chat/completions", "m")
	assert.False(t, hit)
}

func TestCache_InvalidateByModelAndProvider(t *testing.T) {
	backend, err := NewMemoryBackend(100)
	require.NoError(t, err)
	c := New(backend, StrategyHierarchical, 0, time.Hour)
	ctx := context.Background()

	key := c.Key(Params{Provider: "openai", Model: "gpt-4o-mini", RequestType: "chat", Messages: []Message{{Role: "user", Content: "hi"}}})
	require.True(t, c.Set(ctx, key, &domain.CacheEntry{StatusCode: 200, Body: []byte("a")}, 0))

	n := c.Invalidate(ctx, InvalidateCriteria{Provider: "openai", Model: "gpt-4o-mini"})
	assert.Equal(t, 1, n)

	_, hit := c.Get(ctx, key, "/v1/chat/completions", "gpt-4o-mini")
	assert.False(t, hit)
}

func TestCache_HealthCheckRoundTrips(t *testing.T) {
	c := newTestCache(t)
	ok, detail := c.HealthCheck(context.Background())
	assert.True(t, ok, detail)
}

func TestCacheable_GETAlwaysCacheable(t *testing.T) {
	assert.True(t, Cacheable("GET", "/v1/models", false, false))
}

func TestCacheable_StreamingNeverCacheable(t *testing.T) {
	assert.False(t, Cacheable("POST", "/v1/chat/completions", true, false))
}

func TestCacheable_UserIdentifierDisqualifies(t *testing.T) {
	assert.False(t, Cacheable("POST", "/v1/chat/completions", false, true))
}

func TestCacheable_UnknownPOSTRouteNotCacheable(t *testing.T) {
	assert.False(t, Cacheable("POST", "/v1/audio/speech", false, false))
}

func TestCache_Set_StampsCreatedAtWhenUnset(t *testing.T) {
	c := newTestCache(t)
	entry := &domain.CacheEntry{StatusCode: 200, Body: []byte("a")}
	require.True(t, c.Set(context.Background(), "k1", entry, 0))
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestMemoryBackend_SweepOlderThan_RemovesOnlyStaleEntries(t *testing.T) {
	b, err := NewMemoryBackend(100)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "stale", &domain.CacheEntry{CreatedAt: time.Now().Add(-48 * time.Hour)}, time.Hour))
	require.NoError(t, b.Set(ctx, "fresh", &domain.CacheEntry{CreatedAt: time.Now()}, time.Hour))

	n := b.SweepOlderThan(24 * time.Hour)
	assert.Equal(t, 1, n)

	_, hit, _ := b.Get(ctx, "stale")
	assert.False(t, hit)
	_, hit, _ = b.Get(ctx, "fresh")
	assert.True(t, hit)
}

func TestMemoryBackend_SweepOlderThan_DoesNotWipeWhenNothingIsStale(t *testing.T) {
	b, err := NewMemoryBackend(100)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Set(ctx, string(rune('a'+i)), &domain.CacheEntry{CreatedAt: time.Now()}, time.Hour))
	}

	n := b.SweepOlderThan(24 * time.Hour)
	assert.Equal(t, 0, n)
}
