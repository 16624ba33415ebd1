package cache

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/clareai/llmgateway/internal/domain"
)

type memoryEntry struct {
	entry     *domain.CacheEntry
	expiresAt time.Time
}

// MemoryBackend is the in-process LRU+TTL backend (§4.2 "in-process").
// Eviction is handled by golang-lru; per-key expiry is checked on read.
type MemoryBackend struct {
	mu    sync.Mutex
	cache *lru.Cache[string, memoryEntry]
}

// NewMemoryBackend builds an in-process backend with room for maxSize
// entries.
func NewMemoryBackend(maxSize int) (*MemoryBackend, error) {
	c, err := lru.New[string, memoryEntry](maxSize)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{cache: c}, nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) (*domain.CacheEntry, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(v.expiresAt) {
		b.cache.Remove(key)
		return nil, false, nil
	}
	return v.entry, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, entry *domain.CacheEntry, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Add(key, memoryEntry{entry: entry, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Remove(key)
	return nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Purge()
	return nil
}

func (b *MemoryBackend) InvalidateByPattern(_ context.Context, pattern string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, key := range b.cache.Keys() {
		if ok, _ := filepath.Match(pattern, key); ok {
			b.cache.Remove(key)
			n++
		}
	}
	return n, nil
}

// SweepExpired removes every entry whose TTL has elapsed, used by the
// periodic sweep (§4.2) since golang-lru does not expire autonomously.
func (b *MemoryBackend) SweepExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	n := 0
	for _, key := range b.cache.Keys() {
		v, ok := b.cache.Peek(key)
		if ok && now.After(v.expiresAt) {
			b.cache.Remove(key)
			n++
		}
	}
	return n
}

// SweepOlderThan removes entries whose CreatedAt predates the cutoff, the
// hourly safety floor (§4.2) that catches entries a misconfigured long TTL
// would otherwise let outlive a sane lifetime. It only inspects each
// entry's recorded age, never resetting or touching ones that pass.
func (b *MemoryBackend) SweepOlderThan(maxAge time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for _, key := range b.cache.Keys() {
		v, ok := b.cache.Peek(key)
		if ok && v.entry.CreatedAt.Before(cutoff) {
			b.cache.Remove(key)
			n++
		}
	}
	return n
}
