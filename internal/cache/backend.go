package cache

import (
	"context"
	"time"

	"github.com/clareai/llmgateway/internal/domain"
)

// Backend is the pluggable store behind the request cache (§4.2 interface B).
type Backend interface {
	Get(ctx context.Context, key string) (*domain.CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry *domain.CacheEntry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	// InvalidateByPattern deletes every key matching a glob pattern and
	// returns the count removed.
	InvalidateByPattern(ctx context.Context, pattern string) (int, error)
}
