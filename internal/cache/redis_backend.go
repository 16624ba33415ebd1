package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clareai/llmgateway/internal/domain"
)

// RedisBackend is the remote KV backend (§4.2 "remote KV"). Keys are
// namespaced under prefix so the cache can share a Redis instance with
// other gateway subsystems.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to addr (a redis:// URL or host:port) and
// namespaces every key under prefix.
func NewRedisBackend(addr, prefix string) (*RedisBackend, error) {
	opts, err := parseRedisAddr(addr)
	if err != nil {
		return nil, err
	}
	return &RedisBackend{client: redis.NewClient(opts), prefix: prefix}, nil
}

func parseRedisAddr(addr string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(addr); err == nil {
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

func (b *RedisBackend) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", b.prefix, key)
}

type redisPayload struct {
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"created_at"`
}

func (b *RedisBackend) Get(ctx context.Context, key string) (*domain.CacheEntry, bool, error) {
	raw, err := b.client.Get(ctx, b.fullKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p redisPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, err
	}
	return &domain.CacheEntry{
		StatusCode: p.StatusCode,
		Body:       p.Body,
		Model:      p.Model,
		Provider:   p.Provider,
		CreatedAt:  p.CreatedAt,
	}, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, entry *domain.CacheEntry, ttl time.Duration) error {
	payload := redisPayload{
		StatusCode: entry.StatusCode,
		Body:       entry.Body,
		Model:      entry.Model,
		Provider:   entry.Provider,
		CreatedAt:  entry.CreatedAt,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.fullKey(key), raw, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.fullKey(key)).Err()
}

func (b *RedisBackend) Clear(ctx context.Context) error {
	_, err := b.InvalidateByPattern(ctx, "*")
	return err
}

// InvalidateByPattern scans (never KEYS, which blocks the server) for keys
// matching the glob pattern under this backend's prefix and deletes them
// in a single pipeline.
func (b *RedisBackend) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	full := b.fullKey(pattern)
	var cursor uint64
	var matched []string
	for {
		keys, next, err := b.client.Scan(ctx, cursor, full, 200).Result()
		if err != nil {
			return 0, err
		}
		matched = append(matched, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}
	pipe := b.client.Pipeline()
	for _, k := range matched {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(matched), nil
}

// Ping performs a round trip used by the cache's healthCheck.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
