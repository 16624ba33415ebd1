package cache

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/clareai/llmgateway/internal/domain"
)

// cacheableRoutes is the stricter cacheability policy chosen in §9's open
// question: POST is only cacheable on these route classes.
var cacheableRoutes = map[string]bool{
	"/v1/chat/completions": true,
	"/v1/embeddings":       true,
	"/v1/models":           true,
}

// Cacheable implements the §4.2 cacheability rule.
func Cacheable(method, path string, stream bool, hasUserIdentifier bool) bool {
	if method == http.MethodGet {
		return true
	}
	if method != http.MethodPost {
		return false
	}
	if !cacheableRoutes[path] {
		return false
	}
	if stream {
		return false
	}
	return !hasUserIdentifier
}

// InvalidateCriteria mirrors §4.2's invalidate({...}) argument bag.
type InvalidateCriteria struct {
	Model        string
	Provider     string
	Pattern      string
	OlderThan    time.Duration
	ExpiredOnly  bool
	ClearAll     bool
}

// ring is a bounded response-time sample ring buffer.
type ring struct {
	samples []time.Duration
	cap     int
	pos     int
}

func newRing(cap int) *ring { return &ring{cap: cap} }

func (r *ring) add(d time.Duration) {
	if len(r.samples) < r.cap {
		r.samples = append(r.samples, d)
		return
	}
	r.samples[r.pos] = d
	r.pos = (r.pos + 1) % r.cap
}

func (r *ring) avg() time.Duration {
	if len(r.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range r.samples {
		total += s
	}
	return total / time.Duration(len(r.samples))
}

// Stats is the stats() contract from §4.2.
type Stats struct {
	Hits            int64
	Misses          int64
	HitsByEndpoint  map[string]int64
	HitsByModel     map[string]int64
	ErrorsByType    map[string]int64
	AvgResponseTime time.Duration
	TopEndpoints    []string
	TopModels       []string
}

// Cache is the request cache facade (§4.2 "Request cache").
type Cache struct {
	backend  Backend
	strategy KeyStrategy
	hexLen   int
	ttl      time.Duration
	prefix   string

	mu             sync.Mutex
	hits           int64
	misses         int64
	hitsByEndpoint map[string]int64
	hitsByModel    map[string]int64
	errorsByType   map[string]int64
	responseTimes  *ring
}

// New builds a request cache in front of backend.
func New(backend Backend, strategy KeyStrategy, hexLen int, ttl time.Duration) *Cache {
	return &Cache{
		backend:        backend,
		strategy:       strategy,
		hexLen:         hexLen,
		ttl:            ttl,
		hitsByEndpoint: make(map[string]int64),
		hitsByModel:    make(map[string]int64),
		errorsByType:   make(map[string]int64),
		responseTimes:  newRing(1000),
	}
}

// Key builds the fingerprint for params under this cache's configured
// strategy.
func (c *Cache) Key(params Params) string {
	return Fingerprint(c.strategy, params, c.hexLen)
}

func (c *Cache) recordError(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorsByType[fmt.Sprintf("%s:%T", op, err)]++
}

// Get looks up key, recording a response-time sample and endpoint/model
// telemetry. Any backend error counts as a miss and never surfaces.
func (c *Cache) Get(ctx context.Context, key, endpoint, model string) (*domain.CacheEntry, bool) {
	start := time.Now()
	entry, found, err := c.backend.Get(ctx, key)
	elapsed := time.Since(start)

	c.mu.Lock()
	c.responseTimes.add(elapsed)
	c.mu.Unlock()

	if err != nil {
		c.recordError("get", err)
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	c.hitsByEndpoint[endpoint]++
	c.hitsByModel[model]++
	return entry, true
}

// Set stores entry under key with an optional ttl override. Errors are
// recorded and swallowed: the cache is best-effort.
func (c *Cache) Set(ctx context.Context, key string, entry *domain.CacheEntry, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := c.backend.Set(ctx, key, entry, ttl); err != nil {
		c.recordError("set", err)
		return false
	}
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	return c.backend.Delete(ctx, key) == nil
}

func (c *Cache) Clear(ctx context.Context) bool {
	return c.backend.Clear(ctx) == nil
}

// Invalidate builds glob patterns from criteria and delegates to the
// backend, per §4.2.
func (c *Cache) Invalidate(ctx context.Context, criteria InvalidateCriteria) int {
	if criteria.ClearAll {
		_ = c.backend.Clear(ctx)
		return -1
	}
	if criteria.ExpiredOnly || criteria.OlderThan > 0 {
		// Age-based sweeps apply to the memory backend; Redis expires its
		// own keys via SETEX, so other backends report 0.
		mem, ok := c.backend.(*MemoryBackend)
		if !ok {
			return 0
		}
		if criteria.ExpiredOnly {
			return mem.SweepExpired()
		}
		return mem.SweepOlderThan(criteria.OlderThan)
	}
	pattern := criteria.Pattern
	if pattern == "" {
		switch {
		case criteria.Provider != "" && criteria.Model != "":
			pattern = fmt.Sprintf("llm_gateway:%s:%s:*", criteria.Provider, criteria.Model)
		case criteria.Provider != "":
			pattern = fmt.Sprintf("llm_gateway:%s:*", criteria.Provider)
		case criteria.Model != "":
			pattern = fmt.Sprintf("llm_gateway:*:%s:*", criteria.Model)
		default:
			pattern = "*"
		}
	}
	n, err := c.backend.InvalidateByPattern(ctx, pattern)
	if err != nil {
		c.recordError("invalidate", err)
		return 0
	}
	return n
}

// Stats snapshots the hit/miss counters, the per-endpoint/per-model/
// per-error counts, the average response time, and the top-10 traffic
// lists from §4.2. Rates are not computed here.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:            c.hits,
		Misses:          c.misses,
		HitsByEndpoint:  cloneCounts(c.hitsByEndpoint),
		HitsByModel:     cloneCounts(c.hitsByModel),
		ErrorsByType:    cloneCounts(c.errorsByType),
		AvgResponseTime: c.responseTimes.avg(),
		TopEndpoints:    topN(c.hitsByEndpoint, 10),
		TopModels:       topN(c.hitsByModel, 10),
	}
}

func cloneCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func topN(m map[string]int64, n int) []string {
	type kv struct {
		k string
		v int64
	}
	all := make([]kv, 0, len(m))
	for k, v := range m {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v > all[j].v })
	if len(all) > n {
		all = all[:n]
	}
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = e.k
	}
	return out
}

// HealthCheck performs a write/read/delete round trip with a 1s TTL,
// failing unless the round trip agrees byte-for-byte (§4.2).
func (c *Cache) HealthCheck(ctx context.Context) (bool, string) {
	key := "__healthcheck__"
	want := &domain.CacheEntry{StatusCode: 200, Body: []byte("ok"), CreatedAt: time.Now()}
	if err := c.backend.Set(ctx, key, want, time.Second); err != nil {
		return false, err.Error()
	}
	got, found, err := c.backend.Get(ctx, key)
	_ = c.backend.Delete(ctx, key)
	if err != nil {
		return false, err.Error()
	}
	if !found {
		return false, "round trip entry not found"
	}
	if string(got.Body) != string(want.Body) {
		return false, "round trip body mismatch"
	}
	return true, "ok"
}

// safetyFloorAge is the maximum age a memory-backend entry can reach
// regardless of its configured TTL (§4.2 hourly safety-floor sweep).
const safetyFloorAge = 24 * time.Hour

// StartSweeper runs the periodic expiry sweep (every 5 minutes) and the
// hourly safety-floor sweep named in §4.2, until stop is closed.
func (c *Cache) StartSweeper(stop <-chan struct{}) {
	memBackend, isMemory := c.backend.(*MemoryBackend)
	sweep := time.NewTicker(5 * time.Minute)
	safetyFloor := time.NewTicker(time.Hour)
	go func() {
		defer sweep.Stop()
		defer safetyFloor.Stop()
		for {
			select {
			case <-stop:
				return
			case <-sweep.C:
				// Backends with autonomous TTL expiry (Redis SETEX) need no
				// sweep; the in-process backend does since golang-lru does
				// not expire entries on its own.
				if isMemory {
					memBackend.SweepExpired()
				}
			case <-safetyFloor.C:
				if isMemory {
					memBackend.SweepOlderThan(safetyFloorAge)
				}
			}
		}
	}()
}
