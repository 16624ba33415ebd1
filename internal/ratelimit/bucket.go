// Package ratelimit implements the three limiter primitives named in the
// spec's rate-limit & quota layer (§4.3): token bucket, sliding window, and
// fixed window, plus the route-to-strategy table and a quota tracker.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the result of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Strategy  string
}

// Limiter is the capability interface every strategy implements.
type Limiter interface {
	// Allow admits or rejects one request for key, returning the decision
	// used to populate X-RateLimit-* headers.
	Allow(key string) Decision
	// Strategy names this limiter for the X-RateLimit-Strategy header.
	Strategy() string
}

// TokenBucketLimiter wraps golang.org/x/time/rate per key. Capacity maps to
// burst; "refill N per period" maps to rate.Limit(N)/period.Seconds().
type TokenBucketLimiter struct {
	capacity int
	limit    rate.Limit

	mu      sync.Mutex
	buckets map[string]*tokenBucketEntry
}

type tokenBucketEntry struct {
	limiter    *rate.Limiter
	lastTouch  time.Time
}

// NewTokenBucketLimiter builds a limiter admitting capacity requests as a
// burst, refilling at refillPerPeriod tokens every period.
func NewTokenBucketLimiter(capacity int, refillPerPeriod int, period time.Duration) *TokenBucketLimiter {
	perSecond := float64(refillPerPeriod) / period.Seconds()
	return &TokenBucketLimiter{
		capacity: capacity,
		limit:    rate.Limit(perSecond),
		buckets:  make(map[string]*tokenBucketEntry),
	}
}

func (l *TokenBucketLimiter) Strategy() string { return "token-bucket" }

func (l *TokenBucketLimiter) entry(key string) *tokenBucketEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.buckets[key]
	if !ok {
		e = &tokenBucketEntry{limiter: rate.NewLimiter(l.limit, l.capacity)}
		l.buckets[key] = e
	}
	e.lastTouch = time.Now()
	return e
}

// Allow admits one request, consuming a single token.
func (l *TokenBucketLimiter) Allow(key string) Decision {
	e := l.entry(key)
	now := time.Now()
	allowed := e.limiter.AllowN(now, 1)
	remaining := int(e.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	if remaining > l.capacity {
		remaining = l.capacity
	}
	var resetAt time.Time
	if !allowed {
		reservation := e.limiter.ReserveN(now, 1)
		resetAt = now.Add(reservation.Delay())
		reservation.Cancel()
	} else {
		resetAt = now
	}
	return Decision{
		Allowed:   allowed,
		Limit:     l.capacity,
		Remaining: remaining,
		ResetAt:   resetAt,
		Strategy:  l.Strategy(),
	}
}

// Reap drops buckets untouched for longer than maxIdle, per §4.3's hourly
// cleanup requirement.
func (l *TokenBucketLimiter) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.buckets {
		if e.lastTouch.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}
