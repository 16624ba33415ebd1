package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/clareai/llmgateway/internal/auth"
)

// RouteClass names the buckets the defaults table is keyed by.
type RouteClass string

const (
	RouteChat       RouteClass = "chat_completions"
	RouteEmbeddings RouteClass = "embeddings"
	RouteAudio      RouteClass = "audio"
	RouteModels     RouteClass = "models"
	RouteHealth     RouteClass = "health"
	RouteOther      RouteClass = "other"
)

// ClassifyRoute maps a request path to a RouteClass per §4.3's default table.
func ClassifyRoute(path string) RouteClass {
	switch {
	case strings.HasPrefix(path, "/health"):
		return RouteHealth
	case strings.HasPrefix(path, "/v1/chat/completions"):
		return RouteChat
	case strings.HasPrefix(path, "/v1/embeddings"):
		return RouteEmbeddings
	case strings.HasPrefix(path, "/v1/audio/"):
		return RouteAudio
	case strings.HasPrefix(path, "/v1/models"):
		return RouteModels
	default:
		return RouteOther
	}
}

// Router owns one Limiter per RouteClass, built from the §4.3 default
// tunables, and performs the api/user/ip key-selection rule.
type Router struct {
	limiters map[RouteClass]Limiter
}

// NewRouter builds the default route-to-strategy mapping from §4.3.
func NewRouter() *Router {
	return &Router{limiters: map[RouteClass]Limiter{
		RouteChat:       NewTokenBucketLimiter(120, 60, time.Minute),
		RouteEmbeddings: NewFixedWindowLimiter(time.Minute, 30),
		RouteAudio:      NewSlidingWindowLimiter(5*time.Minute, 20),
		RouteModels:     NewFixedWindowLimiter(time.Minute, 200),
		RouteHealth:     NewFixedWindowLimiter(time.Minute, 300),
		RouteOther:      NewFixedWindowLimiter(15*time.Minute, 100),
	}}
}

// SelectKey implements "api:{key}" / "user:{id}" / "ip:{addr}" selection.
func SelectKey(r *http.Request, keyID, userID string) string {
	if keyID != "" {
		return "api:" + keyID
	}
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + auth.ClientIP(r)
}

// Allow admits the request for its route class. Health paths always pass.
func (rt *Router) Allow(r *http.Request, keyID, userID string) Decision {
	class := ClassifyRoute(r.URL.Path)
	if class == RouteHealth {
		return Decision{Allowed: true, Strategy: "bypass"}
	}
	limiter := rt.limiters[class]
	return limiter.Allow(SelectKey(r, keyID, userID))
}

// ReapAll runs the hourly bucket cleanup across every strategy that
// supports it (§4.3 concurrency/safety).
func (rt *Router) ReapAll(maxIdle time.Duration) int {
	total := 0
	for _, l := range rt.limiters {
		switch v := l.(type) {
		case *TokenBucketLimiter:
			total += v.Reap(maxIdle)
		case *FixedWindowLimiter:
			total += v.Reap(maxIdle)
		case *SlidingWindowLimiter:
			total += v.Reap(maxIdle)
		}
	}
	return total
}

// StartReaper runs ReapAll on a ticker until stop is closed, matching the
// hourly cleanup named in §4.3 and the periodic-housekeeping-task model
// of §5/§9.
func (rt *Router) StartReaper(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				rt.ReapAll(24 * time.Hour)
			}
		}
	}()
}
