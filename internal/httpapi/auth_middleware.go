package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/auth"
	"github.com/clareai/llmgateway/internal/ctxkeys"
	"github.com/clareai/llmgateway/internal/domain"
)

type keyInfoCtxValue struct{}

var keyInfoKey keyInfoCtxValue

func correlationIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxkeys.CorrelationID).(string)
	return id
}

func keyInfoFrom(r *http.Request) *domain.KeyInfo {
	k, _ := r.Context().Value(keyInfoKey).(*domain.KeyInfo)
	return k
}

// authMiddleware resolves the inbound credential to a KeyInfo and attaches
// it to the request context, skipping health endpoints entirely (§4.8).
func (a *App) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unauthenticatedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		credential := auth.Extract(r)
		key, err := a.Auth.Resolve(credential, a.Config.Auth.AllowClientProviderKeys)
		if err != nil {
			apierr.WriteError(w, err, correlationIDFrom(r))
			return
		}

		if err := a.Quota.CheckAndReserveRequest(key); err != nil {
			apierr.WriteError(w, err, correlationIDFrom(r))
			return
		}

		ctx := context.WithValue(r.Context(), keyInfoKey, key)
		ctx = context.WithValue(ctx, ctxkeys.KeyInfoID, key.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware applies the route-class limiter and sets the
// X-RateLimit-* response headers named in §4.3.
func (a *App) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unauthenticatedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		keyID := ""
		if key := keyInfoFrom(r); key != nil {
			keyID = key.ID
		}
		decision := a.RateLimit.Allow(r, keyID, "")

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Strategy", decision.Strategy)
		if !decision.ResetAt.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}

		if !decision.Allowed {
			apierr.WriteError(w, apierr.NewRateLimited("rate_limit_exceeded", "too many requests"), correlationIDFrom(r))
			return
		}
		next.ServeHTTP(w, r)
	})
}
