package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRoute(t *testing.T) {
	cases := map[string]RouteClass{
		"/health":               RouteHealth,
		"/health/detailed":      RouteHealth,
		"/v1/chat/completions":  RouteChat,
		"/v1/embeddings":        RouteEmbeddings,
		"/v1/audio/speech":      RouteAudio,
		"/v1/models":            RouteModels,
		"/v1/models/gpt-4o-mini": RouteModels,
		"/v1/whatever":          RouteOther,
	}
	for path, want := range cases {
		assert.Equal(t, want, ClassifyRoute(path), path)
	}
}

func TestSelectKey_PrefersAPIKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "api:k1", SelectKey(r, "k1", "u1"))
}

func TestSelectKey_FallsBackToUserThenIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:1234"
	assert.Equal(t, "user:u1", SelectKey(r, "", "u1"))
	assert.Equal(t, "ip:10.0.0.5", SelectKey(r, "", ""))
}

func TestRouter_HealthBypassesLimiting(t *testing.T) {
	rt := NewRouter()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	for i := 0; i < 1000; i++ {
		d := rt.Allow(r, "k1", "")
		assert.True(t, d.Allowed)
	}
}

func TestRouter_AllowUsesRouteSpecificLimiter(t *testing.T) {
	rt := NewRouter()
	r := httptest.NewRequest(http.MethodPost, "/v1/embeddings", nil)
	for i := 0; i < 30; i++ {
		d := rt.Allow(r, "k1", "")
		assert.True(t, d.Allowed, "request %d", i)
	}
	assert.False(t, rt.Allow(r, "k1", "").Allowed)
}

func TestRouter_DifferentKeysAreIndependent(t *testing.T) {
	rt := NewRouter()
	r := httptest.NewRequest(http.MethodPost, "/v1/embeddings", nil)
	for i := 0; i < 30; i++ {
		rt.Allow(r, "k1", "")
	}
	assert.True(t, rt.Allow(r, "k2", "").Allowed)
}
