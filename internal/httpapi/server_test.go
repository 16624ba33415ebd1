package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clareai/llmgateway/internal/auth"
	"github.com/clareai/llmgateway/internal/cache"
	"github.com/clareai/llmgateway/internal/config"
	"github.com/clareai/llmgateway/internal/models"
	"github.com/clareai/llmgateway/internal/provider"
	"github.com/clareai/llmgateway/internal/ratelimit"
	"github.com/clareai/llmgateway/internal/realtime"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return newTestAppWithRegistry(t, provider.NewRegistry())
}

func newTestAppWithRegistry(t *testing.T, reg *provider.Registry) *App {
	t.Helper()
	backend, err := cache.NewMemoryBackend(100)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second},
		Auth:   config.AuthConfig{AllowClientProviderKeys: true},
		Cache:  config.CacheConfig{Enabled: true, Backend: "memory", TTL: time.Hour, KeyStrategy: "default"},
	}

	return NewApp(
		cfg,
		auth.NewStore(nil),
		cache.New(backend, cache.StrategyDefault, 0, time.Hour),
		ratelimit.NewRouter(),
		ratelimit.NewQuotaTracker(),
		models.New(models.DefaultCatalog()),
		reg,
		realtime.NewProviderRegistry(),
		realtime.NewRegistry(10, 2),
	)
}

// fakeProvider is a minimal provider.Provider used to exercise the cache
// wiring without a real upstream call; CallCount tracks ChatCompletion
// invocations so tests can assert a cache hit skipped the provider.
type fakeProvider struct {
	CallCount int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ChatCompletion(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	f.CallCount++
	return &provider.ChatResponse{ID: "resp-1", Object: "chat.completion", Model: req.Model}, nil
}

func (f *fakeProvider) ChatCompletionStream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatChunk, error) {
	ch := make(chan provider.ChatChunk)
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Embeddings(ctx context.Context, req provider.EmbeddingsRequest) (*provider.EmbeddingsResponse, error) {
	return &provider.EmbeddingsResponse{Object: "list", Model: req.Model}, nil
}

func (f *fakeProvider) Transcribe(ctx context.Context, req provider.TranscriptionRequest, translate bool) (*provider.TranscriptionResponse, error) {
	return &provider.TranscriptionResponse{Text: "ok"}, nil
}

func (f *fakeProvider) Speech(ctx context.Context, req provider.SpeechRequest) ([]byte, string, error) {
	return []byte("audio"), "audio/mpeg", nil
}

func TestHealth_AlwaysOK(t *testing.T) {
	app := newTestApp(t)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthDetailed_ReportsCacheStats(t *testing.T) {
	app := newTestApp(t)
	r := httptest.NewRequest(http.MethodGet, "/health/detailed", nil)
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListModels_ReturnsSeededCatalog(t *testing.T) {
	app := newTestApp(t)
	r := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	r.Header.Set("Authorization", "Bearer sk-test-client-key")
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data)
}

func TestChatCompletions_UnknownModelIs404(t *testing.T) {
	app := newTestApp(t)
	body := `{"model":"does-not-exist","messages":[{"role":"user","content":"hi"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer sk-test-client-key")
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatCompletions_MissingFieldsIsValidationError(t *testing.T) {
	app := newTestApp(t)
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer sk-test-client-key")
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListModels_SetsCacheHeadersAndHitsOnSecondCall(t *testing.T) {
	app := newTestApp(t)

	r1 := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	r1.Header.Set("Authorization", "Bearer sk-test-client-key")
	w1 := httptest.NewRecorder()
	app.Router().ServeHTTP(w1, r1)
	assert.Equal(t, "MISS", w1.Header().Get("X-Cache"))
	assert.NotEmpty(t, w1.Header().Get("X-Cache-Key"))
	assert.Equal(t, "3600", w1.Header().Get("X-Cache-TTL"))

	r2 := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	r2.Header.Set("Authorization", "Bearer sk-test-client-key")
	w2 := httptest.NewRecorder()
	app.Router().ServeHTTP(w2, r2)
	assert.Equal(t, "HIT", w2.Header().Get("X-Cache"))
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestChatCompletions_CacheHitSkipsProviderAndSetsHeaders(t *testing.T) {
	reg := provider.NewRegistry()
	fp := &fakeProvider{}
	reg.Register(fp, "fake-model")
	app := newTestAppWithRegistry(t, reg)

	body := `{"model":"fake-model","messages":[{"role":"user","content":"hi"}]}`

	r1 := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r1.Header.Set("Content-Type", "application/json")
	r1.Header.Set("Authorization", "Bearer sk-test-client-key")
	w1 := httptest.NewRecorder()
	app.Router().ServeHTTP(w1, r1)
	require.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "MISS", w1.Header().Get("X-Cache"))
	assert.NotEmpty(t, w1.Header().Get("X-Cache-Key"))
	assert.Equal(t, "3600", w1.Header().Get("X-Cache-TTL"))
	assert.Equal(t, 1, fp.CallCount)

	r2 := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r2.Header.Set("Content-Type", "application/json")
	r2.Header.Set("Authorization", "Bearer sk-test-client-key")
	w2 := httptest.NewRecorder()
	app.Router().ServeHTTP(w2, r2)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "HIT", w2.Header().Get("X-Cache"))
	assert.Equal(t, w1.Header().Get("X-Cache-Key"), w2.Header().Get("X-Cache-Key"))
	assert.Equal(t, 1, fp.CallCount, "cache hit must not invoke the provider again")
}

func TestCORSMiddleware_HandlesPreflight(t *testing.T) {
	app := newTestApp(t)
	r := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
