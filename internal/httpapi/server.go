// Package httpapi wires the gateway's OpenAI-compatible HTTP surface and
// the realtime WebSocket upgrade endpoint onto one gorilla/mux router
// (§4.8).
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/clareai/llmgateway/internal/auth"
	"github.com/clareai/llmgateway/internal/cache"
	"github.com/clareai/llmgateway/internal/config"
	"github.com/clareai/llmgateway/internal/models"
	"github.com/clareai/llmgateway/internal/provider"
	"github.com/clareai/llmgateway/internal/ratelimit"
	"github.com/clareai/llmgateway/internal/realtime"
)

// App bundles every cross-cutting dependency a handler needs into one
// struct, handed to each route as a method receiver.
type App struct {
	Config     *config.Config
	Auth       *auth.Store
	Cache      *cache.Cache
	RateLimit  *ratelimit.Router
	Quota      *ratelimit.QuotaTracker
	Models     *models.Registry
	Providers  *provider.Registry
	RTAdapters *realtime.ProviderRegistry
	RTSessions *realtime.Registry
	upgrader   websocket.Upgrader
}

// NewApp constructs the App with a permissive origin check, matching the
// CORS policy applied to the REST surface.
func NewApp(cfg *config.Config, authStore *auth.Store, c *cache.Cache, rl *ratelimit.Router, quota *ratelimit.QuotaTracker, modelRegistry *models.Registry, providers *provider.Registry, rtAdapters *realtime.ProviderRegistry, rtSessions *realtime.Registry) *App {
	return &App{
		Config:     cfg,
		Auth:       authStore,
		Cache:      c,
		RateLimit:  rl,
		Quota:      quota,
		Models:     modelRegistry,
		Providers:  providers,
		RTAdapters: rtAdapters,
		RTSessions: rtSessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the full middleware chain and route table (§4.8): recover
// -> request-id -> log -> CORS -> auth -> rate-limit.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/chat/completions", a.handleChatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/v1/embeddings", a.handleEmbeddings).Methods(http.MethodPost)
	r.HandleFunc("/v1/audio/transcriptions", a.handleTranscriptions).Methods(http.MethodPost)
	r.HandleFunc("/v1/audio/translations", a.handleTranslations).Methods(http.MethodPost)
	r.HandleFunc("/v1/audio/speech", a.handleSpeech).Methods(http.MethodPost)
	r.HandleFunc("/v1/models", a.handleListModels).Methods(http.MethodGet)
	r.HandleFunc("/v1/models/capability/{capability}", a.handleModelsByCapability).Methods(http.MethodGet)
	r.HandleFunc("/v1/models/{id}", a.handleGetModel).Methods(http.MethodGet)
	r.HandleFunc("/v1/realtime/transcription", a.handleRealtimeUpgrade)

	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/detailed", a.handleHealthDetailed).Methods(http.MethodGet)
	r.HandleFunc("/health/providers", a.handleHealthProviders).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = a.rateLimitMiddleware(handler)
	handler = a.authMiddleware(handler)
	handler = corsMiddleware(handler)
	handler = logMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = recoverMiddleware(handler)
	return handler
}

// NewServer builds the *http.Server with config-driven read/write/idle
// timeouts.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// unauthenticatedPaths skip credential resolution entirely.
var unauthenticatedPaths = map[string]bool{
	"/health":           true,
	"/health/detailed":  true,
	"/health/providers": true,
}
