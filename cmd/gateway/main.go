// Command gateway runs the provider-agnostic LLM gateway: the
// OpenAI-compatible HTTP surface, the realtime transcription WebSocket
// surface, and the background housekeeping goroutines that back them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clareai/llmgateway/internal/auth"
	"github.com/clareai/llmgateway/internal/cache"
	"github.com/clareai/llmgateway/internal/config"
	"github.com/clareai/llmgateway/internal/domain"
	"github.com/clareai/llmgateway/internal/httpapi"
	"github.com/clareai/llmgateway/internal/log"
	"github.com/clareai/llmgateway/internal/models"
	"github.com/clareai/llmgateway/internal/provider"
	"github.com/clareai/llmgateway/internal/ratelimit"
	"github.com/clareai/llmgateway/internal/realtime"
)

// buildCacheBackend selects the in-process or remote cache backend named
// by cfg.Cache.Backend (§4.2, §6 config surface).
func buildCacheBackend(cfg *config.Config) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case "remote":
		return cache.NewRedisBackend(cfg.Cache.RedisURL, "llm_gateway")
	default:
		return cache.NewMemoryBackend(cfg.Cache.MaxSize)
	}
}

// buildAuthStore seeds the key store from auth.keys[] (§6, §3 "created at
// configuration load"), logging each generated credential once since it
// never appears in config or anywhere else afterward.
func buildAuthStore(cfg *config.Config) *auth.Store {
	seed := make([]*domain.KeyInfo, 0, len(cfg.Auth.Keys))
	for _, k := range cfg.Auth.Keys {
		key := auth.NewGatewayKey(k.DisplayName, domain.QuotaDescriptor{
			RequestsPerHour: k.RequestsPerHour,
			RequestsPerDay:  k.RequestsPerDay,
			TokensPerHour:   k.TokensPerHour,
			TokensPerDay:    k.TokensPerDay,
		}, k.RPMPerMinute)
		seed = append(seed, key)
		log.Info(context.Background(), "provisioned gateway key",
			zap.String("display_name", key.DisplayName), zap.String("key_id", key.ID))
	}
	return auth.NewStore(seed)
}

// buildProviderRegistry wires every configured provider's HTTP client
// against the model ids the catalog says it serves.
func buildProviderRegistry(cfg *config.Config, catalog []domain.ModelInfo) *provider.Registry {
	reg := provider.NewRegistry()

	if cfg.OpenAI.APIKey != "" {
		openai := provider.NewOpenAIProvider(cfg.OpenAI.APIKey, "")
		for _, m := range catalog {
			if m.Provider == "openai" && m.Type != "realtime" {
				reg.Register(openai, m.ID)
			}
		}
	}
	if cfg.Gemini.APIKey != "" {
		gemini := provider.NewGeminiProvider(cfg.Gemini.APIKey, "")
		for _, m := range catalog {
			if m.Provider == "gemini" && m.Type != "realtime" {
				reg.Register(gemini, m.ID)
			}
		}
	}
	return reg
}

// buildRealtimeAdapters wires the realtime provider factories against the
// realtime-capable model ids in the catalog.
func buildRealtimeAdapters(cfg *config.Config, catalog []domain.ModelInfo) *realtime.ProviderRegistry {
	reg := realtime.NewProviderRegistry()

	var openaiModels, geminiModels []string
	for _, m := range catalog {
		if m.Type != "realtime" {
			continue
		}
		switch m.Provider {
		case "openai":
			openaiModels = append(openaiModels, m.ID)
		case "gemini":
			geminiModels = append(geminiModels, m.ID)
		}
	}
	if cfg.OpenAI.APIKey != "" && len(openaiModels) > 0 {
		reg.Register("openai", realtime.NewOpenAIAdapterFactory(cfg.OpenAI.APIKey), openaiModels...)
	}
	if cfg.Gemini.APIKey != "" && len(geminiModels) > 0 {
		reg.Register("gemini", realtime.NewGeminiAdapterFactory(cfg.Gemini.APIKey), geminiModels...)
	}
	return reg
}

func run() error {
	configPath := config.EnvFromOSOrDefault("GATEWAY_CONFIG_FILE", "")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := log.Init(cfg.Env); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize structured logger: %v\n", err)
	}
	defer log.Sync()

	log.Info(context.Background(), "starting llm gateway", zap.String("env", cfg.Env))

	authStore := buildAuthStore(cfg)

	backend, err := buildCacheBackend(cfg)
	if err != nil {
		return fmt.Errorf("build cache backend: %w", err)
	}
	requestCache := cache.New(backend, cache.KeyStrategy(cfg.Cache.KeyStrategy), 32, cfg.Cache.TTL)

	rlRouter := ratelimit.NewRouter()
	quota := ratelimit.NewQuotaTracker()

	catalog := models.DefaultCatalog()
	modelRegistry := models.New(catalog)

	providers := buildProviderRegistry(cfg, catalog)
	rtAdapters := buildRealtimeAdapters(cfg, catalog)
	rtSessions := realtime.NewRegistry(cfg.Realtime.MaxConcurrentGlobal, cfg.Realtime.MaxConcurrentPerKey)

	app := httpapi.NewApp(cfg, authStore, requestCache, rlRouter, quota, modelRegistry, providers, rtAdapters, rtSessions)
	server := httpapi.NewServer(cfg, app.Router())

	stop := make(chan struct{})
	if cfg.Cache.Enabled {
		requestCache.StartSweeper(stop)
	}
	if cfg.RateLimit.Enabled {
		rlRouter.StartReaper(stop)
	}
	startQuotaReaper(quota, stop)

	errCh := make(chan error, 1)
	go func() {
		log.Info(context.Background(), "listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		log.Info(context.Background(), "shutdown signal received", zap.String("signal", sig.String()))
	}

	close(stop)

	rtSessions.TerminateAll(fmt.Errorf("gateway shutting down"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn(context.Background(), "graceful shutdown did not complete in time", zap.Error(err))
	}

	if closer, ok := backend.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	log.Info(context.Background(), "gateway stopped")
	return nil
}

// startQuotaReaper runs the 7-day window reap on an hourly cadence,
// matching the periodic-housekeeping pattern used by the cache sweeper and
// the rate-limit bucket reaper.
func startQuotaReaper(q *ratelimit.QuotaTracker, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				q.Reap()
			}
		}
	}()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
