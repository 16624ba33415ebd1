package httpapi

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clareai/llmgateway/internal/auth"
	"github.com/clareai/llmgateway/internal/cache"
	"github.com/clareai/llmgateway/internal/config"
	"github.com/clareai/llmgateway/internal/domain"
	"github.com/clareai/llmgateway/internal/models"
	"github.com/clareai/llmgateway/internal/provider"
	"github.com/clareai/llmgateway/internal/ratelimit"
	"github.com/clareai/llmgateway/internal/realtime"
)

// noopRealtimeAdapter satisfies realtime.Adapter without dialing anywhere;
// the close-code tests never get far enough to use it.
type noopRealtimeAdapter struct{}

func (noopRealtimeAdapter) Connect(ctx context.Context, cfg realtime.SessionConfig) error { return nil }
func (noopRealtimeAdapter) AppendAudioBase64(frame string) bool                           { return true }
func (noopRealtimeAdapter) CommitAudio() error                                            { return nil }
func (noopRealtimeAdapter) ClearAudio() error                                             { return nil }
func (noopRealtimeAdapter) Events() <-chan realtime.ProviderEvent                         { return nil }
func (noopRealtimeAdapter) Close() error                                                  { return nil }

func newRealtimeTestApp(t *testing.T, seed []*domain.KeyInfo) *App {
	t.Helper()
	backend, err := cache.NewMemoryBackend(100)
	require.NoError(t, err)

	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second},
		Auth:     config.AuthConfig{AllowClientProviderKeys: true},
		Cache:    config.CacheConfig{Enabled: true, Backend: "memory", TTL: time.Hour, KeyStrategy: "default"},
		Realtime: config.RealtimeConfig{Enabled: true, MaxBufferMs: 5000, MaxIdleSeconds: 60},
	}

	rtAdapters := realtime.NewProviderRegistry()
	rtAdapters.Register("fake", func() realtime.Adapter { return noopRealtimeAdapter{} }, "fake-realtime-model")

	return NewApp(
		cfg,
		auth.NewStore(seed),
		cache.New(backend, cache.StrategyDefault, 0, time.Hour),
		ratelimit.NewRouter(),
		ratelimit.NewQuotaTracker(),
		models.New(models.DefaultCatalog()),
		provider.NewRegistry(),
		rtAdapters,
		realtime.NewRegistry(10, 2),
	)
}

func dialRealtime(t *testing.T, srv *httptest.Server, path, credential string) (*websocket.Conn, *struct{ StatusCode int }) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	header := map[string][]string{}
	if credential != "" {
		header["Authorization"] = []string{"Bearer " + credential}
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		require.NotNil(t, resp, "dial failed with no response: %v", err)
		return nil, &struct{ StatusCode int }{resp.StatusCode}
	}
	return conn, nil
}

// readUntilClose drains text frames until the connection closes, returning
// the close code the server sent.
func readUntilClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected a close error, got %v", err)
		return closeErr.Code
	}
}

func TestRealtimeUpgrade_UnknownModelClosesWithPolicyViolation(t *testing.T) {
	key := &domain.KeyInfo{ID: "gw-test-key", Kind: domain.KeyKindGateway, Enabled: true, Quota: domain.QuotaDescriptor{RequestsPerHour: 100, RequestsPerDay: 1000}, RequestsPerMin: 60}
	app := newRealtimeTestApp(t, []*domain.KeyInfo{key})
	srv := httptest.NewServer(app.Router())
	defer srv.Close()

	conn, _ := dialRealtime(t, srv, "/v1/realtime/transcription?model=does-not-exist", key.ID)
	require.NotNil(t, conn)
	defer conn.Close()

	assert.Equal(t, websocket.ClosePolicyViolation, readUntilClose(t, conn))
}

func TestRealtimeUpgrade_QuotaExceededClosesWith4008(t *testing.T) {
	key := &domain.KeyInfo{ID: "gw-quota-key", Kind: domain.KeyKindGateway, Enabled: true, Quota: domain.QuotaDescriptor{RequestsPerHour: 1, RequestsPerDay: 1000}, RequestsPerMin: 60}
	app := newRealtimeTestApp(t, []*domain.KeyInfo{key})
	srv := httptest.NewServer(app.Router())
	defer srv.Close()

	// The auth middleware's own CheckAndReserveRequest call consumes the
	// key's only hourly request before the handler's realtime-specific
	// quota check runs, so a single connection attempt already exhausts it.
	conn, _ := dialRealtime(t, srv, "/v1/realtime/transcription?model=fake-realtime-model", key.ID)
	require.NotNil(t, conn)
	defer conn.Close()

	assert.Equal(t, closeQuotaExceeded, readUntilClose(t, conn))
}

func TestRealtimeUpgrade_InvalidCredentialRejectedBeforeUpgrade(t *testing.T) {
	app := newRealtimeTestApp(t, nil)
	srv := httptest.NewServer(app.Router())
	defer srv.Close()

	_, resp := dialRealtime(t, srv, "/v1/realtime/transcription?model=fake-realtime-model", "not-a-recognized-credential")
	require.NotNil(t, resp, "expected the handshake itself to be rejected")
	assert.Equal(t, 401, resp.StatusCode)
}
