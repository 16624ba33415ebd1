package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clareai/llmgateway/internal/domain"
)

func TestExtract_PrefersAuthorizationBearer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer sk-abc123")
	assert.Equal(t, "sk-abc123", Extract(r))
}

func TestExtract_FallsBackToXAPIKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-API-Key", "sk-xyz")
	assert.Equal(t, "sk-xyz", Extract(r))
}

func TestExtract_NoCredentialReturnsEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", Extract(r))
}

func TestStore_Resolve_SeededGatewayKey(t *testing.T) {
	gw := NewGatewayKey("primary", domain.QuotaDescriptor{RequestsPerHour: 1000}, 60)
	store := NewStore([]*domain.KeyInfo{gw})

	got, err := store.Resolve(gw.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyKindGateway, got.Kind)
}

func TestStore_Resolve_RegistersClientKeyOnFirstSight(t *testing.T) {
	store := NewStore(nil)

	got, err := store.Resolve("sk-newclientkey", true)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyKindClient, got.Kind)
	assert.Equal(t, "openai", got.Provider)

	again, err := store.Resolve("sk-newclientkey", true)
	require.NoError(t, err)
	assert.Same(t, got, again)
}

func TestStore_Resolve_RejectsClientKeysWhenDisabled(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Resolve("sk-anything", false)
	assert.Error(t, err)
}

func TestStore_Resolve_RejectsUnrecognizedCredential(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Resolve("not-a-known-prefix", true)
	assert.Error(t, err)
}

func TestStore_Resolve_EmptyCredentialFails(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Resolve("", true)
	assert.Error(t, err)
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(r))
}
