// Package auth resolves inbound credentials to a domain.KeyInfo and keeps
// the in-memory key store the gateway runs without persistent storage (§3,
// non-goals).
package auth

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/domain"
)

// Store is the process-wide, in-memory KeyInfo table. Client-supplied
// provider keys are recorded on first sight and reused thereafter.
type Store struct {
	mu   sync.RWMutex
	keys map[string]*domain.KeyInfo // keyed by raw credential
}

// NewStore builds a store seeded with the given gateway-owned keys.
func NewStore(seed []*domain.KeyInfo) *Store {
	s := &Store{keys: make(map[string]*domain.KeyInfo, len(seed))}
	for _, k := range seed {
		s.keys[k.ID] = k
	}
	return s
}

func clientProviderFromPrefix(credential string) string {
	switch {
	case strings.HasPrefix(credential, "sk-"):
		return "openai"
	case strings.HasPrefix(credential, "AIza"):
		return "gemini"
	default:
		return ""
	}
}

// Extract examines Authorization, X-API-Key, and OpenAI-API-Key in that
// order and returns the raw credential string, or "" if none is present.
func Extract(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		return strings.TrimSpace(auth)
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if k := r.Header.Get("OpenAI-API-Key"); k != "" {
		return k
	}
	return ""
}

// defaultClientQuota is the tighter quota applied to client-supplied
// provider keys, per §3/§4.4.
var defaultClientQuota = domain.QuotaDescriptor{
	RequestsPerHour: 500,
	TokensPerHour:   200_000,
	RequestsPerDay:  5000,
	TokensPerDay:    2_000_000,
}

// Resolve maps a raw credential to a KeyInfo, registering a client-kind
// KeyInfo on first sight when allowClientKeys is true.
func (s *Store) Resolve(credential string, allowClientKeys bool) (*domain.KeyInfo, error) {
	if credential == "" {
		return nil, apierr.NewAuthentication("missing_credential", "no credential supplied")
	}

	s.mu.RLock()
	existing, ok := s.keys[credential]
	s.mu.RUnlock()
	if ok {
		if !existing.Enabled {
			return nil, apierr.NewAuthentication("key_disabled", "credential is disabled")
		}
		return existing, nil
	}

	provider := clientProviderFromPrefix(credential)
	if provider == "" {
		return nil, apierr.NewAuthentication("invalid_credential", "credential is not a recognized gateway or provider key")
	}
	if !allowClientKeys {
		return nil, apierr.NewAuthorization("client_keys_disabled", "client-supplied provider keys are not accepted")
	}

	info := &domain.KeyInfo{
		ID:             credential,
		DisplayName:    "client:" + provider,
		Kind:           domain.KeyKindClient,
		Provider:       provider,
		Enabled:        true,
		Quota:          defaultClientQuota,
		RequestsPerMin: 30,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	if prior, raced := s.keys[credential]; raced {
		s.mu.Unlock()
		return prior, nil
	}
	s.keys[credential] = info
	s.mu.Unlock()
	return info, nil
}

// NewGatewayKey builds a gateway-kind KeyInfo with a generated id, used when
// seeding the store from configuration.
func NewGatewayKey(displayName string, quota domain.QuotaDescriptor, rpm int) *domain.KeyInfo {
	return &domain.KeyInfo{
		ID:             uuid.NewString(),
		DisplayName:    displayName,
		Kind:           domain.KeyKindGateway,
		Enabled:        true,
		Quota:          quota,
		RequestsPerMin: rpm,
		CreatedAt:      time.Now(),
	}
}

// ClientIP extracts the caller's address for the ip:{addr} rate-limit key,
// preferring X-Forwarded-For's first hop when present.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}
