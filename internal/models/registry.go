// Package models holds the static model catalog backing /v1/models*.
package models

import (
	"sort"
	"strings"
	"sync"

	"github.com/jinzhu/copier"

	"github.com/clareai/llmgateway/internal/domain"
)

// Registry is a read-heavy catalog guarded by RWMutex, the same discipline
// the gateway uses for its other mostly-static lookup tables.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]domain.ModelInfo
}

func New(seed []domain.ModelInfo) *Registry {
	r := &Registry{byID: make(map[string]domain.ModelInfo, len(seed))}
	for _, m := range seed {
		r.byID[m.ID] = m
	}
	return r
}

// Upsert adds or replaces a catalog entry, used when an adapter reports
// capabilities discovered at runtime.
func (r *Registry) Upsert(m domain.ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = m
}

// copyModel deep-copies a catalog entry so callers can't mutate the
// registry's own Capabilities slice through the value they were handed.
func copyModel(m domain.ModelInfo) domain.ModelInfo {
	var out domain.ModelInfo
	if err := copier.CopyWithOption(&out, &m, copier.Option{DeepCopy: true}); err != nil {
		return m
	}
	return out
}

// Get returns one model by id.
func (r *Registry) Get(id string) (domain.ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return domain.ModelInfo{}, false
	}
	return copyModel(m), true
}

// Filter is the query shape behind GET /v1/models.
type Filter struct {
	Provider   string
	Capability string
	Type       string
	Search     string
	Limit      int
	Offset     int
}

// List applies f and returns a stable, id-ordered slice.
func (r *Registry) List(f Filter) []domain.ModelInfo {
	r.mu.RLock()
	all := make([]domain.ModelInfo, 0, len(r.byID))
	for _, m := range r.byID {
		all = append(all, m)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	out := make([]domain.ModelInfo, 0, len(all))
	for _, m := range all {
		if f.Provider != "" && m.Provider != f.Provider {
			continue
		}
		if f.Capability != "" && !m.HasCapability(f.Capability) {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(m.ID), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, copyModel(m))
	}

	if f.Offset > 0 && f.Offset < len(out) {
		out = out[f.Offset:]
	} else if f.Offset >= len(out) {
		return nil
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// ByCapability lists every model advertising capability.
func (r *Registry) ByCapability(capability string) []domain.ModelInfo {
	return r.List(Filter{Capability: capability})
}

// DefaultCatalog is the built-in, hard-coded seed catalog main.go loads
// at startup; it is not read from config.
func DefaultCatalog() []domain.ModelInfo {
	return []domain.ModelInfo{
		{ID: "gpt-4o-mini", Provider: "openai", Type: "chat", Capabilities: []string{"chat", "vision"}, ContextWindow: 128000},
		{ID: "gpt-4o-mini-transcribe", Provider: "openai", Type: "realtime", Capabilities: []string{"realtime", "stt"}, ContextWindow: 0},
		{ID: "text-embedding-3-small", Provider: "openai", Type: "embedding", Capabilities: []string{"embeddings"}, ContextWindow: 8191},
		{ID: "tts-1", Provider: "openai", Type: "audio", Capabilities: []string{"tts"}, ContextWindow: 0},
		{ID: "gemini-1.5-flash", Provider: "gemini", Type: "chat", Capabilities: []string{"chat", "vision"}, ContextWindow: 1000000},
		{ID: "gemini-live-2.5-flash", Provider: "gemini", Type: "realtime", Capabilities: []string{"realtime", "stt"}, ContextWindow: 0},
	}
}
