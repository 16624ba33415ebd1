package realtime

import (
	"sync"

	"github.com/clareai/llmgateway/internal/apierr"
)

// Registry is the process-wide session table (§2 component J), enforcing
// global and per-key concurrency caps. Only the reaper and accept/terminate
// paths mutate it, per §5.
type Registry struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	perKeyCount    map[string]int
	maxGlobal      int
	maxPerKey      int
}

func NewRegistry(maxGlobal, maxPerKey int) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		perKeyCount: make(map[string]int),
		maxGlobal:   maxGlobal,
		maxPerKey:   maxPerKey,
	}
}

// Admit checks the concurrency caps and, if they pass, registers session.
func (r *Registry) Admit(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxGlobal {
		return apierr.NewServer("too_many_sessions", "global realtime concurrency cap reached")
	}
	if r.perKeyCount[s.KeyID] >= r.maxPerKey {
		return apierr.NewServer("too_many_sessions", "per-key realtime concurrency cap reached")
	}

	r.sessions[s.ID] = s
	r.perKeyCount[s.KeyID]++
	return nil
}

// Remove drops a session from the table; safe to call more than once.
func (r *Registry) Remove(sessionID, keyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	delete(r.sessions, sessionID)
	r.perKeyCount[keyID]--
	if r.perKeyCount[keyID] <= 0 {
		delete(r.perKeyCount, keyID)
	}
}

// Count returns the current global session count.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// TerminateAll closes every session, used at process shutdown (§9
// teardown: "cancels all sessions").
func (r *Registry) TerminateAll(reason error) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Terminate(reason)
	}
}
