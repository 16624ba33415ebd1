package httpapi

import "net/http"

// handleHealth implements GET /health: a liveness probe with no dependency
// checks, always 200 while the process is up.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleHealthDetailed implements GET /health/detailed: cache round trip,
// active realtime session count, and rate-limit/quota subsystem presence.
func (a *App) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	cacheOK, cacheDetail := a.Cache.HealthCheck(r.Context())
	status := http.StatusOK
	if !cacheOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": map[bool]string{true: "ok", false: "degraded"}[cacheOK],
		"cache": map[string]any{
			"healthy": cacheOK,
			"detail":  cacheDetail,
			"stats":   a.Cache.Stats(),
		},
		"realtime": map[string]any{
			"active_sessions": a.RTSessions.Count(),
		},
	})
}

// handleHealthProviders implements GET /health/providers: which provider
// keys are configured, without leaking the credentials themselves.
func (a *App) handleHealthProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"openai": map[string]bool{"configured": a.Config.OpenAI.APIKey != ""},
		"gemini": map[string]bool{"configured": a.Config.Gemini.APIKey != ""},
	})
}
