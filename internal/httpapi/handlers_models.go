package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/cache"
	"github.com/clareai/llmgateway/internal/domain"
	"github.com/clareai/llmgateway/internal/models"
)

// cachedList serves v from the cache under cacheKey/route if present,
// otherwise computes v via compute, caches it, and writes it — the GET
// side of §4.2's unconditional-cacheability rule, shared by every
// /v1/models* read endpoint.
func (a *App) cachedList(w http.ResponseWriter, r *http.Request, route, cacheKey string, compute func() any) {
	cacheable := a.Config.Cache.Enabled
	if cacheable {
		if entry, hit := a.Cache.Get(r.Context(), cacheKey, route, ""); hit {
			setCacheHeaders(w, "HIT", cacheKey, a.Config.Cache.TTL)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(entry.StatusCode)
			_, _ = w.Write(entry.Body)
			return
		}
		setCacheHeaders(w, "MISS", cacheKey, a.Config.Cache.TTL)
	}

	v := compute()
	body, _ := json.Marshal(v)
	if cacheable {
		a.Cache.Set(r.Context(), cacheKey, &domain.CacheEntry{
			StatusCode: http.StatusOK,
			Body:       body,
		}, a.Config.Cache.TTL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleListModels implements GET /v1/models, with provider/capability/
// type/search filtering and offset/limit pagination (§6).
func (a *App) handleListModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.Filter{
		Provider:   q.Get("provider"),
		Capability: q.Get("capability"),
		Type:       q.Get("type"),
		Search:     q.Get("search"),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = v
	}

	cacheKey := a.Cache.Key(cache.Params{
		Route: "/v1/models", Method: http.MethodGet, RequestType: "models",
		Core: map[string]any{"provider": f.Provider, "capability": f.Capability, "type": f.Type, "search": f.Search, "limit": f.Limit, "offset": f.Offset},
	})
	a.cachedList(w, r, "/v1/models", cacheKey, func() any {
		return map[string]any{"object": "list", "data": a.Models.List(f)}
	})
}

// handleGetModel implements GET /v1/models/{id}.
func (a *App) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := a.Models.Get(id)
	if !ok {
		apierr.WriteError(w, apierr.NewNotFound("unknown_model", fmt.Sprintf("model %q is not registered", id)), correlationIDFrom(r))
		return
	}

	cacheKey := a.Cache.Key(cache.Params{Route: "/v1/models/{id}", Method: http.MethodGet, Model: id, RequestType: "models"})
	a.cachedList(w, r, "/v1/models/{id}", cacheKey, func() any { return m })
}

// handleModelsByCapability implements GET /v1/models/capability/{capability}.
func (a *App) handleModelsByCapability(w http.ResponseWriter, r *http.Request) {
	capability := mux.Vars(r)["capability"]

	cacheKey := a.Cache.Key(cache.Params{Route: "/v1/models/capability/{capability}", Method: http.MethodGet, RequestType: "models", Core: map[string]any{"capability": capability}})
	a.cachedList(w, r, "/v1/models/capability/{capability}", cacheKey, func() any {
		return map[string]any{"object": "list", "data": a.Models.ByCapability(capability)}
	})
}
