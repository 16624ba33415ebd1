package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/cache"
	"github.com/clareai/llmgateway/internal/domain"
	"github.com/clareai/llmgateway/internal/provider"
)

// validate is the process-wide validator instance; it is safe for
// concurrent use once struct tags are registered, per its own docs.
var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody JSON-decodes r.Body into v, then runs struct-tag validation
// (§6 request shapes) and returns the first failing field as a validation
// error.
func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.NewValidation("bad_json", "request body is not valid JSON")
	}
	if err := validate.Struct(v); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apierr.NewValidation("invalid_field", fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag()))
		}
		return apierr.NewValidation("invalid_request", err.Error())
	}
	return nil
}

// setCacheHeaders stamps the X-Cache observability headers required on
// every cacheable route, hit or miss (§4.4).
func setCacheHeaders(w http.ResponseWriter, status string, cacheKey string, ttl time.Duration) {
	w.Header().Set("X-Cache", status)
	w.Header().Set("X-Cache-Key", cacheKey)
	w.Header().Set("X-Cache-TTL", strconv.Itoa(int(ttl.Seconds())))
}

func cacheParamsFromChat(req provider.ChatRequest) cache.Params {
	msgs := make([]cache.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, cache.Message{Role: m.Role, Content: m.Content})
	}
	core := map[string]any{}
	if req.Temperature != nil {
		core["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		core["max_tokens"] = *req.MaxTokens
	}
	if req.TopP != nil {
		core["top_p"] = *req.TopP
	}
	return cache.Params{
		Route:       "/v1/chat/completions",
		Method:      http.MethodPost,
		Model:       req.Model,
		RequestType: "chat",
		Messages:    msgs,
		Core:        core,
	}
}

// handleChatCompletions implements POST /v1/chat/completions, including
// SSE streaming and the fingerprint cache lookup/population (§6, §4.2).
func (a *App) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationIDFrom(r)
	key := keyInfoFrom(r)

	var req provider.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		apierr.WriteError(w, err, correlationID)
		return
	}

	p, ok := a.Providers.Resolve(req.Model)
	if !ok {
		apierr.WriteError(w, apierr.NewNotFound("unknown_model", fmt.Sprintf("model %q is not registered", req.Model)), correlationID)
		return
	}

	params := cacheParamsFromChat(req)
	params.Provider = p.Name()
	cacheKey := a.Cache.Key(params)
	cacheable := a.Config.Cache.Enabled && !req.Stream && cache.Cacheable(http.MethodPost, "/v1/chat/completions", req.Stream, req.User != "")

	if cacheable {
		if entry, hit := a.Cache.Get(r.Context(), cacheKey, "/v1/chat/completions", req.Model); hit {
			setCacheHeaders(w, "HIT", cacheKey, a.Config.Cache.TTL)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(entry.StatusCode)
			_, _ = w.Write(entry.Body)
			return
		}
		setCacheHeaders(w, "MISS", cacheKey, a.Config.Cache.TTL)
	}

	if req.Stream {
		a.streamChat(w, r, p, req)
		return
	}

	resp, err := p.ChatCompletion(r.Context(), req)
	if err != nil {
		apierr.WriteError(w, err, correlationID)
		return
	}
	if key != nil {
		a.Quota.RecordTokens(key.ID, resp.Usage.TotalTokens)
	}

	body, _ := json.Marshal(resp)
	if cacheable {
		a.Cache.Set(r.Context(), cacheKey, &domain.CacheEntry{
			StatusCode: http.StatusOK,
			Body:       body,
			Model:      req.Model,
			Provider:   p.Name(),
		}, a.Config.Cache.TTL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (a *App) streamChat(w http.ResponseWriter, r *http.Request, p provider.Provider, req provider.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apierr.WriteError(w, apierr.NewServer("streaming_unsupported", "response writer does not support flushing"), correlationIDFrom(r))
		return
	}

	chunks, err := p.ChatCompletionStream(r.Context(), req)
	if err != nil {
		apierr.WriteError(w, err, correlationIDFrom(r))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	for chunk := range chunks {
		payload, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		fmt.Fprintf(bw, "data: %s\n\n", payload)
		bw.Flush()
		flusher.Flush()
	}
	fmt.Fprint(bw, "data: [DONE]\n\n")
	bw.Flush()
	flusher.Flush()
}

// handleEmbeddings implements POST /v1/embeddings.
func (a *App) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationIDFrom(r)
	key := keyInfoFrom(r)

	var req provider.EmbeddingsRequest
	if err := decodeBody(r, &req); err != nil {
		apierr.WriteError(w, err, correlationID)
		return
	}

	p, ok := a.Providers.Resolve(req.Model)
	if !ok {
		apierr.WriteError(w, apierr.NewNotFound("unknown_model", fmt.Sprintf("model %q is not registered", req.Model)), correlationID)
		return
	}

	params := cache.Params{Route: "/v1/embeddings", Method: http.MethodPost, Model: req.Model, Provider: p.Name(), RequestType: "embedding", Core: map[string]any{"input": req.Input}}
	cacheKey := a.Cache.Key(params)
	cacheable := a.Config.Cache.Enabled && cache.Cacheable(http.MethodPost, "/v1/embeddings", false, req.User != "")

	if cacheable {
		if entry, hit := a.Cache.Get(r.Context(), cacheKey, "/v1/embeddings", req.Model); hit {
			setCacheHeaders(w, "HIT", cacheKey, a.Config.Cache.TTL)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(entry.StatusCode)
			_, _ = w.Write(entry.Body)
			return
		}
		setCacheHeaders(w, "MISS", cacheKey, a.Config.Cache.TTL)
	}

	resp, err := p.Embeddings(r.Context(), req)
	if err != nil {
		apierr.WriteError(w, err, correlationID)
		return
	}
	if key != nil {
		a.Quota.RecordTokens(key.ID, resp.Usage.TotalTokens)
	}

	body, _ := json.Marshal(resp)
	if cacheable {
		a.Cache.Set(r.Context(), cacheKey, &domain.CacheEntry{StatusCode: http.StatusOK, Body: body, Model: req.Model, Provider: p.Name()}, a.Config.Cache.TTL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
