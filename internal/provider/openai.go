package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/clareai/llmgateway/internal/apierr"
)

// OpenAIProvider calls the OpenAI HTTP API for every non-realtime operation
// named in §6. Realtime transcription is served by realtime.OpenAIAdapter
// instead; this type never touches a WebSocket.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, apierr.NewServer("request_build_failed", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, apierr.NewUpstream("upstream_unreachable", err.Error())
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, apierr.NewUpstream("upstream_error", fmt.Sprintf("openai returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apierr.NewValidation("upstream_rejected", string(payload))
	}
	return resp, nil
}

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, apierr.NewValidation("bad_request", err.Error())
	}
	resp, err := p.do(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(buf), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.NewUpstream("bad_upstream_payload", err.Error())
	}
	return &out, nil
}

func (p *OpenAIProvider) ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	req.Stream = true
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, apierr.NewValidation("bad_request", err.Error())
	}
	resp, err := p.do(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(buf), "application/json")
	if err != nil {
		return nil, err
	}

	out := make(chan ChatChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanSSE(resp.Body, func(data []byte) bool {
			var chunk ChatChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				return true
			}
			out <- chunk
			return true
		})
	}()
	return out, nil
}

// scanSSE reads an OpenAI-style SSE body, calling onData for every "data: "
// payload up to but excluding the terminal "[DONE]" line.
func scanSSE(r io.Reader, onData func(data []byte) bool) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				idx := bytes.IndexByte(buf, '\n')
				if idx < 0 {
					break
				}
				line := bytes.TrimSpace(buf[:idx])
				buf = buf[idx+1:]
				if !bytes.HasPrefix(line, []byte("data: ")) {
					continue
				}
				payload := bytes.TrimPrefix(line, []byte("data: "))
				if string(payload) == "[DONE]" {
					return
				}
				if len(payload) == 0 {
					continue
				}
				if !onData(payload) {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *OpenAIProvider) Embeddings(ctx context.Context, req EmbeddingsRequest) (*EmbeddingsResponse, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, apierr.NewValidation("bad_request", err.Error())
	}
	resp, err := p.do(ctx, http.MethodPost, "/embeddings", bytes.NewReader(buf), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.NewUpstream("bad_upstream_payload", err.Error())
	}
	return &out, nil
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, req TranscriptionRequest, translate bool) (*TranscriptionResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, apierr.NewServer("multipart_build_failed", err.Error())
	}
	if _, err := part.Write(req.File); err != nil {
		return nil, apierr.NewServer("multipart_build_failed", err.Error())
	}
	_ = writer.WriteField("model", req.Model)
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	if req.Prompt != "" {
		_ = writer.WriteField("prompt", req.Prompt)
	}
	if req.ResponseFormat != "" {
		_ = writer.WriteField("response_format", req.ResponseFormat)
	}
	_ = writer.Close()

	path := "/audio/transcriptions"
	if translate {
		path = "/audio/translations"
	}

	resp, err := p.do(ctx, http.MethodPost, path, &body, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.NewUpstream("bad_upstream_payload", err.Error())
	}
	return &out, nil
}

func (p *OpenAIProvider) Speech(ctx context.Context, req SpeechRequest) ([]byte, string, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, "", apierr.NewValidation("bad_request", err.Error())
	}
	resp, err := p.do(ctx, http.MethodPost, "/audio/speech", bytes.NewReader(buf), "application/json")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apierr.NewUpstream("bad_upstream_payload", err.Error())
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return audio, contentType, nil
}
