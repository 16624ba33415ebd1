package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clareai/llmgateway/internal/apierr"
)

// GeminiProvider calls the Google Generative Language REST API. Gemini has
// no standalone audio transcription/speech REST endpoint comparable to
// OpenAI's, so Transcribe and Speech return a validation error steering
// callers toward a realtime session instead.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewGeminiProvider(apiKey, baseURL string) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiContent struct {
	Role  string `json:"role,omitempty"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func toGeminiContents(msgs []ChatMessage) []geminiContent {
	out := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		c := geminiContent{Role: role}
		c.Parts = append(c.Parts, struct {
			Text string `json:"text"`
		}{Text: m.Content})
		out = append(out, c)
	}
	return out
}

func (p *GeminiProvider) do(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	url := fmt.Sprintf("%s%s?key=%s", p.baseURL, path, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, apierr.NewServer("request_build_failed", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, apierr.NewUpstream("upstream_unreachable", err.Error())
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, apierr.NewUpstream("upstream_error", fmt.Sprintf("gemini returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apierr.NewValidation("upstream_rejected", string(payload))
	}
	return resp, nil
}

func (p *GeminiProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	genCfg := map[string]any{}
	if req.Temperature != nil {
		genCfg["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		genCfg["maxOutputTokens"] = *req.MaxTokens
	}
	if req.TopP != nil {
		genCfg["topP"] = *req.TopP
	}

	buf, err := json.Marshal(geminiGenerateRequest{Contents: toGeminiContents(req.Messages), GenerationConfig: genCfg})
	if err != nil {
		return nil, apierr.NewValidation("bad_request", err.Error())
	}

	path := fmt.Sprintf("/models/%s:generateContent", req.Model)
	resp, err := p.do(ctx, path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.NewUpstream("bad_upstream_payload", err.Error())
	}

	choices := make([]ChatChoice, 0, len(out.Candidates))
	for i, c := range out.Candidates {
		text := ""
		if len(c.Content.Parts) > 0 {
			text = c.Content.Parts[0].Text
		}
		choices = append(choices, ChatChoice{
			Index:        i,
			Message:      ChatMessage{Role: "assistant", Content: text},
			FinishReason: c.FinishReason,
		})
	}

	return &ChatResponse{
		Object:  "chat.completion",
		Model:   req.Model,
		Choices: choices,
		Usage: Usage{
			PromptTokens:     out.UsageMetadata.PromptTokenCount,
			CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      out.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// ChatCompletionStream polls the non-streaming endpoint and emits the whole
// answer as one chunk; Gemini's SSE streaming variant uses a distinct
// alt=sse query parameter this gateway does not yet negotiate.
func (p *GeminiProvider) ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	full, err := p.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan ChatChunk, 1)
	go func() {
		defer close(out)
		var chunk ChatChunk
		chunk.Object = "chat.completion.chunk"
		chunk.Model = full.Model
		for _, c := range full.Choices {
			entry := struct {
				Index int `json:"index"`
				Delta struct {
					Role    string `json:"role,omitempty"`
					Content string `json:"content,omitempty"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			}{Index: c.Index}
			entry.Delta.Role = "assistant"
			entry.Delta.Content = c.Message.Content
			reason := c.FinishReason
			entry.FinishReason = &reason
			chunk.Choices = append(chunk.Choices, entry)
		}
		out <- chunk
	}()
	return out, nil
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

func (p *GeminiProvider) Embeddings(ctx context.Context, req EmbeddingsRequest) (*EmbeddingsResponse, error) {
	text, _ := req.Input.(string)
	body := geminiEmbedRequest{Model: "models/" + req.Model}
	body.Content.Parts = append(body.Content.Parts, struct {
		Text string `json:"text"`
	}{Text: text})

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, apierr.NewValidation("bad_request", err.Error())
	}

	path := fmt.Sprintf("/models/%s:embedContent", req.Model)
	resp, err := p.do(ctx, path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.NewUpstream("bad_upstream_payload", err.Error())
	}

	result := &EmbeddingsResponse{Object: "list", Model: req.Model}
	result.Data = append(result.Data, struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	}{Index: 0, Embedding: out.Embedding.Values})
	return result, nil
}

func (p *GeminiProvider) Transcribe(ctx context.Context, req TranscriptionRequest, translate bool) (*TranscriptionResponse, error) {
	return nil, apierr.NewValidation("unsupported_operation", "gemini serves transcription through a realtime session, not this endpoint")
}

func (p *GeminiProvider) Speech(ctx context.Context, req SpeechRequest) ([]byte, string, error) {
	return nil, "", apierr.NewValidation("unsupported_operation", "gemini has no standalone text-to-speech endpoint wired")
}
