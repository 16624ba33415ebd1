// Package provider defines the contract HTTP handlers use to reach an LLM
// backend; wire format is an external contract per §1 and is not specified
// here beyond what the OpenAI-compatible surface in §6 already fixes.
package provider

import "context"

// ChatMessage is one entry in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant tool"`
	Content string `json:"content"`
}

// ChatRequest mirrors the fields named in §6 for POST /v1/chat/completions.
type ChatRequest struct {
	Model            string           `json:"model" validate:"required"`
	Messages         []ChatMessage    `json:"messages" validate:"required,min=1,dive"`
	Stream           bool             `json:"stream,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens        *int             `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	TopP             *float64         `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	FrequencyPenalty *float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64         `json:"presence_penalty,omitempty"`
	Stop             []string         `json:"stop,omitempty"`
	N                *int             `json:"n,omitempty" validate:"omitempty,gt=0"`
	ResponseFormat   map[string]any   `json:"response_format,omitempty"`
	Tools            []map[string]any `json:"tools,omitempty"`
	ToolChoice       any              `json:"tool_choice,omitempty"`
	User             string           `json:"user,omitempty"`
}

// ChatChoice is one entry of a chat completion response.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage mirrors the OpenAI usage object.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatResponse is the canonical, provider-agnostic shape every adapter
// normalizes into.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// ChatChunk is one SSE delta of a streaming chat completion.
type ChatChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// EmbeddingsRequest mirrors §6 POST /v1/embeddings.
type EmbeddingsRequest struct {
	Model          string `json:"model" validate:"required"`
	Input          any    `json:"input" validate:"required"`
	EncodingFormat string `json:"encoding_format,omitempty"`
	Dimensions     *int   `json:"dimensions,omitempty" validate:"omitempty,gt=0"`
	User           string `json:"user,omitempty"`
}

// EmbeddingsResponse is the canonical embeddings response.
type EmbeddingsResponse struct {
	Object string `json:"object"`
	Model  string `json:"model"`
	Data   []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage Usage `json:"usage"`
}

// TranscriptionRequest mirrors §6 POST /v1/audio/transcriptions|translations.
type TranscriptionRequest struct {
	File           []byte
	FileName       string
	Model          string
	Language       string
	Prompt         string
	ResponseFormat string // json|text|srt|verbose_json|vtt
	Temperature    float64
}

// TranscriptionResponse is the canonical transcription result.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// SpeechRequest mirrors §6 POST /v1/audio/speech.
type SpeechRequest struct {
	Model          string  `json:"model" validate:"required"`
	Input          string  `json:"input" validate:"required"`
	Voice          string  `json:"voice" validate:"required"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Provider is the non-realtime adapter contract HTTP handlers call
// through. Concrete providers (OpenAI, Gemini) implement this; their wire
// format is an external contract, not specified further here.
type Provider interface {
	Name() string
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error)
	Embeddings(ctx context.Context, req EmbeddingsRequest) (*EmbeddingsResponse, error)
	Transcribe(ctx context.Context, req TranscriptionRequest, translate bool) (*TranscriptionResponse, error)
	Speech(ctx context.Context, req SpeechRequest) ([]byte, string, error)
}

// Registry resolves a model id to the Provider that serves it.
type Registry struct {
	byModel map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byModel: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider, models ...string) {
	for _, m := range models {
		r.byModel[m] = p
	}
}

func (r *Registry) Resolve(model string) (Provider, bool) {
	p, ok := r.byModel[model]
	return p, ok
}
