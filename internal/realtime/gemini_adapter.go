package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/clareai/llmgateway/internal/log"
)

// GeminiAdapter drives a Google Gemini live session over its own
// WebSocket, satisfying the Adapter contract (§2 component G).
type GeminiAdapter struct {
	apiKey string

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan ProviderEvent
	closed bool
}

// NewGeminiAdapterFactory returns an AdapterFactory bound to apiKey, to be
// registered against every Gemini realtime-capable model id.
func NewGeminiAdapterFactory(apiKey string) AdapterFactory {
	return func() Adapter {
		return &GeminiAdapter{apiKey: apiKey, events: make(chan ProviderEvent, 64)}
	}
}

func (a *GeminiAdapter) Connect(ctx context.Context, cfg SessionConfig) error {
	url := fmt.Sprintf("wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s", a.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	setup := map[string]any{
		"setup": map[string]any{
			"model": cfg.Model,
			"generationConfig": map[string]any{
				"responseModalities": cfg.ResponseModalities,
			},
			"systemInstruction": cfg.SystemInstruction,
			"realtimeInputConfig": map[string]any{
				"automaticActivityDetection": map[string]any{
					"disabled": cfg.VAD.Mode == "manual",
				},
			},
		},
	}
	if err := conn.WriteJSON(setup); err != nil {
		return err
	}

	go a.readPump()
	return nil
}

func (a *GeminiAdapter) readPump() {
	defer close(a.events)
	for {
		_, raw, err := a.conn.ReadMessage()
		if err != nil {
			log.Debug(context.Background(), "gemini adapter read pump exiting")
			return
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			continue
		}
		a.events <- ProviderEvent{Kind: geminiEventKind(data), Data: data}
	}
}

// geminiEventKind infers a canonical-lookup kind from the top-level field
// Gemini's live API populates, since its messages are keyed by field
// presence rather than a discriminator string.
func geminiEventKind(data map[string]any) string {
	for _, key := range []string{"inputTranscription", "inputTranscriptionDone", "outputTranscription", "outputTranscriptionDone", "activityStart", "activityEnd", "usageMetadata", "error"} {
		if _, ok := data[key]; ok {
			return key
		}
	}
	return "unknown"
}

func (a *GeminiAdapter) AppendAudioBase64(frame string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil || a.closed {
		return false
	}
	err := a.conn.WriteJSON(map[string]any{
		"realtimeInput": map[string]any{
			"audio": map[string]any{
				"data":     frame,
				"mimeType": "audio/pcm;rate=16000",
			},
		},
	})
	return err == nil
}

func (a *GeminiAdapter) CommitAudio() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return fmt.Errorf("gemini adapter: not connected")
	}
	return a.conn.WriteJSON(map[string]any{
		"realtimeInput": map[string]any{"audioStreamEnd": true},
	})
}

func (a *GeminiAdapter) ClearAudio() error {
	return nil
}

func (a *GeminiAdapter) Events() <-chan ProviderEvent { return a.events }

func (a *GeminiAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.conn == nil {
		a.closed = true
		return nil
	}
	a.closed = true
	return a.conn.Close()
}
