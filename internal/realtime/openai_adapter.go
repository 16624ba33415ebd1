package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/clareai/llmgateway/internal/log"
)

// OpenAIAdapter drives an OpenAI realtime-transcribe session over its own
// WebSocket, satisfying the Adapter contract (§2 component G). The wire
// format of the upstream connection is an external contract; only the
// shape of the adapter is specified.
type OpenAIAdapter struct {
	apiKey string
	model  string

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan ProviderEvent
	closed bool
}

// NewOpenAIAdapterFactory returns an AdapterFactory bound to apiKey, to be
// registered against every OpenAI realtime-capable model id.
func NewOpenAIAdapterFactory(apiKey string) AdapterFactory {
	return func() Adapter {
		return &OpenAIAdapter{apiKey: apiKey, events: make(chan ProviderEvent, 64)}
	}
}

func (a *OpenAIAdapter) Connect(ctx context.Context, cfg SessionConfig) error {
	a.model = cfg.Model
	url := fmt.Sprintf("wss://api.openai.com/v1/realtime?model=%s", cfg.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	sessionUpdate := map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"input_audio_transcription": map[string]any{"model": "whisper-1"},
			"turn_detection":            vadToOpenAITurnDetection(cfg.VAD),
		},
	}
	if err := conn.WriteJSON(sessionUpdate); err != nil {
		return err
	}

	go a.readPump()
	return nil
}

func vadToOpenAITurnDetection(v VADConfig) map[string]any {
	if v.Mode == "manual" {
		return nil
	}
	kind := "server_vad"
	if v.Mode == "semantic_vad" {
		kind = "semantic_vad"
	}
	return map[string]any{
		"type":                kind,
		"silence_duration_ms": v.SilenceDurationMs,
		"prefix_padding_ms":   v.PrefixPaddingMs,
	}
}

func (a *OpenAIAdapter) readPump() {
	defer close(a.events)
	for {
		_, raw, err := a.conn.ReadMessage()
		if err != nil {
			log.Debug(context.Background(), "openai adapter read pump exiting")
			return
		}
		var frame struct {
			Type string `json:"type"`
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			continue
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		a.events <- ProviderEvent{Kind: frame.Type, Data: data}
	}
}

func (a *OpenAIAdapter) AppendAudioBase64(frame string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil || a.closed {
		return false
	}
	err := a.conn.WriteJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": frame,
	})
	return err == nil
}

func (a *OpenAIAdapter) CommitAudio() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return fmt.Errorf("openai adapter: not connected")
	}
	return a.conn.WriteJSON(map[string]any{"type": "input_audio_buffer.commit"})
}

func (a *OpenAIAdapter) ClearAudio() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	return a.conn.WriteJSON(map[string]any{"type": "input_audio_buffer.clear"})
}

func (a *OpenAIAdapter) Events() <-chan ProviderEvent { return a.events }

func (a *OpenAIAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.conn == nil {
		a.closed = true
		return nil
	}
	a.closed = true
	return a.conn.Close()
}
