// Package realtime implements the bidirectional realtime session engine
// (§4.1): the session state machine, its audio buffer and backpressure
// policy, the upstream adapter contract, and event normalization.
package realtime

import "github.com/clareai/llmgateway/internal/domain"

// ClientMessage is the generic client→gateway envelope; Data carries the
// type-specific payload as a raw map, decoded further per Type.
type ClientMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	Audio string        `json:"audio,omitempty"`
}

const (
	MsgSessionUpdate       = "session.update"
	MsgAudioAppend         = "input_audio.append"
	MsgAudioActivityStart  = "input_audio.activity_start"
	MsgAudioActivityEnd    = "input_audio.activity_end"
	MsgAudioCommit         = "input_audio.commit"
	MsgAudioClear          = "input_audio.clear"
)

// ServerMessage is the canonical gateway→client envelope.
type ServerMessage struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Raw      any            `json:"raw,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Model     string        `json:"model,omitempty"`
}

const (
	EvtSessionCreated   = "session.created"
	EvtSessionUpdated   = "session.updated"
	EvtTranscriptDelta  = "transcript.delta"
	EvtTranscriptDone   = "transcript.done"
	EvtModelDelta       = "model.delta"
	EvtModelDone        = "model.done"
	EvtSpeechStarted    = "speech_started"
	EvtSpeechStopped    = "speech_stopped"
	EvtRateLimits       = "rate_limits.updated"
	EvtWarning          = "warning"
	EvtError            = "error"
	EvtDebugUpstream    = "debug.upstream"
)

// VADConfig is the negotiated VAD tuning for a session (§4.1).
type VADConfig struct {
	Mode               domain.VADMode
	SilenceDurationMs  int
	PrefixPaddingMs    int
	StartSensitivity   string
	EndSensitivity     string
	Eagerness          string
	CommitFallback     bool
}

// IncludeFlags gates optional canonical events.
type IncludeFlags struct {
	RawUpstream bool
	ModelOutput bool
}

// SessionConfig is the parsed payload of the first session.update.
type SessionConfig struct {
	Model              string
	Language           string
	InputAudioTranscription map[string]any
	ResponseModalities []string
	VAD                VADConfig
	Include            IncludeFlags
	SystemInstruction  string
}
