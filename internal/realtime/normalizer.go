package realtime

// kindClass is the canonical bucket a provider event kind maps into,
// independent of which provider emitted it (§4.1 event normalization table).
type kindClass int

const (
	classUnknown kindClass = iota
	classTranscriptDelta
	classTranscriptDone
	classModelDelta
	classModelDone
	classSpeechStarted
	classSpeechStopped
	classRateLimits
	classError
)

// openAIEventKinds and geminiEventKinds map each provider's own event-type
// string to the canonical bucket, the shape mirrored from the
// switch-dispatch-over-event-type pattern used by the provider handlers.
var openAIEventKinds = map[string]kindClass{
	"conversation.item.input_audio_transcription.delta":    classTranscriptDelta,
	"conversation.item.input_audio_transcription.completed": classTranscriptDone,
	"response.audio_transcript.delta":                      classModelDelta,
	"response.audio_transcript.done":                       classModelDone,
	"input_audio_buffer.speech_started":                     classSpeechStarted,
	"input_audio_buffer.speech_stopped":                     classSpeechStopped,
	"rate_limits.updated":                                   classRateLimits,
	"error":                                                 classError,
}

var geminiEventKinds = map[string]kindClass{
	"inputTranscription":       classTranscriptDelta,
	"inputTranscriptionDone":   classTranscriptDone,
	"outputTranscription":      classModelDelta,
	"outputTranscriptionDone":  classModelDone,
	"activityStart":            classSpeechStarted,
	"activityEnd":              classSpeechStopped,
	"usageMetadata":            classRateLimits,
	"error":                    classError,
}

func kindTableFor(provider string) map[string]kindClass {
	if provider == "gemini" {
		return geminiEventKinds
	}
	return openAIEventKinds
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// Normalize converts a provider event into zero or more canonical client
// messages, per the table in §4.1. Unrecognized events are only surfaced
// when include.RawUpstream is set.
func Normalize(provider string, evt ProviderEvent, include IncludeFlags) []ServerMessage {
	class := kindTableFor(provider)[evt.Kind]

	switch class {
	case classTranscriptDelta:
		return []ServerMessage{{Type: EvtTranscriptDelta, Text: stringField(evt.Data, "text")}}
	case classTranscriptDone:
		return []ServerMessage{{Type: EvtTranscriptDone, Text: stringField(evt.Data, "text")}}
	case classModelDelta:
		if !include.ModelOutput {
			return nil
		}
		return []ServerMessage{{Type: EvtModelDelta, Text: stringField(evt.Data, "text")}}
	case classModelDone:
		if !include.ModelOutput {
			return nil
		}
		return []ServerMessage{{Type: EvtModelDone, Text: stringField(evt.Data, "text")}}
	case classSpeechStarted:
		return []ServerMessage{{Type: EvtSpeechStarted}}
	case classSpeechStopped:
		return []ServerMessage{{Type: EvtSpeechStopped}}
	case classRateLimits:
		return []ServerMessage{{Type: EvtRateLimits, Details: evt.Data}}
	case classError:
		return []ServerMessage{{
			Type:     EvtError,
			Code:     stringField(evt.Data, "code"),
			Message:  stringField(evt.Data, "message"),
			Provider: provider,
			Details:  evt.Data,
		}}
	default:
		if include.RawUpstream {
			return []ServerMessage{{Type: EvtDebugUpstream, Raw: evt.Data}}
		}
		return nil
	}
}
