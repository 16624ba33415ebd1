package realtime

import "github.com/clareai/llmgateway/internal/domain"

func stringOr(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intOr(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func boolOr(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func parseVAD(data map[string]any) VADConfig {
	raw, _ := data["vad"].(map[string]any)
	if raw == nil {
		return VADConfig{Mode: domain.VADManual}
	}
	cfg := VADConfig{
		Mode:              domain.VADMode(stringOr(raw, "type", string(domain.VADManual))),
		SilenceDurationMs: intOr(raw, "silence_duration_ms", 1200),
		PrefixPaddingMs:   intOr(raw, "prefix_padding_ms", 300),
		StartSensitivity:  stringOr(raw, "start_sensitivity", "medium"),
		EndSensitivity:    stringOr(raw, "end_sensitivity", "medium"),
		Eagerness:         stringOr(raw, "eagerness", "medium"),
		CommitFallback:    boolOr(raw, "commit_fallback", false),
	}
	return cfg
}

func parseInclude(data map[string]any) IncludeFlags {
	raw, _ := data["include"].(map[string]any)
	if raw == nil {
		return IncludeFlags{}
	}
	return IncludeFlags{
		RawUpstream: boolOr(raw, "raw_upstream", false),
		ModelOutput: boolOr(raw, "model_output", false),
	}
}

// parseSessionConfig decodes the data payload of a session.update message.
func parseSessionConfig(data map[string]any) SessionConfig {
	cfg := SessionConfig{
		Model:             stringOr(data, "model", ""),
		Language:          stringOr(data, "language", ""),
		VAD:               parseVAD(data),
		Include:           parseInclude(data),
		SystemInstruction: stringOr(data, "system_instruction", stringOr(data, "prompt", "")),
	}
	if transcription, ok := data["input_audio_transcription"].(map[string]any); ok {
		cfg.InputAudioTranscription = transcription
	}
	if modalities, ok := data["response_modalities"].([]any); ok {
		for _, m := range modalities {
			if s, ok := m.(string); ok {
				cfg.ResponseModalities = append(cfg.ResponseModalities, s)
			}
		}
	}
	return cfg
}
