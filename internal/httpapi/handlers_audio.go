package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/provider"
)

const maxAudioUploadBytes = 25 << 20 // 25MiB, mirrors OpenAI's own cap

func (a *App) parseAudioUpload(w http.ResponseWriter, r *http.Request) (provider.TranscriptionRequest, bool) {
	if err := r.ParseMultipartForm(maxAudioUploadBytes); err != nil {
		apierr.WriteError(w, apierr.NewTooLarge("payload_too_large", "audio upload exceeds the size limit"), correlationIDFrom(r))
		return provider.TranscriptionRequest{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierr.WriteError(w, apierr.NewValidation("missing_field", "file is required"), correlationIDFrom(r))
		return provider.TranscriptionRequest{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apierr.WriteError(w, apierr.NewServer("read_failed", err.Error()), correlationIDFrom(r))
		return provider.TranscriptionRequest{}, false
	}

	return provider.TranscriptionRequest{
		File:           data,
		FileName:       header.Filename,
		Model:          r.FormValue("model"),
		Language:       r.FormValue("language"),
		Prompt:         r.FormValue("prompt"),
		ResponseFormat: r.FormValue("response_format"),
	}, true
}

// handleTranscriptions implements POST /v1/audio/transcriptions.
func (a *App) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	req, ok := a.parseAudioUpload(w, r)
	if !ok {
		return
	}
	a.dispatchAudio(w, r, req, false)
}

// handleTranslations implements POST /v1/audio/translations.
func (a *App) handleTranslations(w http.ResponseWriter, r *http.Request) {
	req, ok := a.parseAudioUpload(w, r)
	if !ok {
		return
	}
	a.dispatchAudio(w, r, req, true)
}

func (a *App) dispatchAudio(w http.ResponseWriter, r *http.Request, req provider.TranscriptionRequest, translate bool) {
	correlationID := correlationIDFrom(r)
	if req.Model == "" {
		apierr.WriteError(w, apierr.NewValidation("missing_field", "model is required"), correlationID)
		return
	}
	p, ok := a.Providers.Resolve(req.Model)
	if !ok {
		apierr.WriteError(w, apierr.NewNotFound("unknown_model", fmt.Sprintf("model %q is not registered", req.Model)), correlationID)
		return
	}
	resp, err := p.Transcribe(r.Context(), req, translate)
	if err != nil {
		apierr.WriteError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSpeech implements POST /v1/audio/speech.
func (a *App) handleSpeech(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationIDFrom(r)

	var req provider.SpeechRequest
	if err := decodeBody(r, &req); err != nil {
		apierr.WriteError(w, err, correlationID)
		return
	}

	p, ok := a.Providers.Resolve(req.Model)
	if !ok {
		apierr.WriteError(w, apierr.NewNotFound("unknown_model", fmt.Sprintf("model %q is not registered", req.Model)), correlationID)
		return
	}

	audio, contentType, err := p.Speech(r.Context(), req)
	if err != nil {
		apierr.WriteError(w, err, correlationID)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}
