package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/domain"
	"github.com/clareai/llmgateway/internal/log"
)

// commitFallbackWaitMs is the extra wait added on top of the configured
// trailing-silence window before a commit_fallback session commits locally
// rather than keep waiting on upstream end-of-speech (§4.1 "VAD modes").
const commitFallbackWaitMs = 1500

// sampleRateForModel returns the negotiated PCM16 sample rate: 16 kHz for
// Gemini, 24 kHz for OpenAI transcribe models (§4.1).
func sampleRateForModel(provider string) int {
	if provider == "gemini" {
		return 16000
	}
	return 24000
}

// pendingFrame is one base64 audio frame waiting in the backpressure queue.
type pendingFrame struct {
	b64       string
	durationMs int
}

// Session drives one realtime WebSocket connection end to end (§3
// RealtimeSession, §4.1). All mutable state lives behind mu; the client
// socket is written to only through send to satisfy gorilla/websocket's
// single-writer requirement.
type Session struct {
	ID       string
	KeyID    string
	Model    string
	Provider string
	conn     *websocket.Conn
	adapter  Adapter

	limits Limits

	createdAt time.Time
	lastActivityNano int64 // atomic unix nano

	mu            sync.Mutex
	configured    bool
	vad           VADConfig
	include       IncludeFlags
	paused        bool
	pending       []pendingFrame
	pendingMs     int
	manualActive  bool
	closed        bool

	apmMu        sync.Mutex
	apmWindowStart time.Time
	apmAccumMs     int

	rpmMu        sync.Mutex
	rpmWindowStart time.Time
	rpmCount       int

	idleTimer    *time.Timer
	lifetimeTimer *time.Timer
	drainStop    chan struct{}
	closeOnce    sync.Once

	// sendMu serializes conn.WriteJSON calls for this connection only;
	// gorilla/websocket requires a single writer per socket but sessions
	// are otherwise independent (§5).
	sendMu sync.Mutex

	fallbackMu    sync.Mutex
	fallbackTimer *time.Timer

	onTerminate func(sessionID string)
}

// Limits bundles the tunables named in §4.1 and §6's realtime config
// surface.
type Limits struct {
	MaxBufferMs       int
	LowWaterMs        int
	MaxIdleSeconds    int
	MaxSessionMinutes int
	APMSecondsPerMin  int
	RPMPerMinute      int
}

// NewSession allocates a session bound to conn and adapter, arms the
// session-lifetime and idle timers, and registers onTerminate to be called
// exactly once at teardown.
func NewSession(id, keyID, model, provider string, conn *websocket.Conn, adapter Adapter, limits Limits, onTerminate func(string)) *Session {
	s := &Session{
		ID:          id,
		KeyID:       keyID,
		Model:       model,
		Provider:    provider,
		conn:        conn,
		adapter:     adapter,
		limits:      limits,
		createdAt:   time.Now(),
		drainStop:   make(chan struct{}),
		onTerminate: onTerminate,
	}
	s.touchActivity()
	s.lifetimeTimer = time.AfterFunc(time.Duration(limits.MaxSessionMinutes)*time.Minute, func() {
		s.terminate(apierr.NewServer("session_expired", "session lifetime exceeded"))
	})
	s.armIdleTimer()
	return s
}

func (s *Session) touchActivity() {
	atomic.StoreInt64(&s.lastActivityNano, time.Now().UnixNano())
}

func (s *Session) lastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.lastActivityNano))
}

func (s *Session) armIdleTimer() {
	d := time.Duration(s.limits.MaxIdleSeconds) * time.Second
	s.mu.Lock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(d, s.handleIdleTimeout)
	s.mu.Unlock()
}

func (s *Session) handleIdleTimeout() {
	if time.Since(s.lastActivity()) < time.Duration(s.limits.MaxIdleSeconds)*time.Second {
		s.armIdleTimer()
		return
	}
	s.terminate(apierr.NewServer("idle_timeout", "session idle timeout"))
}

// send writes one canonical message to the client. It is the only place
// that calls conn.WriteJSON, so concurrent callers never race this
// session's socket without blocking on any other session's.
func (s *Session) send(msg ServerMessage) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Created emits session.created with the allocated id and model.
func (s *Session) Created() error {
	return s.send(ServerMessage{Type: EvtSessionCreated, SessionID: s.ID, Model: s.Model})
}

// HandleClientMessage dispatches one decoded client→gateway message
// through the session state machine (§4.1 "Stream").
func (s *Session) HandleClientMessage(ctx context.Context, raw []byte) {
	s.touchActivity()
	s.armIdleTimer()

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		_ = s.send(ServerMessage{Type: EvtError, Code: "bad_json", Message: "invalid JSON payload"})
		return
	}

	switch msg.Type {
	case MsgSessionUpdate:
		s.handleSessionUpdate(msg.Data)
	case MsgAudioAppend:
		s.handleAudioAppend(msg.Audio)
	case MsgAudioActivityStart:
		s.mu.Lock()
		s.manualActive = true
		s.mu.Unlock()
	case MsgAudioActivityEnd:
		s.mu.Lock()
		s.manualActive = false
		s.mu.Unlock()
	case MsgAudioCommit:
		s.handleCommit()
	case MsgAudioClear:
		s.handleClear()
	default:
		if s.include.RawUpstream {
			_ = s.send(ServerMessage{Type: EvtDebugUpstream, Raw: msg})
		}
	}
}

func (s *Session) handleSessionUpdate(data map[string]any) {
	cfg := parseSessionConfig(data)

	s.mu.Lock()
	s.vad = cfg.VAD
	s.include = cfg.Include
	s.configured = true
	s.mu.Unlock()

	if cfg.Model == "" {
		s.terminate(apierr.NewValidation("invalid_session", "session.update missing model"))
		return
	}

	if err := s.adapter.Connect(context.Background(), cfg); err != nil {
		s.terminate(apierr.NewUpstream("upstream_closed", "failed to connect upstream"))
		return
	}
	_ = s.send(ServerMessage{Type: EvtSessionUpdated, SessionID: s.ID, Model: s.Model})
}

// recordRPM implements the RPM limit (§4.1): requests per minute per key,
// counted on commit / terminal activity end.
func (s *Session) recordRPM() bool {
	now := time.Now()
	s.rpmMu.Lock()
	defer s.rpmMu.Unlock()
	if now.Sub(s.rpmWindowStart) >= time.Minute {
		s.rpmWindowStart = now
		s.rpmCount = 0
	}
	s.rpmCount++
	return s.rpmCount <= s.limits.RPMPerMinute
}

func (s *Session) handleCommit() {
	s.stopFallbackTimer()
	if !s.recordRPM() {
		_ = s.send(ServerMessage{Type: EvtError, Code: "rpm_exceeded", Message: "requests per minute exceeded"})
		return
	}
	if err := s.adapter.CommitAudio(); err != nil {
		s.terminate(apierr.NewUpstream("upstream_closed", "commit failed"))
	}
}

func (s *Session) handleClear() {
	s.stopFallbackTimer()
	s.mu.Lock()
	s.pending = nil
	s.pendingMs = 0
	s.mu.Unlock()
	_ = s.adapter.ClearAudio()
}

// pcmDurationMs estimates the wall-clock duration of base64-encoded mono
// PCM16 samples at sampleRate.
func pcmDurationMs(b64 string, sampleRate int) int {
	n := base64.StdEncoding.DecodedLen(len(b64))
	samples := n / 2 // 16-bit mono
	if sampleRate == 0 {
		return 0
	}
	return samples * 1000 / sampleRate
}

// handleAudioAppend applies the APM check, then the buffer/backpressure
// policy of §4.1.
func (s *Session) handleAudioAppend(b64 string) {
	if b64 == "" {
		return
	}
	durationMs := pcmDurationMs(b64, sampleRateForModel(s.Provider))

	if !s.admitAPM(durationMs) {
		_ = s.send(ServerMessage{Type: EvtError, Code: "apm_exceeded", Message: "audio minutes exceeded"})
		_ = s.send(ServerMessage{Type: EvtRateLimits, Details: map[string]any{
			"window": "minute", "limit_seconds": s.limits.APMSecondsPerMin,
		}})
		return
	}

	s.enqueueOrSend(pendingFrame{b64: b64, durationMs: durationMs})
	s.armFallbackTimer()
}

// armFallbackTimer (re)starts the commit-fallback timer for VAD modes that
// rely on upstream end-of-speech detection. If upstream never reports it
// within SilenceDurationMs+commitFallbackWaitMs of the last audio frame,
// handleFallbackCommit commits locally instead of stalling the session.
func (s *Session) armFallbackTimer() {
	s.mu.Lock()
	vad := s.vad
	s.mu.Unlock()

	if !vad.CommitFallback || (vad.Mode != domain.VADServer && vad.Mode != domain.VADSemantic) {
		return
	}

	d := time.Duration(vad.SilenceDurationMs+commitFallbackWaitMs) * time.Millisecond
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()
	if s.fallbackTimer != nil {
		s.fallbackTimer.Stop()
	}
	s.fallbackTimer = time.AfterFunc(d, s.handleFallbackCommit)
}

// stopFallbackTimer disarms the commit-fallback timer, called on manual
// commit, clear, and session teardown.
func (s *Session) stopFallbackTimer() {
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()
	if s.fallbackTimer != nil {
		s.fallbackTimer.Stop()
		s.fallbackTimer = nil
	}
}

func (s *Session) handleFallbackCommit() {
	if err := s.adapter.CommitAudio(); err != nil {
		s.terminate(apierr.NewUpstream("upstream_closed", "fallback commit failed"))
	}
}

// admitAPM enforces the rolling-minute audio-duration cap.
func (s *Session) admitAPM(durationMs int) bool {
	now := time.Now()
	s.apmMu.Lock()
	defer s.apmMu.Unlock()
	if now.Sub(s.apmWindowStart) >= time.Minute {
		s.apmWindowStart = now
		s.apmAccumMs = 0
	}
	if s.apmAccumMs+durationMs > s.limits.APMSecondsPerMin*1000 {
		return false
	}
	s.apmAccumMs += durationMs
	return true
}

// enqueueOrSend implements the backpressure pause/resume policy.
func (s *Session) enqueueOrSend(f pendingFrame) {
	if s.adapter.AppendAudioBase64(f.b64) {
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, f)
	s.pendingMs += f.durationMs
	crossedHighWater := s.pendingMs > s.limits.MaxBufferMs/2 && !s.paused
	if crossedHighWater {
		s.paused = true
	}
	s.mu.Unlock()

	if crossedHighWater {
		_ = s.send(ServerMessage{Type: EvtWarning, Code: "backpressure_paused"})
		s.startDrainLoop()
	}
}

// startDrainLoop retries enqueued frames on a fixed cadence until the
// buffer falls below the low-water mark, then resumes the transport.
func (s *Session) startDrainLoop() {
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-s.drainStop:
				return
			case <-ticker.C:
				if s.drainOnce() {
					return
				}
			}
		}
	}()
}

func (s *Session) drainOnce() bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return true
	}
	frame := s.pending[0]
	s.mu.Unlock()

	if !s.adapter.AppendAudioBase64(frame.b64) {
		return false
	}

	s.mu.Lock()
	s.pending = s.pending[1:]
	s.pendingMs -= frame.durationMs
	resumed := s.paused && s.pendingMs < s.limits.LowWaterMs
	if resumed {
		s.paused = false
	}
	drained := len(s.pending) == 0
	s.mu.Unlock()

	if resumed {
		_ = s.send(ServerMessage{Type: EvtWarning, Code: "backpressure_resumed"})
	}
	return drained
}

// IsPaused reports whether the transport read side should be paused,
// satisfying the §3 invariant "paused flag implies read side paused".
func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// BufferedMs returns the currently enqueued audio duration.
func (s *Session) BufferedMs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingMs
}

// PumpUpstreamEvents reads normalized provider events and forwards the
// canonical messages to the client until the adapter's channel closes.
func (s *Session) PumpUpstreamEvents() {
	for evt := range s.adapter.Events() {
		for _, msg := range Normalize(s.Provider, evt, s.include) {
			if msg.Type == EvtError {
				_ = s.send(msg)
				s.terminate(apierr.NewUpstream("upstream_closed", msg.Message))
				return
			}
			_ = s.send(msg)
		}
	}
}

// closeCodeFor maps an error to the WS close code named in §6. Errors
// outside that table (e.g. client_disconnected, upstream failures) close
// with the standard codes for "normal" and "internal error".
func closeCodeFor(apiErr *apierr.Error) int {
	switch {
	case apiErr.Code == "idle_timeout":
		return 4029 // §6 idle timeout
	case apiErr.ErrType == apierr.QuotaExceeded:
		return 4008
	case apiErr.ErrType == apierr.Authentication:
		return 4001
	case apiErr.Code == "client_disconnected" || apiErr.Code == "session_expired":
		return websocket.CloseNormalClosure
	default:
		return websocket.CloseInternalServerErr
	}
}

// terminate tears the session down exactly once: adapter closed, timers
// cleared, registry notified (§4.1 "Terminate").
func (s *Session) terminate(err error) {
	s.closeOnce.Do(func() {
		apiErr := apierr.AsAPIError(err)
		_ = s.send(apierr.ToRealtimeMessage(apiErr, s.Provider))

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.drainStop)
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
		if s.lifetimeTimer != nil {
			s.lifetimeTimer.Stop()
		}
		s.stopFallbackTimer()
		if s.adapter != nil {
			_ = s.adapter.Close()
		}

		code := closeCodeFor(apiErr)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, apiErr.Code), time.Now().Add(time.Second))
		_ = s.conn.Close()

		log.Info(context.Background(), "realtime session terminated",
			zap.String("session_id", s.ID), zap.String("code", apiErr.Code))

		if s.onTerminate != nil {
			s.onTerminate(s.ID)
		}
	})
}

// Terminate is the exported close path, used by the registry and by
// client-initiated close.
func (s *Session) Terminate(err error) { s.terminate(err) }
