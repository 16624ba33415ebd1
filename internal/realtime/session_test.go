package realtime

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/domain"
)

func TestSampleRateForModel(t *testing.T) {
	assert.Equal(t, 16000, sampleRateForModel("gemini"))
	assert.Equal(t, 24000, sampleRateForModel("openai"))
}

func TestPCMDurationMs(t *testing.T) {
	// 48000 bytes of decoded PCM16 mono at 24kHz = 1000ms.
	raw := make([]byte, 48000)
	b64 := base64.StdEncoding.EncodeToString(raw)
	assert.Equal(t, 1000, pcmDurationMs(b64, 24000))
}

func TestPCMDurationMs_ZeroSampleRate(t *testing.T) {
	assert.Equal(t, 0, pcmDurationMs("AAAA", 0))
}

func TestSession_AdmitAPM_RespectsRollingMinuteCap(t *testing.T) {
	s := &Session{limits: Limits{APMSecondsPerMin: 1}}
	assert.True(t, s.admitAPM(900))
	assert.False(t, s.admitAPM(200))
}

func TestSession_AdmitAPM_WindowResets(t *testing.T) {
	s := &Session{limits: Limits{APMSecondsPerMin: 1}}
	assert.True(t, s.admitAPM(900))
	s.apmWindowStart = time.Now().Add(-2 * time.Minute)
	assert.True(t, s.admitAPM(900))
}

func TestSession_RecordRPM_RespectsPerMinuteCap(t *testing.T) {
	s := &Session{limits: Limits{RPMPerMinute: 2}}
	assert.True(t, s.recordRPM())
	assert.True(t, s.recordRPM())
	assert.False(t, s.recordRPM())
}

type fakeAdapter struct {
	accept bool
	events chan ProviderEvent
}

func (f *fakeAdapter) Connect(ctx context.Context, cfg SessionConfig) error { return nil }
func (f *fakeAdapter) AppendAudioBase64(frame string) bool                 { return f.accept }
func (f *fakeAdapter) CommitAudio() error                                  { return nil }
func (f *fakeAdapter) ClearAudio() error                                   { return nil }
func (f *fakeAdapter) Events() <-chan ProviderEvent                        { return f.events }
func (f *fakeAdapter) Close() error                                        { return nil }

func TestSession_EnqueueOrSend_AdapterAcceptsImmediately(t *testing.T) {
	s := &Session{adapter: &fakeAdapter{accept: true}, limits: Limits{MaxBufferMs: 5000, LowWaterMs: 1000}}
	s.enqueueOrSend(pendingFrame{b64: "AAAA", durationMs: 20})
	assert.Equal(t, 0, s.BufferedMs())
	assert.False(t, s.IsPaused())
}

func TestSession_DrainOnce_EmptyQueueReportsDrained(t *testing.T) {
	s := &Session{adapter: &fakeAdapter{accept: true}, limits: Limits{MaxBufferMs: 5000, LowWaterMs: 1000}}
	assert.True(t, s.drainOnce())
}

func TestCloseCodeFor_MapsKnownCodes(t *testing.T) {
	assert.Equal(t, 4029, closeCodeFor(apierr.AsAPIError(apierr.NewServer("idle_timeout", ""))))
	assert.Equal(t, 4008, closeCodeFor(apierr.AsAPIError(apierr.NewQuotaExceeded(1, 1, time.Now()))))
	assert.Equal(t, 4001, closeCodeFor(apierr.AsAPIError(apierr.NewAuthentication("bad_credential", ""))))
	assert.Equal(t, 1000, closeCodeFor(apierr.AsAPIError(apierr.NewServer("session_expired", ""))))
	assert.Equal(t, 1000, closeCodeFor(apierr.AsAPIError(apierr.NewServer("client_disconnected", ""))))
	assert.Equal(t, 1011, closeCodeFor(apierr.AsAPIError(apierr.NewUpstream("upstream_closed", ""))))
}

func TestSession_ArmFallbackTimer_NoopWhenFallbackDisabled(t *testing.T) {
	s := &Session{vad: VADConfig{Mode: domain.VADServer, CommitFallback: false}}
	s.armFallbackTimer()
	assert.Nil(t, s.fallbackTimer)
}

func TestSession_ArmFallbackTimer_NoopInManualMode(t *testing.T) {
	s := &Session{vad: VADConfig{Mode: domain.VADManual, CommitFallback: true}}
	s.armFallbackTimer()
	assert.Nil(t, s.fallbackTimer)
}

func TestSession_ArmFallbackTimer_ArmsForServerAndSemanticVAD(t *testing.T) {
	s := &Session{vad: VADConfig{Mode: domain.VADServer, CommitFallback: true, SilenceDurationMs: 10_000}}
	s.armFallbackTimer()
	assert.NotNil(t, s.fallbackTimer)

	semantic := &Session{vad: VADConfig{Mode: domain.VADSemantic, CommitFallback: true, SilenceDurationMs: 10_000}}
	semantic.armFallbackTimer()
	assert.NotNil(t, semantic.fallbackTimer)
	semantic.fallbackTimer.Stop()
}

func TestSession_HandleFallbackCommit_CommitsThroughAdapter(t *testing.T) {
	adapter := &commitTrackingAdapter{fakeAdapter: fakeAdapter{accept: true}}
	s := &Session{adapter: adapter}
	s.handleFallbackCommit()
	assert.True(t, adapter.committed)
}

type commitTrackingAdapter struct {
	fakeAdapter
	committed bool
}

func (a *commitTrackingAdapter) CommitAudio() error {
	a.committed = true
	return nil
}

func TestSession_StopFallbackTimer_ClearsArmedTimer(t *testing.T) {
	s := &Session{vad: VADConfig{Mode: domain.VADSemantic, CommitFallback: true, SilenceDurationMs: 10_000}}
	s.armFallbackTimer()
	assert.NotNil(t, s.fallbackTimer)
	s.stopFallbackTimer()
	assert.Nil(t, s.fallbackTimer)
}

