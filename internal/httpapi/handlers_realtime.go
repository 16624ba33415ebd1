package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/auth"
	"github.com/clareai/llmgateway/internal/log"
	"github.com/clareai/llmgateway/internal/realtime"
)

// Close codes for the realtime WebSocket surface, layered on top of the
// standard 1000 normal closure (§6). The idle-timeout code (4029) is sent
// from realtime.Session.terminate once a session is admitted; these three
// only cover rejections during the upgrade handshake itself.
const (
	closeAuthFailure     = 4001
	closeQuotaExceeded   = 4008
	closeTooManySessions = 4013

	// closeUnknownModel is not named by §6; an unresolved model is a
	// client request error rather than an auth/quota/capacity failure,
	// so it gets the standard WS policy-violation code instead of
	// squatting on one of the spec's reserved 4xxx codes.
	closeUnknownModel = websocket.ClosePolicyViolation
)

// handleRealtimeUpgrade implements GET/WS /v1/realtime/transcription
// (§4.1, §6): it upgrades the connection, resolves the model to a provider
// adapter, admits the session into the registry, and pumps both
// directions until the client or upstream closes.
func (a *App) handleRealtimeUpgrade(w http.ResponseWriter, r *http.Request) {
	if !a.Config.Realtime.Enabled {
		apierr.WriteError(w, apierr.NewServer("realtime_disabled", "realtime transcription is disabled"), correlationIDFrom(r))
		return
	}

	model := r.URL.Query().Get("model")
	providerTag, adapter, ok := a.RTAdapters.Resolve(model)
	if !ok {
		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(apierr.ToRealtimeMessage(apierr.NewValidation("unknown_model", fmt.Sprintf("model %q has no realtime adapter", model)), ""))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeUnknownModel, "unknown model"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	credential := auth.Extract(r)
	if credential == "" {
		credential = r.URL.Query().Get("api_key")
	}
	key, err := a.Auth.Resolve(credential, a.Config.Auth.AllowClientProviderKeys)
	if err != nil {
		conn, upErr := a.upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			return
		}
		_ = conn.WriteJSON(apierr.ToRealtimeMessage(err, providerTag))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeAuthFailure, "authentication failed"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	if err := a.Quota.CheckAndReserveRequest(key); err != nil {
		conn, upErr := a.upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			return
		}
		_ = conn.WriteJSON(apierr.ToRealtimeMessage(err, providerTag))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeQuotaExceeded, "quota exceeded"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(r.Context(), "realtime upgrade failed")
		return
	}

	sessionID := uuid.NewString()
	limits := realtime.Limits{
		MaxBufferMs:       a.Config.Realtime.MaxBufferMs,
		LowWaterMs:        a.Config.Realtime.LowWaterMs,
		MaxIdleSeconds:    a.Config.Realtime.MaxIdleSeconds,
		MaxSessionMinutes: a.Config.Realtime.MaxSessionMinutes,
		APMSecondsPerMin:  a.Config.Realtime.APMAudioSecondsPerMin,
		RPMPerMinute:      a.Config.Realtime.RPMPerMinute,
	}

	session := realtime.NewSession(sessionID, key.ID, model, providerTag, conn, adapter, limits, func(id string) {
		a.RTSessions.Remove(id, key.ID)
	})

	if err := a.RTSessions.Admit(session); err != nil {
		_ = conn.WriteJSON(apierr.ToRealtimeMessage(err, providerTag))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeTooManySessions, "concurrency cap reached"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	_ = session.Created()
	go session.PumpUpstreamEvents()
	a.readClientLoop(session, conn)
}

// readClientLoop blocks reading client frames until the socket closes,
// pausing reads while the session is backpressured (§4.1 "paused flag
// implies read side paused").
func (a *App) readClientLoop(session *realtime.Session, conn *websocket.Conn) {
	ctx := context.Background()
	for {
		for session.IsPaused() {
			time.Sleep(50 * time.Millisecond)
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			session.Terminate(apierr.NewServer("client_disconnected", "client closed the connection"))
			return
		}
		session.HandleClientMessage(ctx, raw)
	}
}
