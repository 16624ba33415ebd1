// Package apierr implements the gateway's error taxonomy and its JSON
// envelope, shared by the HTTP surface and the realtime WebSocket surface.
package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Type is the machine-readable error category. Both HTTP responses and
// realtime "error" messages carry one of these.
type Type string

const (
	Validation     Type = "validation_error"
	Authentication Type = "authentication_error"
	Authorization  Type = "authorization_error"
	NotFound       Type = "not_found_error"
	TooLarge       Type = "payload_too_large"
	UnsupportedMT  Type = "unsupported_media_type"
	RateLimited    Type = "rate_limit_error"
	QuotaExceeded  Type = "quota_exceeded_error"
	Upstream       Type = "upstream_error"
	Timeout        Type = "timeout_error"
	Server         Type = "server_error"
)

var statusByType = map[Type]int{
	Validation:     http.StatusBadRequest,
	Authentication: http.StatusUnauthorized,
	Authorization:  http.StatusForbidden,
	NotFound:       http.StatusNotFound,
	TooLarge:       http.StatusRequestEntityTooLarge,
	UnsupportedMT:  http.StatusUnsupportedMediaType,
	RateLimited:    http.StatusTooManyRequests,
	QuotaExceeded:  http.StatusTooManyRequests,
	Upstream:       http.StatusBadGateway,
	Timeout:        http.StatusGatewayTimeout,
	Server:         http.StatusInternalServerError,
}

// Error is the concrete error type carried through the gateway. Code is a
// short machine token ("bad_json", "apm_exceeded", ...); Details is an
// optional structured payload (validation field path, retry-after, etc).
type Error struct {
	ErrType  Type
	Code     string
	Message  string
	Details  map[string]any
	Wrapped  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrType, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Status returns the HTTP status code for this error's type.
func (e *Error) Status() int {
	if s, ok := statusByType[e.ErrType]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newErr(t Type, code, msg string) *Error {
	return &Error{ErrType: t, Code: code, Message: msg}
}

func NewValidation(code, msg string) *Error     { return newErr(Validation, code, msg) }
func NewAuthentication(code, msg string) *Error { return newErr(Authentication, code, msg) }
func NewAuthorization(code, msg string) *Error  { return newErr(Authorization, code, msg) }
func NewNotFound(code, msg string) *Error       { return newErr(NotFound, code, msg) }
func NewTooLarge(code, msg string) *Error       { return newErr(TooLarge, code, msg) }
func NewUnsupportedMT(code, msg string) *Error  { return newErr(UnsupportedMT, code, msg) }
func NewRateLimited(code, msg string) *Error    { return newErr(RateLimited, code, msg) }
func NewUpstream(code, msg string) *Error       { return newErr(Upstream, code, msg) }
func NewTimeout(code, msg string) *Error        { return newErr(Timeout, code, msg) }
func NewServer(code, msg string) *Error         { return newErr(Server, code, msg) }

// NewQuotaExceeded builds a QuotaExceededError carrying the fields needed
// to compute Retry-After and the JSON reset_time.
func NewQuotaExceeded(limit, used int64, reset time.Time) *Error {
	return &Error{
		ErrType: QuotaExceeded,
		Code:    "quota_exceeded",
		Message: "quota exceeded",
		Details: map[string]any{
			"limit":      limit,
			"used":       used,
			"reset_time": reset.UTC().Format(time.RFC3339),
		},
	}
}

// envelope is the wire shape: { "error": { type, code, message, details? } }.
type envelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Type    Type           `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AsAPIError coerces any error into *Error, defaulting to ServerError.
func AsAPIError(err error) *Error {
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return NewServer("internal_error", err.Error())
}

// WriteError writes err as the JSON error envelope and sets the
// X-Correlation-ID header from correlationID.
func WriteError(w http.ResponseWriter, err error, correlationID string) {
	apiErr := AsAPIError(err)
	w.Header().Set("Content-Type", "application/json")
	if correlationID != "" {
		w.Header().Set("X-Correlation-ID", correlationID)
	}
	if apiErr.ErrType == QuotaExceeded {
		if reset, ok := apiErr.Details["reset_time"].(string); ok {
			if t, parseErr := time.Parse(time.RFC3339, reset); parseErr == nil {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int64(time.Until(t).Seconds())))
			}
		}
	}
	w.WriteHeader(apiErr.Status())
	_ = json.NewEncoder(w).Encode(envelope{Error: envelopeBody{
		Type:    apiErr.ErrType,
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}})
}

// RealtimeMessage is the { type: "error", code, message, provider?, details? }
// shape used by the WebSocket surface.
type RealtimeMessage struct {
	Type     string         `json:"type"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Provider string         `json:"provider,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// ToRealtimeMessage converts err into the realtime error envelope.
func ToRealtimeMessage(err error, provider string) RealtimeMessage {
	apiErr := AsAPIError(err)
	return RealtimeMessage{
		Type:     "error",
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Provider: provider,
		Details:  apiErr.Details,
	}
}
