// Package domain holds the gateway's core data model, independent of
// transport or storage backend.
package domain

import "time"

// KeyKind distinguishes gateway-issued credentials from client-supplied
// provider keys.
type KeyKind string

const (
	KeyKindGateway KeyKind = "gateway"
	KeyKindClient  KeyKind = "client"
)

// QuotaDescriptor declares request and token ceilings for an hour and a day.
type QuotaDescriptor struct {
	RequestsPerHour int64
	TokensPerHour   int64
	RequestsPerDay  int64
	TokensPerDay    int64
}

// KeyInfo is the identity record behind an inbound credential.
type KeyInfo struct {
	ID              string
	DisplayName     string
	Kind            KeyKind
	Provider        string // inferred from credential prefix for client-kind keys
	Enabled         bool
	Quota           QuotaDescriptor
	RequestsPerMin  int
	CreatedAt       time.Time
	Metadata        map[string]string
}

// UsageWindow is a single (date, hour) bucket of aggregated usage.
type UsageWindow struct {
	Date     string // YYYY-MM-DD
	Hour     int    // 0-23
	Requests int64
	Tokens   int64
}

// UsageCounter aggregates request/token counts per KeyInfo across windows.
// Windows older than 7 days are reaped by the owning tracker.
type UsageCounter struct {
	KeyID   string
	Windows map[string]*UsageWindow // keyed by "YYYY-MM-DD:HH"
}

// BucketKind names the subject a rate-limit bucket is scoped to.
type BucketKind string

const (
	BucketKindAPI  BucketKind = "api"
	BucketKindUser BucketKind = "user"
	BucketKindIP   BucketKind = "ip"
)

// VADMode is the voice-activity-detection strategy negotiated for a
// realtime session.
type VADMode string

const (
	VADManual     VADMode = "manual"
	VADServer     VADMode = "server_vad"
	VADSemantic   VADMode = "semantic_vad"
)

// CacheEntry is the value stored under a fingerprint key.
type CacheEntry struct {
	StatusCode int
	Body       []byte
	Model      string
	Provider   string
	CreatedAt  time.Time
}

// ModelInfo is a catalog entry backing /v1/models*.
type ModelInfo struct {
	ID            string
	Provider      string
	Type          string // chat|embedding|audio|realtime
	Capabilities  []string
	ContextWindow int
	Deprecated    bool
}

// HasCapability reports whether the model advertises cap.
func (m ModelInfo) HasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
