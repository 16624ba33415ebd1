// Package ctxkeys names the values the gateway carries on context.Context.
package ctxkeys

type key int

const (
	// CorrelationID is the per-request/per-session correlation id, taken from
	// X-Correlation-ID / X-Request-ID or generated at the edge.
	CorrelationID key = iota
	// KeyInfoID is the id of the resolved KeyInfo for the current request.
	KeyInfoID
	// ClientIP is the caller's remote address, used as a rate-limit key fallback.
	ClientIP
)
