package realtime

import "context"

// ProviderEvent is the raw, provider-specific event handed to the
// normalizer; Kind is the provider's own event-type string.
type ProviderEvent struct {
	Kind string
	Data map[string]any
}

// Adapter is the upstream adapter contract (§2 component G). Provider
// adapters (OpenAI, Gemini) implement this over their own WebSocket wire
// format; the session only ever talks to this interface.
type Adapter interface {
	// Connect dials the upstream and begins delivering ProviderEvents on
	// the channel returned by Events.
	Connect(ctx context.Context, cfg SessionConfig) error
	// AppendAudioBase64 forwards one base64 PCM16 frame. Returns false on
	// soft backpressure (queue full / upstream not ready yet); the caller
	// must re-enqueue and retry.
	AppendAudioBase64(frame string) bool
	// CommitAudio ends the current turn and requests a final result.
	CommitAudio() error
	// ClearAudio discards buffered, uncommitted audio.
	ClearAudio() error
	// Events returns the channel of normalized-candidate provider events.
	Events() <-chan ProviderEvent
	// Close tears down the upstream connection.
	Close() error
}

// AdapterFactory builds an Adapter for one provider.
type AdapterFactory func() Adapter

// ProviderRegistry resolves a model id to the provider tag and adapter
// factory that serve it, mirroring the provider-factory-registration idiom
// used by the non-realtime handler layer.
type ProviderRegistry struct {
	byModel map[string]providerBinding
}

type providerBinding struct {
	provider string
	factory  AdapterFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{byModel: make(map[string]providerBinding)}
}

// Register binds every model id in models to provider/factory.
func (r *ProviderRegistry) Register(provider string, factory AdapterFactory, models ...string) {
	for _, m := range models {
		r.byModel[m] = providerBinding{provider: provider, factory: factory}
	}
}

// Resolve returns the provider tag and a fresh Adapter for model, or false
// if no adapter is registered for it.
func (r *ProviderRegistry) Resolve(model string) (string, Adapter, bool) {
	b, ok := r.byModel[model]
	if !ok {
		return "", nil, false
	}
	return b.provider, b.factory(), true
}
