package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_DefaultIsDeterministic(t *testing.T) {
	p := Params{
		Model:    "gpt-4o-mini",
		Provider: "openai",
		Messages: []Message{{Role: "user", Content: "hello"}},
		Core:     map[string]any{"temperature": 0.7},
	}

	a := Fingerprint(StrategyDefault, p, 0)
	b := Fingerprint(StrategyDefault, p, 0)
	assert.Equal(t, a, b)
}

func TestFingerprint_DefaultChangesWithContent(t *testing.T) {
	p1 := Params{Model: "gpt-4o-mini", Messages: []Message{{Role: "user", Content: "hello"}}}
	p2 := Params{Model: "gpt-4o-mini", Messages: []Message{{Role: "user", Content: "goodbye"}}}
	assert.NotEqual(t, Fingerprint(StrategyDefault, p1, 0), Fingerprint(StrategyDefault, p2, 0))
}

func TestFingerprint_HexLenTruncates(t *testing.T) {
	p := Params{Model: "gpt-4o-mini", Messages: []Message{{Role: "user", Content: "hi"}}}
	key := Fingerprint(StrategyDefault, p, 16)
	assert.Len(t, key, 16)
}

func TestFingerprint_SemanticIgnoresCaseAndWhitespace(t *testing.T) {
	p1 := Params{Messages: []Message{{Role: "user", Content: "  Hello   World  "}}}
	p2 := Params{Messages: []Message{{Role: "user", Content: "hello world"}}}
	assert.Equal(t, Fingerprint(StrategySemantic, p1, 0), Fingerprint(StrategySemantic, p2, 0))
}

func TestFingerprint_HierarchicalEncodesProviderModelAndType(t *testing.T) {
	p := Params{Provider: "openai", Model: "gpt-4o-mini", RequestType: "chat", Messages: []Message{{Role: "user", Content: "hi"}}}
	key := Fingerprint(StrategyHierarchical, p, 0)
	assert.Contains(t, key, "llm_gateway:openai:gpt-4o-mini:chat:")
}

func TestFingerprint_ContentBasedIgnoresModelAndProvider(t *testing.T) {
	p1 := Params{Provider: "openai", Model: "a", Messages: []Message{{Role: "user", Content: "hi"}}}
	p2 := Params{Provider: "gemini", Model: "b", Messages: []Message{{Role: "user", Content: "hi"}}}
	assert.Equal(t, Fingerprint(StrategyContentBased, p1, 0), Fingerprint(StrategyContentBased, p2, 0))
}
