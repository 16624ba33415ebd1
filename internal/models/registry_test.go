package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clareai/llmgateway/internal/domain"
)

func TestRegistry_GetReturnsSeededModel(t *testing.T) {
	r := New(DefaultCatalog())
	m, ok := r.Get("gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, "openai", m.Provider)
}

func TestRegistry_GetMissingIsFalse(t *testing.T) {
	r := New(nil)
	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestRegistry_UpsertAddsNewEntry(t *testing.T) {
	r := New(nil)
	r.Upsert(domain.ModelInfo{ID: "custom-model", Provider: "openai", Type: "chat"})
	m, ok := r.Get("custom-model")
	require.True(t, ok)
	assert.Equal(t, "chat", m.Type)
}

func TestRegistry_List_IsStableIDOrder(t *testing.T) {
	r := New(DefaultCatalog())
	out := r.List(Filter{})
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i-1].ID <= out[i].ID)
	}
}

func TestRegistry_List_FiltersByProvider(t *testing.T) {
	r := New(DefaultCatalog())
	out := r.List(Filter{Provider: "gemini"})
	require.NotEmpty(t, out)
	for _, m := range out {
		assert.Equal(t, "gemini", m.Provider)
	}
}

func TestRegistry_List_FiltersBySearch(t *testing.T) {
	r := New(DefaultCatalog())
	out := r.List(Filter{Search: "embedding"})
	require.Len(t, out, 1)
	assert.Equal(t, "text-embedding-3-small", out[0].ID)
}

func TestRegistry_List_OffsetBeyondLengthReturnsNil(t *testing.T) {
	r := New(DefaultCatalog())
	out := r.List(Filter{Offset: 1000})
	assert.Nil(t, out)
}

func TestRegistry_List_LimitTruncates(t *testing.T) {
	r := New(DefaultCatalog())
	out := r.List(Filter{Limit: 2})
	assert.Len(t, out, 2)
}

func TestRegistry_ByCapability_FiltersRealtime(t *testing.T) {
	r := New(DefaultCatalog())
	out := r.ByCapability("realtime")
	require.Len(t, out, 2)
	for _, m := range out {
		assert.True(t, m.HasCapability("realtime"))
	}
}
