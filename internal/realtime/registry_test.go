package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AdmitUnderCapsSucceeds(t *testing.T) {
	r := NewRegistry(10, 2)
	require.NoError(t, r.Admit(&Session{ID: "s1", KeyID: "k1"}))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Admit_RejectsAtGlobalCap(t *testing.T) {
	r := NewRegistry(1, 10)
	require.NoError(t, r.Admit(&Session{ID: "s1", KeyID: "k1"}))
	assert.Error(t, r.Admit(&Session{ID: "s2", KeyID: "k2"}))
}

func TestRegistry_Admit_RejectsAtPerKeyCap(t *testing.T) {
	r := NewRegistry(10, 1)
	require.NoError(t, r.Admit(&Session{ID: "s1", KeyID: "k1"}))
	assert.Error(t, r.Admit(&Session{ID: "s2", KeyID: "k1"}))
	assert.NoError(t, r.Admit(&Session{ID: "s3", KeyID: "k2"}))
}

func TestRegistry_Remove_FreesPerKeySlot(t *testing.T) {
	r := NewRegistry(10, 1)
	require.NoError(t, r.Admit(&Session{ID: "s1", KeyID: "k1"}))
	r.Remove("s1", "k1")
	assert.Equal(t, 0, r.Count())
	assert.NoError(t, r.Admit(&Session{ID: "s2", KeyID: "k1"}))
}

func TestRegistry_Remove_IsIdempotent(t *testing.T) {
	r := NewRegistry(10, 1)
	r.Remove("missing", "k1")
	assert.Equal(t, 0, r.Count())
}
