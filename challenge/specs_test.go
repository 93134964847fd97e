package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlag(t *testing.T) {
	f, err := ParseFlag("flag{plain}")
	require.NoError(t, err)
	assert.Equal(t, "flag{plain}", f.Compact())
	assert.Equal(t, map[string]any{"content": "flag{plain}", "type": "static", "challenge_id": 3}, f.Payload(3))

	f, err = ParseFlag(map[string]any{"content": "flag{.*}", "type": "regex", "data": "case_insensitive"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": "flag{.*}", "type": "regex", "data": "case_insensitive"}, f.Compact())
	assert.Equal(t, "case_insensitive", f.Payload(1)["data"])

	f, err = ParseFlag(map[string]any{"content": "flag{x}", "type": "static"})
	require.NoError(t, err)
	assert.Equal(t, "flag{x}", f.Compact())

	_, err = ParseFlag(map[string]any{"type": "static"})
	assert.Error(t, err)
	_, err = ParseFlag(12)
	assert.Error(t, err)
}

func TestParseHint(t *testing.T) {
	h, err := ParseHint("free")
	require.NoError(t, err)
	assert.Equal(t, "free", h.Compact())
	assert.Equal(t, 0, h.Payload(1)["cost"])

	h, err = ParseHint(map[string]any{"content": "paid", "cost": 25})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": "paid", "cost": 25}, h.Compact())

	h, err = ParseHint(map[string]any{"content": "zero", "cost": 0})
	require.NoError(t, err)
	assert.Equal(t, "zero", h.Compact())

	_, err = ParseHint(map[string]any{"content": "bad", "cost": "lots"})
	assert.Error(t, err)
}

func TestParseRequirement(t *testing.T) {
	r, err := ParseRequirement("Warmup")
	require.NoError(t, err)
	assert.False(t, r.ByID())
	assert.Equal(t, "Warmup", r.String())

	r, err = ParseRequirement(12)
	require.NoError(t, err)
	assert.True(t, r.ByID())
	assert.Equal(t, 12, r.ID)

	_, err = ParseRequirement(map[string]any{})
	assert.Error(t, err)
}
