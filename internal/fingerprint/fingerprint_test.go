package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeID_DeterministicAcrossReparse(t *testing.T) {
	id1 := NodeID("a.go", "function", "function identifier block", 42)
	id2 := NodeID("a.go", "function", "function identifier block", 42)

	assert.Equal(t, id1, id2)
}

func TestNodeID_DiffersByAnyInput(t *testing.T) {
	base := NodeID("a.go", "function", "function identifier block", 42)

	assert.NotEqual(t, base, NodeID("b.go", "function", "function identifier block", 42))
	assert.NotEqual(t, base, NodeID("a.go", "method", "function identifier block", 42))
	assert.NotEqual(t, base, NodeID("a.go", "function", "function identifier", 42))
	assert.NotEqual(t, base, NodeID("a.go", "function", "function identifier block", 43))
}

func TestQueryKey_DeterministicRegardlessOfMapOrder(t *testing.T) {
	k1, err := QueryKey("search", "foo bar", map[string]any{"a": 1, "b": 2}, 3)
	require.NoError(t, err)

	k2, err := QueryKey("search", "foo bar", map[string]any{"b": 2, "a": 1}, 3)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Regexp(t, `^query:search:[0-9a-f]{16}$`, k1)
}

func TestQueryKey_DiffersByIndexVersion(t *testing.T) {
	k1, err := QueryKey("search", "foo", nil, 1)
	require.NoError(t, err)
	k2, err := QueryKey("search", "foo", nil, 2)
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestCanonicalJSON_SortsKeys(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"z": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"z":1}`, out)
}

func TestCanonicalJSON_NilMapIsEmptyObject(t *testing.T) {
	out, err := CanonicalJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

func TestNormalizedShape_JoinsChildKinds(t *testing.T) {
	assert.Equal(t, "function identifier block", NormalizedShape("function", []string{"identifier", "block"}))
	assert.Equal(t, "comment", NormalizedShape("comment", nil))
}
