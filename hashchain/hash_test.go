package hashchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeKeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1, "c": map[string]interface{}{"z": 1, "y": 2}}
	b := map[string]interface{}{"c": map[string]interface{}{"y": 2, "z": 1}, "a": 1, "b": 2}

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)

	assert.Equal(t, string(ca), string(cb))
}

func TestCanonicalizeDiffersForDifferentShapes(t *testing.T) {
	a := map[string]interface{}{"x": 1}
	b := map[string]interface{}{"x": 2}

	ca, _ := Canonicalize(a)
	cb, _ := Canonicalize(b)

	assert.NotEqual(t, string(ca), string(cb))
}

func TestCanonicalizeNoWhitespace(t *testing.T) {
	v := map[string]interface{}{"a": 1, "b": []interface{}{1, 2, 3}}
	c, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":[1,2,3]}`, string(c))
}

func TestCanonicalizeIntegralFloatsDropTrailingZero(t *testing.T) {
	v := map[string]interface{}{"speed": 0.6, "count": 3.0}
	c, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"count":3,"speed":0.6}`, string(c))
}

func TestHashIsDeterministic(t *testing.T) {
	v := map[string]interface{}{"run_id": "run-1", "ts": 123, "type": "PLAN"}
	h1, err := Hash(v)
	require.NoError(t, err)
	h2, err := Hash(v)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashChangesWithPayload(t *testing.T) {
	v1 := map[string]interface{}{"run_id": "run-1", "payload": map[string]interface{}{"x": 1}}
	v2 := map[string]interface{}{"run_id": "run-1", "payload": map[string]interface{}{"x": 2}}

	h1, _ := Hash(v1)
	h2, _ := Hash(v2)
	assert.NotEqual(t, h1, h2)
}

func TestCanonicalizeRejectsNonFiniteNumbers(t *testing.T) {
	// NaN/Inf cannot be represented in JSON in the first place, so
	// json.Marshal in normalize() fails before encode() ever runs.
	type bad struct {
		V float64
	}
	_, err := Canonicalize(bad{V: 1.0 / zero()})
	require.Error(t, err)
}

func zero() float64 { return 0 }
