package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsObjectKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"volume": 0.5,
		"muted":  false,
		"ended":  true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ended":true,"muted":false,"volume":0.5}`, string(got))
}

func TestMarshalCanonical_NestedDeterminism(t *testing.T) {
	v := map[string]any{
		"state": map[string]any{
			"b": []any{1, "two", nil},
			"a": map[string]any{"y": 2.5, "x": "s"},
		},
	}
	first, err := MarshalCanonical(v)
	require.NoError(t, err)
	second, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, `{"state":{"a":{"x":"s","y":2.5},"b":[1,"two",null]}}`, string(first))
}

func TestMarshalCanonical_NormalizesStrings(t *testing.T) {
	// "é" composed vs decomposed must collapse to the same bytes.
	composed := "café"
	decomposed := "café"

	a, err := MarshalCanonical(composed)
	require.NoError(t, err)
	b, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical("a < b && c > d")
	require.NoError(t, err)
	assert.Equal(t, `"a < b && c > d"`, string(got))
}

func TestMarshalCanonical_TypedValues(t *testing.T) {
	type readiness int
	got, err := MarshalCanonical(map[string]any{
		"readyState": readiness(3),
		"rate":       float32(1.5),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"rate":1.5,"readyState":3}`, string(got))
}

func TestMarshalCanonical_StructFallback(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	got, err := MarshalCanonical(point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1,"y":2}`, string(got))
}
