package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"null", nil, "null"},
		{"number literal", json.Number("1.50"), "1.50"},
		{"int", 42, "42"},
		{"bool true", true, "true"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"control escaped", "a\nb\x01", `"a\nb\u0001"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": json.Number("1"),
		"alpha": map[string]any{"b": true, "a": false},
		"beta":  []any{"x"},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":false,"b":true},"beta":["x"],"zebra":1}`, string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"v": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "é" as e + combining acute vs the precomposed code point.
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestPayloadHashIgnoresFormatting(t *testing.T) {
	a := []byte(`{"title":"Brain Study","dmp_id":{"type":"doi","identifier":"10.1/abc"}}`)
	b := []byte(`{
		"dmp_id": {"identifier": "10.1/abc", "type": "doi"},
		"title": "Brain Study"
	}`)

	ha, err := PayloadHash(a)
	require.NoError(t, err)
	hb, err := PayloadHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestPayloadHashRejectsInvalidJSON(t *testing.T) {
	_, err := PayloadHash([]byte(`{"title":`))
	require.Error(t, err)
}
