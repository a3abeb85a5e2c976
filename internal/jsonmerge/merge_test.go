package jsonmerge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindObject, KindOf(decode(t, `{"a":1}`)))
	assert.Equal(t, KindArray, KindOf(decode(t, `[1,2]`)))
	assert.Equal(t, KindScalar, KindOf(decode(t, `"x"`)))
	assert.Equal(t, KindScalar, KindOf(decode(t, `3`)))
	assert.Equal(t, KindScalar, KindOf(decode(t, `null`)))
	assert.Equal(t, "array", KindArray.String())
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		stored   string
		incoming string
		want     string
	}{
		{
			name:     "nested objects merge recursively",
			stored:   `{"a":{"x":1,"y":2}}`,
			incoming: `{"a":{"y":3,"z":4}}`,
			want:     `{"a":{"x":1,"y":3,"z":4}}`,
		},
		{
			name:     "keys only in stored survive",
			stored:   `{"theme":"dark","units":"metric"}`,
			incoming: `{"units":"imperial"}`,
			want:     `{"theme":"dark","units":"imperial"}`,
		},
		{
			name:     "incoming scalar replaces stored object",
			stored:   `{"a":{"x":1}}`,
			incoming: `{"a":5}`,
			want:     `{"a":5}`,
		},
		{
			name:     "incoming object replaces stored scalar",
			stored:   `{"a":5}`,
			incoming: `{"a":{"x":1}}`,
			want:     `{"a":{"x":1}}`,
		},
		{
			name:     "incoming null wins",
			stored:   `{"a":{"x":1}}`,
			incoming: `{"a":null}`,
			want:     `{"a":null}`,
		},
		{
			name:     "deep nesting",
			stored:   `{"a":{"b":{"c":1,"d":2}}}`,
			incoming: `{"a":{"b":{"d":3}}}`,
			want:     `{"a":{"b":{"c":1,"d":3}}}`,
		},
		{
			name:     "top-level non-object incoming wins",
			stored:   `{"a":1}`,
			incoming: `[1,2]`,
			want:     `[1,2]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(decode(t, tt.stored), decode(t, tt.incoming))
			assert.Equal(t, decode(t, tt.want), got)
		})
	}
}

func TestMerge_ArraysAlwaysReplace(t *testing.T) {
	// Arrays are never merged element-wise, whatever the other side holds.
	cases := []struct {
		stored   string
		incoming string
	}{
		{`{"tags":["a","b","c"]}`, `{"tags":["z"]}`},
		{`{"tags":[{"id":1,"v":1}]}`, `{"tags":[{"id":1}]}`},
		{`{"tags":{"a":1}}`, `{"tags":[]}`},
		{`{"tags":["a"]}`, `{"tags":{"a":1}}`},
	}

	for _, c := range cases {
		got := Merge(decode(t, c.stored), decode(t, c.incoming))
		assert.Equal(t, decode(t, c.incoming), got, "stored=%s incoming=%s", c.stored, c.incoming)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	stored := decode(t, `{"a":{"x":1}}`)
	incoming := decode(t, `{"a":{"y":2}}`)

	Merge(stored, incoming)

	assert.Equal(t, decode(t, `{"a":{"x":1}}`), stored)
	assert.Equal(t, decode(t, `{"a":{"y":2}}`), incoming)
}

func TestMergeJSON(t *testing.T) {
	merged, err := MergeJSON(json.RawMessage(`{"a":{"x":1,"y":2}}`), json.RawMessage(`{"a":{"y":3,"z":4}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"x":1,"y":3,"z":4}}`, string(merged))

	merged, err = MergeJSON(nil, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(merged))

	_, err = MergeJSON(json.RawMessage(`{broken`), json.RawMessage(`{}`))
	assert.Error(t, err)
}
