package idb

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyPath(t *testing.T) {
	valid := []any{nil, "", "id", "a.b.c", "$x", "_y1", []string{"a", "b.c"}, []any{"a"}}
	for _, v := range valid {
		_, err := parseKeyPath(v)
		assert.NoError(t, err, "%#v", v)
	}

	invalid := []any{"1a", "a..b", "a.", "a-b", []string{}, []string{""}, []any{1}, 42}
	for _, v := range invalid {
		_, err := parseKeyPath(v)
		require.Error(t, err, "%#v", v)
		assert.Equal(t, SyntaxError, ErrorName(err))
	}
}

func TestKeyPathEvaluate(t *testing.T) {
	value := map[string]any{
		"id":   1.0,
		"name": "abc",
		"user": map[string]any{"email": "a@b"},
		"tags": []any{"x", "y"},
		"bad":  true,
	}

	tests := []struct {
		name    string
		path    any
		want    Key
		ok      bool
		errName string
	}{
		{name: "top_level", path: "id", want: 1.0, ok: true},
		{name: "nested", path: "user.email", want: "a@b", ok: true},
		{name: "string_length", path: "name.length", want: 3.0, ok: true},
		{name: "array_length", path: "tags.length", want: 2.0, ok: true},
		{name: "compound", path: []string{"id", "name"}, want: []any{1.0, "abc"}, ok: true},
		{name: "missing", path: "nope", ok: false},
		{name: "compound_missing", path: []string{"id", "nope"}, ok: false},
		{name: "invalid_key", path: "bad", ok: true, errName: DataError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kp, err := parseKeyPath(tc.path)
			require.NoError(t, err)

			got, ok, err := kp.evaluate(value)
			assert.Equal(t, tc.ok, ok)
			if tc.errName != "" {
				assert.Equal(t, tc.errName, ErrorName(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestKeyPathInject(t *testing.T) {
	kp, err := parseKeyPath("meta.id")
	require.NoError(t, err)

	value := map[string]any{"name": "n"}
	require.True(t, kp.canInject(value))
	kp.inject(value, 4.0)
	assert.Equal(t, map[string]any{"name": "n", "meta": map[string]any{"id": 4.0}}, value)

	assert.False(t, kp.canInject("scalar"))
	assert.False(t, kp.canInject(map[string]any{"meta": "scalar"}))
	assert.False(t, kp.canInject(map[string]any{"meta": map[string]any{"id": 1.0}}))
}

func TestKeyPathJSON(t *testing.T) {
	for _, v := range []any{nil, "a.b", []string{"x", "y"}} {
		kp, err := parseKeyPath(v)
		require.NoError(t, err)

		raw, err := json.Marshal(kp)
		require.NoError(t, err)

		var back keyPath
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, kp, back)
	}
}
