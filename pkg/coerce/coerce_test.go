package coerce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRewritesMarkedLeaves(t *testing.T) {
	doc := map[string]any{
		"age":  "42",
		"flag": "true",
		"meta": map[string]any{
			"created": "2025-05-01T10:00:00Z",
		},
		"id": "11111111-1111-1111-1111-111111111111",
		Key: map[string]any{
			"age":          "number",
			"flag":         "boolean",
			"meta.created": "date",
			"id":           "uuid",
		},
	}

	out, err := Apply(doc)
	require.NoError(t, err)

	assert.NotContains(t, out, Key)
	assert.Equal(t, float64(42), out["age"])
	assert.Equal(t, true, out["flag"])
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", out["id"])

	meta := out["meta"].(map[string]any)
	created, ok := meta["created"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2025, created.Year())
}

func TestApplyWithoutCoerceIsNoop(t *testing.T) {
	doc := map[string]any{"age": "42"}
	out, err := Apply(doc)
	require.NoError(t, err)
	assert.Equal(t, "42", out["age"])
}

func TestApplyCoercesArrayElementwise(t *testing.T) {
	doc := map[string]any{
		"ages": []any{"1", "2", "3"},
		Key:    map[string]any{"ages": "number"},
	}

	out, err := Apply(doc)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, out["ages"])
}

func TestApplyReachesNestedOperatorBranches(t *testing.T) {
	doc := map[string]any{
		"$or": []any{
			map[string]any{
				"when": "2025-05-01T10:00:00Z",
				Key:    map[string]any{"when": "date"},
			},
			map[string]any{
				"count": "7",
				Key:     map[string]any{"count": "number"},
			},
		},
	}

	out, err := Apply(doc)
	require.NoError(t, err)

	branches := out["$or"].([]any)
	first := branches[0].(map[string]any)
	assert.NotContains(t, first, Key)
	when, ok := first["when"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2025, when.Year())

	second := branches[1].(map[string]any)
	assert.NotContains(t, second, Key)
	assert.Equal(t, float64(7), second["count"])
}

func TestApplyErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]any
	}{
		{"missing path", map[string]any{Key: map[string]any{"nope": "number"}}},
		{"bad number", map[string]any{"v": "abc", Key: map[string]any{"v": "number"}}},
		{"bad boolean", map[string]any{"v": "yep", Key: map[string]any{"v": "boolean"}}},
		{"bad date", map[string]any{"v": "2025-13-99", Key: map[string]any{"v": "date"}}},
		{"bad uuid", map[string]any{"v": "not-a-uuid", Key: map[string]any{"v": "uuid"}}},
		{"unknown target", map[string]any{"v": "1", Key: map[string]any{"v": "decimal128"}}},
		{"non-object coerce", map[string]any{"v": "1", Key: "number"}},
		{"path through scalar", map[string]any{"v": 1, Key: map[string]any{"v.deep": "number"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(tc.doc)
			require.Error(t, err)
		})
	}
}

func TestValueStringConversions(t *testing.T) {
	got, err := Value(float64(3.5), TargetString)
	require.NoError(t, err)
	assert.Equal(t, "3.5", got)

	got, err = Value(true, TargetString)
	require.NoError(t, err)
	assert.Equal(t, "true", got)
}
