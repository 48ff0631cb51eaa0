package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nildb/domain"
	"nildb/pkg/errors"
)

func matchPipeline() []map[string]any {
	return []map[string]any{
		{"$match": map[string]any{"age": float64(0)}},
		{"$sort": map[string]any{"_created": float64(-1)}},
	}
}

func TestParsePath(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"stage field", "$.pipeline.0.$match.age", false},
		{"bracket index", "$.pipeline.0.$match.tags[2]", false},
		{"stage only", "$.pipeline.1", false},
		{"relative", "pipeline.0.$match.age", true},
		{"wrong root", "$.stages.0.$match", true},
		{"no stage index", "$.pipeline.$match", true},
		{"empty segment", "$.pipeline.0..age", true},
		{"negative bracket", "$.pipeline.0.tags[-1]", true},
		{"bare dollar", "$", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePath(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindQueryValidation, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateStages(t *testing.T) {
	require.NoError(t, ValidateStages(matchPipeline()))

	bad := []map[string]any{{"$merge": map[string]any{"into": "other"}}}
	err := ValidateStages(bad)
	require.Error(t, err)
	assert.Equal(t, errors.KindQueryValidation, errors.KindOf(err))

	twoOps := []map[string]any{{"$match": map[string]any{}, "$limit": float64(1)}}
	require.Error(t, ValidateStages(twoOps))

	require.Error(t, ValidateStages(nil), "empty pipeline is rejected")
}

func TestValidateVariables(t *testing.T) {
	stages := matchPipeline()

	ok := map[string]domain.QueryVariable{
		"x": {Path: "$.pipeline.0.$match.age"},
	}
	require.NoError(t, ValidateVariables(ok, stages))

	outOfRange := map[string]domain.QueryVariable{
		"x": {Path: "$.pipeline.5.foo"},
	}
	err := ValidateVariables(outOfRange, stages)
	require.Error(t, err)
	assert.Equal(t, errors.KindQueryValidation, errors.KindOf(err))

	missingField := map[string]domain.QueryVariable{
		"x": {Path: "$.pipeline.0.$match.height"},
	}
	require.Error(t, ValidateVariables(missingField, stages))
}

func TestCheckProvided(t *testing.T) {
	template := map[string]domain.QueryVariable{
		"x": {Path: "$.pipeline.0.$match.age"},
		"y": {Path: "$.pipeline.1.$sort._created", Optional: true},
	}

	t.Run("accepts primitives and homogeneous arrays", func(t *testing.T) {
		out, err := CheckProvided(template, map[string]any{"x": float64(42)})
		require.NoError(t, err)
		assert.Equal(t, float64(42), out["x"])

		_, err = CheckProvided(template, map[string]any{"x": []any{"a", "b"}})
		require.NoError(t, err)
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := CheckProvided(template, map[string]any{})
		require.Error(t, err)
		assert.Equal(t, errors.KindVariableInjection, errors.KindOf(err))
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := CheckProvided(template, map[string]any{"x": float64(1), "z": float64(2)})
		require.Error(t, err)
	})

	t.Run("mixed array", func(t *testing.T) {
		_, err := CheckProvided(template, map[string]any{"x": []any{"a", float64(1)}})
		require.Error(t, err)
	})

	t.Run("object value", func(t *testing.T) {
		_, err := CheckProvided(template, map[string]any{"x": map[string]any{"$gt": float64(1)}})
		require.Error(t, err)
	})

	t.Run("coerce honoured then stripped", func(t *testing.T) {
		out, err := CheckProvided(template, map[string]any{
			"x":       "42",
			"$coerce": map[string]any{"x": "number"},
		})
		require.NoError(t, err)
		assert.Equal(t, float64(42), out["x"])
		assert.NotContains(t, out, "$coerce")
	})
}

func TestInjectRoundTrip(t *testing.T) {
	template := map[string]domain.QueryVariable{
		"x": {Path: "$.pipeline.0.$match.age"},
	}
	stages := matchPipeline()

	injected, err := Inject(template, stages, map[string]any{"x": float64(42)})
	require.NoError(t, err)

	segments, err := ParsePath(template["x"].Path)
	require.NoError(t, err)
	got, ok := Read(injected, segments)
	require.True(t, ok)
	assert.Equal(t, float64(42), got)

	// The stored pipeline is untouched.
	original, ok := Read(stages, segments)
	require.True(t, ok)
	assert.Equal(t, float64(0), original)
}

func TestInjectIntoArrayPosition(t *testing.T) {
	stages := []map[string]any{
		{"$match": map[string]any{"age": map[string]any{"$in": []any{float64(0), float64(0)}}}},
	}
	template := map[string]domain.QueryVariable{
		"first": {Path: "$.pipeline.0.$match.age.$in[0]"},
	}

	injected, err := Inject(template, stages, map[string]any{"first": float64(7)})
	require.NoError(t, err)

	segments, _ := ParsePath("$.pipeline.0.$match.age.$in[0]")
	got, ok := Read(injected, segments)
	require.True(t, ok)
	assert.Equal(t, float64(7), got)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "$match,$sort", Describe(matchPipeline()))
}
