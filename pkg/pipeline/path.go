// Package pipeline implements the saved-query pipeline machinery: the
// grammar check for permitted stages, variable path parsing, execution-time
// variable validation, and positional injection into a cloned pipeline.
package pipeline

import (
	"strconv"
	"strings"

	"nildb/pkg/errors"
)

// Segment is one step of a variable path below the pipeline root. A segment
// is either a map key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// ParsePath parses a template path of the form
// $.pipeline.<stage>.<field>... with optional [n] brackets, returning the
// segments below "pipeline". Relative paths and paths rooted elsewhere are
// rejected.
func ParsePath(path string) ([]Segment, error) {
	if !strings.HasPrefix(path, "$") {
		return nil, errors.QueryValidation("variable path must be absolute (start with $)")
	}
	rest := strings.TrimPrefix(path, "$")
	rest = strings.TrimPrefix(rest, ".")
	tokens := strings.Split(rest, ".")
	if len(tokens) < 2 || tokens[0] != "pipeline" {
		return nil, errors.Newf(errors.KindQueryValidation, "variable path %q must start at $.pipeline", path)
	}

	var segments []Segment
	for _, token := range tokens[1:] {
		parsed, err := parseToken(path, token)
		if err != nil {
			return nil, err
		}
		segments = append(segments, parsed...)
	}
	if len(segments) == 0 {
		return nil, errors.Newf(errors.KindQueryValidation, "variable path %q names no position", path)
	}
	if !segments[0].IsIndex {
		return nil, errors.Newf(errors.KindQueryValidation, "variable path %q must index a pipeline stage", path)
	}
	return segments, nil
}

// parseToken splits a dotted token like "tags[2][0]" into a key segment and
// trailing index segments. A purely numeric token is an index segment.
func parseToken(path, token string) ([]Segment, error) {
	if token == "" {
		return nil, errors.Newf(errors.KindQueryValidation, "variable path %q has an empty segment", path)
	}

	key := token
	var brackets []string
	for {
		open := strings.LastIndex(key, "[")
		if open < 0 || !strings.HasSuffix(key, "]") {
			break
		}
		brackets = append([]string{key[open+1 : len(key)-1]}, brackets...)
		key = key[:open]
	}

	var segments []Segment
	if key != "" {
		if index, err := strconv.Atoi(key); err == nil {
			segments = append(segments, Segment{Index: index, IsIndex: true})
		} else {
			segments = append(segments, Segment{Key: key})
		}
	}
	for _, bracket := range brackets {
		index, err := strconv.Atoi(bracket)
		if err != nil || index < 0 {
			return nil, errors.Newf(errors.KindQueryValidation, "variable path %q has invalid index [%s]", path, bracket)
		}
		segments = append(segments, Segment{Index: index, IsIndex: true})
	}
	if len(segments) == 0 {
		return nil, errors.Newf(errors.KindQueryValidation, "variable path %q has an empty segment", path)
	}
	return segments, nil
}

// resolve walks the pipeline to the parent of the addressed position and
// returns a setter plus the current value. exists is false when any step of
// the walk fails.
func resolve(pipeline []map[string]any, segments []Segment) (get func() any, set func(any), exists bool) {
	if len(segments) == 0 {
		return nil, nil, false
	}
	stage := segments[0]
	if !stage.IsIndex || stage.Index < 0 || stage.Index >= len(pipeline) {
		return nil, nil, false
	}

	var container any = pipeline[stage.Index]
	rest := segments[1:]
	if len(rest) == 0 {
		return func() any { return pipeline[stage.Index] },
			func(v any) {
				if m, ok := v.(map[string]any); ok {
					pipeline[stage.Index] = m
				}
			}, true
	}

	for i := 0; i < len(rest)-1; i++ {
		next, ok := step(container, rest[i])
		if !ok {
			return nil, nil, false
		}
		container = next
	}

	last := rest[len(rest)-1]
	switch parent := container.(type) {
	case map[string]any:
		if last.IsIndex {
			return nil, nil, false
		}
		if _, present := parent[last.Key]; !present {
			return nil, nil, false
		}
		return func() any { return parent[last.Key] },
			func(v any) { parent[last.Key] = v }, true
	case []any:
		if !last.IsIndex || last.Index < 0 || last.Index >= len(parent) {
			return nil, nil, false
		}
		return func() any { return parent[last.Index] },
			func(v any) { parent[last.Index] = v }, true
	default:
		return nil, nil, false
	}
}

func step(container any, segment Segment) (any, bool) {
	switch parent := container.(type) {
	case map[string]any:
		if segment.IsIndex {
			return nil, false
		}
		child, present := parent[segment.Key]
		return child, present
	case []any:
		if !segment.IsIndex || segment.Index < 0 || segment.Index >= len(parent) {
			return nil, false
		}
		return parent[segment.Index], true
	default:
		return nil, false
	}
}

// Exists reports whether the path resolves to a position inside pipeline.
func Exists(pipeline []map[string]any, segments []Segment) bool {
	_, _, exists := resolve(pipeline, segments)
	return exists
}

// Read returns the value at the path. Used by injection tests and the
// round-trip property.
func Read(pipeline []map[string]any, segments []Segment) (any, bool) {
	get, _, exists := resolve(pipeline, segments)
	if !exists {
		return nil, false
	}
	return get(), true
}

// Write replaces the value at the path.
func Write(pipeline []map[string]any, segments []Segment, value any) bool {
	_, set, exists := resolve(pipeline, segments)
	if !exists {
		return false
	}
	set(value)
	return true
}
