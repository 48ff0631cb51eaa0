// Package schemas compiles collection JSON schemas and validates uploaded
// documents against them. Schema-declared date-time, uuid, and did string
// fields are converted to typed or canonical values after validation so the
// store receives native dates and normalized identifiers.
package schemas

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"nildb/domain"
	"nildb/pkg/coerce"
	"nildb/pkg/errors"
)

// fieldTarget names a schema-declared typed field.
type fieldTarget int

const (
	fieldDate fieldTarget = iota
	fieldUUID
	fieldDID
)

// Compiled pairs a compiled schema with the typed-field paths it declares.
type Compiled struct {
	schema    *jsonschema.Schema
	coercions map[string]fieldTarget
}

// Compile validates that a collection schema is itself well-formed and
// prepares it for document validation.
func Compile(raw map[string]any) (*Compiled, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("collection.json", normalize(raw)); err != nil {
		return nil, errors.Wrap(errors.KindDataValidation, "schema does not compile", err)
	}
	schema, err := compiler.Compile("collection.json")
	if err != nil {
		return nil, errors.Wrap(errors.KindDataValidation, "schema does not compile", err)
	}
	return &Compiled{
		schema:    schema,
		coercions: formatCoercions(raw, ""),
	}, nil
}

// Validate checks one uploaded document against the schema. Reserved system
// fields are outside the schema's vocabulary and are ignored.
func (c *Compiled) Validate(doc domain.Document) error {
	if err := c.schema.Validate(normalize(payloadOf(doc))); err != nil {
		return errors.Wrap(errors.KindDataValidation, "document does not match the collection schema", err)
	}
	return nil
}

// ApplyCoercions converts schema-declared date-time, uuid, and did string
// leaves of doc to typed or canonical values, in place.
func (c *Compiled) ApplyCoercions(doc domain.Document) error {
	for path, target := range c.coercions {
		value, present := lookup(doc, path)
		if !present {
			continue
		}
		var converted any
		var err error
		switch target {
		case fieldDate:
			converted, err = coerce.Value(value, coerce.TargetDate)
		case fieldUUID:
			converted, err = coerce.Value(value, coerce.TargetUUID)
		case fieldDID:
			converted, err = didValue(value)
		}
		if err != nil {
			return errors.Validationf("field %q: %v", path, err)
		}
		store(doc, path, converted)
	}
	return nil
}

// didValue normalizes a DID string (or a slice element-wise) to canonical
// lowercase-hex form.
func didValue(value any) (any, error) {
	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, element := range list {
			converted, err := didValue(element)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to did", value)
	}
	did, err := domain.ParseDID(s)
	if err != nil {
		return nil, fmt.Errorf("%q is not a DID", s)
	}
	return did.String(), nil
}

// payloadOf strips the reserved system fields before validation.
func payloadOf(doc domain.Document) map[string]any {
	payload := make(map[string]any, len(doc))
	for key, value := range doc {
		switch key {
		case domain.FieldID, domain.FieldCreated, domain.FieldUpdated, domain.FieldOwner, domain.FieldAcl:
			continue
		}
		payload[key] = value
	}
	return payload
}

// formatCoercions walks a schema collecting dotted paths of string fields
// whose format warrants a typed value in the store.
func formatCoercions(schema map[string]any, prefix string) map[string]fieldTarget {
	out := make(map[string]fieldTarget)

	if format, ok := schema["format"].(string); ok && prefix != "" {
		switch format {
		case "date-time":
			out[prefix] = fieldDate
		case "uuid":
			out[prefix] = fieldUUID
		case "did":
			out[prefix] = fieldDID
		}
	}

	if properties, ok := schema["properties"].(map[string]any); ok {
		for name, raw := range properties {
			child, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			path := name
			if prefix != "" {
				path = prefix + "." + name
			}
			for childPath, target := range formatCoercions(child, path) {
				out[childPath] = target
			}
		}
	}

	// Array items share their parent's path; conversion handles slices
	// element-wise.
	if items, ok := schema["items"].(map[string]any); ok {
		for childPath, target := range formatCoercions(items, prefix) {
			out[childPath] = target
		}
	}
	return out
}

func lookup(doc map[string]any, path string) (any, bool) {
	current := doc
	segments := splitPath(path)
	for i, segment := range segments {
		value, present := current[segment]
		if !present {
			return nil, false
		}
		if i == len(segments)-1 {
			return value, true
		}
		next, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

func store(doc map[string]any, path string, value any) {
	current := doc
	segments := splitPath(path)
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	return segments
}

// normalize rewrites Go maps into the shape the jsonschema package expects
// from its own JSON decoder.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, element := range v {
			out[key] = normalize(element)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, element := range v {
			out[i] = normalize(element)
		}
		return out
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}
