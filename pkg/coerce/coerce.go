// Package coerce rewrites scalar leaves of filter/update documents to typed
// values. Callers mark paths with a $coerce map at any object level, which
// covers operator branches such as $or; the interpreter strips each map and
// rewrites the marked leaves before the document is forwarded to the store.
package coerce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nildb/pkg/errors"
)

// Key is the reserved field naming the coercion map inside a document.
const Key = "$coerce"

// Target enumerates the closed set of coercion types.
type Target string

const (
	TargetString  Target = "string"
	TargetNumber  Target = "number"
	TargetBoolean Target = "boolean"
	TargetDate    Target = "date"
	TargetUUID    Target = "uuid"
)

// Apply extracts and strips the $coerce map from doc and from every nested
// object, then rewrites each marked leaf in place. Paths resolve relative to
// the object carrying the map. doc is returned for chaining. A missing path
// is an error: a caller asking for a coercion that cannot happen is a bug on
// their side.
func Apply(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	if raw, present := doc[Key]; present {
		delete(doc, Key)

		spec, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Validation("$coerce must be an object mapping field paths to types")
		}
		for path, target := range spec {
			targetName, ok := target.(string)
			if !ok {
				return nil, errors.Validationf("$coerce target for %q must be a string", path)
			}
			if err := coercePath(doc, path, Target(targetName)); err != nil {
				return nil, err
			}
		}
	}

	for _, value := range doc {
		if err := applyNested(value); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func applyNested(value any) error {
	switch v := value.(type) {
	case map[string]any:
		_, err := Apply(v)
		return err
	case []any:
		for _, element := range v {
			if err := applyNested(element); err != nil {
				return err
			}
		}
	}
	return nil
}

func coercePath(doc map[string]any, path string, target Target) error {
	segments := strings.Split(path, ".")
	current := doc
	for i, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return errors.Validationf("$coerce path %q does not resolve at %q", path, strings.Join(segments[:i+1], "."))
		}
		current = next
	}
	leaf := segments[len(segments)-1]
	value, present := current[leaf]
	if !present {
		return errors.Validationf("$coerce path %q does not resolve", path)
	}
	coerced, err := Value(value, target)
	if err != nil {
		return errors.Validationf("$coerce path %q: %v", path, err)
	}
	current[leaf] = coerced
	return nil
}

// Value converts a single scalar (or a slice of scalars element-wise) to
// the target type.
func Value(value any, target Target) (any, error) {
	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, element := range list {
			converted, err := Value(element, target)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	}

	switch target {
	case TargetString:
		return toString(value)
	case TargetNumber:
		return toNumber(value)
	case TargetBoolean:
		return toBoolean(value)
	case TargetDate:
		return toDate(value)
	case TargetUUID:
		return toUUID(value)
	default:
		return nil, fmt.Errorf("unknown coercion type %q", target)
	}
}

func toString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to string", value)
	}
}

func toNumber(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to number", value)
	}
}

func toBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", v)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

func toDate(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%q is not an RFC-3339 timestamp", v)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to date", value)
	}
}

func toUUID(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to uuid", value)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%q is not a UUID", s)
	}
	return parsed.String(), nil
}
