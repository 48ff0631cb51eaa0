package pipeline

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"nildb/domain"
	"nildb/pkg/coerce"
	"nildb/pkg/errors"
)

// grammar is the fixed JSON schema describing permitted pipeline stages.
// Stage bodies are left open; the grammar pins the operator set and the
// one-operator-per-stage shape.
const grammar = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "minProperties": 1,
    "maxProperties": 1,
    "properties": {
      "$addFields": {"type": "object"},
      "$count": {"type": "string"},
      "$group": {"type": "object"},
      "$limit": {"type": "integer", "minimum": 1},
      "$match": {"type": "object"},
      "$project": {"type": "object"},
      "$sample": {"type": "object"},
      "$skip": {"type": "integer", "minimum": 0},
      "$sort": {"type": "object"},
      "$unwind": {"type": ["string", "object"]}
    },
    "additionalProperties": false
  }
}`

var (
	grammarOnce   sync.Once
	grammarSchema *jsonschema.Schema
	grammarErr    error
)

func compiledGrammar() (*jsonschema.Schema, error) {
	grammarOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(grammar))
		if err != nil {
			grammarErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("pipeline.json", doc); err != nil {
			grammarErr = err
			return
		}
		grammarSchema, grammarErr = compiler.Compile("pipeline.json")
	})
	return grammarSchema, grammarErr
}

// ValidateStages checks the pipeline against the stage grammar.
func ValidateStages(stages []map[string]any) error {
	schema, err := compiledGrammar()
	if err != nil {
		return errors.Wrap(errors.KindQueryValidation, "pipeline grammar unavailable", err)
	}
	generic := make([]any, len(stages))
	for i, stage := range stages {
		generic[i] = map[string]any(stage)
	}
	if err := schema.Validate(any(generic)); err != nil {
		return errors.Wrap(errors.KindQueryValidation, "pipeline does not match the permitted stage grammar", err)
	}
	return nil
}

// ValidateVariables checks the variable templates of a query being
// registered: every path must parse and resolve to an existing position in
// the pipeline.
func ValidateVariables(variables map[string]domain.QueryVariable, stages []map[string]any) error {
	for name, variable := range variables {
		segments, err := ParsePath(variable.Path)
		if err != nil {
			return errors.Newf(errors.KindQueryValidation, "variable %q: %v", name, err)
		}
		if !Exists(stages, segments) {
			return errors.Newf(errors.KindQueryValidation, "variable %q path %s does not resolve inside the pipeline", name, variable.Path)
		}
	}
	return nil
}

// CheckProvided validates a runtime variable binding against the template:
// no missing non-optional keys, no unknown keys, primitive or homogeneous
// primitive-array values. A $coerce map inside provided is honoured and
// stripped. The returned map is the coerced binding.
func CheckProvided(template map[string]domain.QueryVariable, provided map[string]any) (map[string]any, error) {
	if provided == nil {
		provided = map[string]any{}
	}
	provided, err := coerce.Apply(provided)
	if err != nil {
		return nil, errors.Wrap(errors.KindVariableInjection, "variable coercion failed", err)
	}

	for name, variable := range template {
		if _, present := provided[name]; !present && !variable.Optional {
			return nil, errors.Newf(errors.KindVariableInjection, "missing required variable %q", name)
		}
	}
	for name, value := range provided {
		if _, known := template[name]; !known {
			return nil, errors.Newf(errors.KindVariableInjection, "unexpected variable %q", name)
		}
		if err := checkValue(name, value); err != nil {
			return nil, err
		}
	}
	return provided, nil
}

func checkValue(name string, value any) error {
	if isPrimitive(value) {
		return nil
	}
	list, ok := value.([]any)
	if !ok {
		return errors.Newf(errors.KindVariableInjection, "variable %q must be a primitive or an array of primitives", name)
	}
	var kind string
	for i, element := range list {
		if !isPrimitive(element) {
			return errors.Newf(errors.KindVariableInjection, "variable %q element %d is not a primitive", name, i)
		}
		elementKind := primitiveKind(element)
		if kind == "" {
			kind = elementKind
			continue
		}
		if kind != elementKind {
			return errors.Newf(errors.KindVariableInjection, "variable %q mixes %s and %s elements", name, kind, elementKind)
		}
	}
	return nil
}

func isPrimitive(value any) bool {
	return primitiveKind(value) != ""
}

func primitiveKind(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	default:
		return ""
	}
}

// Inject deep-clones stages and writes each provided value at its
// template's path. Substitution is positional; values are not re-validated
// here.
func Inject(template map[string]domain.QueryVariable, stages []map[string]any, provided map[string]any) ([]map[string]any, error) {
	cloned := CloneStages(stages)
	for name, value := range provided {
		variable, known := template[name]
		if !known {
			return nil, errors.Newf(errors.KindVariableInjection, "unexpected variable %q", name)
		}
		segments, err := ParsePath(variable.Path)
		if err != nil {
			return nil, err
		}
		if !Write(cloned, segments, value) {
			return nil, errors.Newf(errors.KindVariableInjection, "variable %q path %s does not resolve inside the pipeline", name, variable.Path)
		}
	}
	return cloned, nil
}

// CloneStages deep-copies a pipeline so injection never mutates the stored
// query.
func CloneStages(stages []map[string]any) []map[string]any {
	cloned := make([]map[string]any, len(stages))
	for i, stage := range stages {
		cloned[i] = cloneValue(stage).(map[string]any)
	}
	return cloned
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, element := range v {
			out[key] = cloneValue(element)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, element := range v {
			out[i] = cloneValue(element)
		}
		return out
	default:
		return v
	}
}

// Describe renders a compact operator list for logging, e.g.
// "$match,$group".
func Describe(stages []map[string]any) string {
	ops := make([]string, 0, len(stages))
	for _, stage := range stages {
		for op := range stage {
			ops = append(ops, op)
		}
	}
	return strings.Join(ops, ",")
}
