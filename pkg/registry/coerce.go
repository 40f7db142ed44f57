package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Coerce validates raw parameters against the entry's schema and returns a new
// Params with defaults applied for absent optional parameters. Unknown,
// missing-required and mistyped parameters yield a *ValidationError naming
// each offending parameter and its expected type. raw is never modified.
func (e *Entry) Coerce(raw map[string]interface{}) (Params, error) {
	if raw == nil {
		raw = map[string]interface{}{}
	}

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, &ValidationError{
			Command:  e.Name,
			Problems: []ParamError{{Reason: fmt.Sprintf("params are not valid JSON: %v", err)}},
		}
	}
	if !result.Valid() {
		return nil, &ValidationError{Command: e.Name, Problems: e.problems(raw, result.Errors())}
	}

	out := make(Params, len(e.Params))
	for k, v := range raw {
		out[k] = v
	}
	for _, p := range e.Params {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out, nil
}

func (e *Entry) problems(raw map[string]interface{}, errs []gojsonschema.ResultError) []ParamError {
	problems := make([]ParamError, 0, len(errs))
	for _, re := range errs {
		switch re.Type() {
		case "required":
			name, _ := re.Details()["property"].(string)
			p, _ := e.Param(name)
			problems = append(problems, ParamError{Param: name, Expected: p.Type, Reason: "required parameter missing"})
		case "additional_property_not_allowed":
			name, _ := re.Details()["property"].(string)
			problems = append(problems, ParamError{Param: name, Reason: "unknown parameter"})
		case "invalid_type":
			field := re.Field()
			top, nested, _ := strings.Cut(field, ".")
			p, _ := e.Param(top)
			expected := p.Type
			given, _ := re.Details()["given"].(string)
			if nested == "" {
				given = jsonType(raw[top])
			} else if p.Items != "" {
				expected = p.Items
			}
			reason := fmt.Sprintf("expected %s", expected)
			if given != "" {
				reason += fmt.Sprintf(", got %s", given)
			}
			problems = append(problems, ParamError{Param: field, Expected: expected, Reason: reason})
		default:
			problems = append(problems, ParamError{Param: re.Field(), Reason: re.Description()})
		}
	}

	order := make(map[string]int, len(e.Params))
	for i, p := range e.Params {
		order[p.Name] = i
	}
	rank := func(pe ParamError) int {
		top, _, _ := strings.Cut(pe.Param, ".")
		if i, ok := order[top]; ok {
			return i
		}
		return len(order)
	}
	sort.SliceStable(problems, func(i, j int) bool {
		ri, rj := rank(problems[i]), rank(problems[j])
		if ri != rj {
			return ri < rj
		}
		return problems[i].Param < problems[j].Param
	})
	return problems
}

// jsonType names the JSON type of a decoded value.
func jsonType(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case float32, float64:
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
