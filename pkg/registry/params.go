package registry

import (
	"encoding/json"
	"fmt"
	"math"
)

// Params is a validated parameter object. Numbers may be json.Number (from the
// wire) or native Go numbers (from defaults); the accessors accept both.
type Params map[string]interface{}

// Has reports whether name is present with a non-null value.
func (p Params) Has(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

// Int returns name as an int.
func (p Params) Int(name string) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing parameter %s", name)
	}
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("parameter %s: expected integer, got %s", name, jsonType(v))
	}
	return n, nil
}

// Float returns name as a float64.
func (p Params) Float(name string) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing parameter %s", name)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("parameter %s: expected number, got %s", name, jsonType(v))
	}
	return f, nil
}

// String returns name as a string.
func (p Params) String(name string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", fmt.Errorf("missing parameter %s", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s: expected string, got %s", name, jsonType(v))
	}
	return s, nil
}

// Bool returns name as a bool.
func (p Params) Bool(name string) (bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return false, fmt.Errorf("missing parameter %s", name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %s: expected boolean, got %s", name, jsonType(v))
	}
	return b, nil
}

// List returns name as a JSON array.
func (p Params) List(name string) ([]interface{}, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing parameter %s", name)
	}
	l, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("parameter %s: expected array, got %s", name, jsonType(v))
	}
	return l, nil
}

// ToInt converts a decoded JSON number to an int when it is integral.
func ToInt(v interface{}) (int, bool) {
	return toInt(v)
}

// ToFloat converts a decoded JSON number to a float64.
func ToFloat(v interface{}) (float64, bool) {
	return toFloat(v)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
