package rpc

import (
	"fmt"
)

// ParamType is a declared parameter type.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeID      ParamType = "id" // opaque string
)

// Param declares one parameter.
type Param struct {
	Name    string
	Type    ParamType
	Default any // optional params only
}

// Schema declares a method's parameters.
type Schema struct {
	Required []Param
	Optional []Param
}

// Validate checks params against the schema and returns a copy with optional
// defaults applied. Violations produce -32602 with data.missing or
// data.invalid.
func (s Schema) Validate(params map[string]any) (Params, *Error) {
	out := make(Params, len(params))
	for k, v := range params {
		out[k] = v
	}

	var missing []string
	var invalid []map[string]any

	for _, p := range s.Required {
		v, ok := out[p.Name]
		if !ok || v == nil {
			missing = append(missing, p.Name)
			continue
		}
		if reason := typeMismatch(p.Type, v); reason != "" {
			invalid = append(invalid, map[string]any{"name": p.Name, "reason": reason})
		}
	}
	for _, p := range s.Optional {
		v, ok := out[p.Name]
		if !ok || v == nil {
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		if reason := typeMismatch(p.Type, v); reason != "" {
			invalid = append(invalid, map[string]any{"name": p.Name, "reason": reason})
		}
	}

	if len(missing) > 0 || len(invalid) > 0 {
		e := newError(CodeInvalidParams, "invalid params")
		e.Data = map[string]any{}
		if len(missing) > 0 {
			e.Data["missing"] = missing
		}
		if len(invalid) > 0 {
			e.Data["invalid"] = invalid
		}
		return nil, e
	}
	return out, nil
}

// typeMismatch returns a reason string when v does not satisfy t. JSON
// numbers arrive as float64; integers accept whole floats.
func typeMismatch(t ParamType, v any) string {
	switch t {
	case TypeString, TypeID:
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("expected %s, got %T", t, v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", v)
		}
	case TypeInteger:
		switch n := v.(type) {
		case int, int64:
		case float64:
			if n != float64(int64(n)) {
				return "expected integer, got fractional number"
			}
		default:
			return fmt.Sprintf("expected integer, got %T", v)
		}
	case TypeNumber:
		switch v.(type) {
		case int, int64, float64:
		default:
			return fmt.Sprintf("expected number, got %T", v)
		}
	case TypeArray:
		switch v.(type) {
		case []any, []string:
		default:
			return fmt.Sprintf("expected array, got %T", v)
		}
	case TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %T", v)
		}
	}
	return ""
}

// Params is a validated parameter map with typed accessors.
type Params map[string]any

func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

func (p Params) Int(name string) int {
	switch n := p[name].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func (p Params) Float(name string) float64 {
	switch n := p[name].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func (p Params) Strings(name string) []string {
	switch v := p[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (p Params) Object(name string) map[string]any {
	m, _ := p[name].(map[string]any)
	return m
}
