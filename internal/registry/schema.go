package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"strata/internal/services"
)

// ParamType enumerates supported parameter value types.
type ParamType string

const (
	TypeFloat  ParamType = "float"
	TypeInt    ParamType = "int"
	TypeString ParamType = "string"
	TypeBool   ParamType = "bool"
)

// ParamSpec declares one parameter of an algorithm: type, presence, bounds.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
	Default  any
	Min      *float64
	Max      *float64
	OneOf    []string
}

// Params is a validated parameter mapping handed to algorithm bodies.
// Accessors panic-free: validation guarantees the declared shape, so the
// zero value falls back to the declared default.
type Params map[string]any

// Schema declares an algorithm's parameter surface plus optional
// cross-field checks (for example low_frequency < high_frequency).
type Schema struct {
	Fields []ParamSpec
	Check  func(Params) error
}

// Float returns a float parameter by name.
func (p Params) Float(name string) float64 {
	v, _ := p[name].(float64)
	return v
}

// Int returns an integer parameter by name.
func (p Params) Int(name string) int {
	switch v := p[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// String returns a string parameter by name.
func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// Bool returns a boolean parameter by name.
func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

// MarshalJSON keeps validated parameters serializable for persistence and
// broker transport with deterministic key order.
func (p Params) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(p[k])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(value)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// validate checks raw parameters against the schema, applying defaults and
// returning the normalized mapping.
func (s Schema) validate(raw map[string]any) (Params, error) {
	known := make(map[string]ParamSpec, len(s.Fields))
	for _, field := range s.Fields {
		known[field.Name] = field
	}

	for name := range raw {
		if _, ok := known[name]; !ok {
			return nil, validationErr(fmt.Sprintf("unknown parameter %q", name))
		}
	}

	params := make(Params, len(s.Fields))
	for _, field := range s.Fields {
		value, present := raw[field.Name]
		if !present {
			if field.Required {
				return nil, validationErr(fmt.Sprintf("missing required parameter %q", field.Name))
			}
			if field.Default != nil {
				params[field.Name] = field.Default
			}
			continue
		}

		normalized, err := coerce(field, value)
		if err != nil {
			return nil, err
		}
		params[field.Name] = normalized
	}

	if s.Check != nil {
		if err := s.Check(params); err != nil {
			if services.IsFatal(err) {
				return nil, err
			}
			return nil, validationErr(err.Error())
		}
	}
	return params, nil
}

func coerce(field ParamSpec, value any) (any, error) {
	switch field.Type {
	case TypeFloat:
		f, ok := toFloat(value)
		if !ok {
			return nil, typeErr(field, value)
		}
		if err := checkBounds(field, f); err != nil {
			return nil, err
		}
		return f, nil
	case TypeInt:
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) {
			return nil, typeErr(field, value)
		}
		if err := checkBounds(field, f); err != nil {
			return nil, err
		}
		return int(f), nil
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return nil, typeErr(field, value)
		}
		if len(field.OneOf) > 0 {
			for _, allowed := range field.OneOf {
				if str == allowed {
					return str, nil
				}
			}
			return nil, validationErr(fmt.Sprintf("parameter %q must be one of %s, got %q",
				field.Name, strings.Join(field.OneOf, ", "), str))
		}
		return str, nil
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, typeErr(field, value)
		}
		return b, nil
	default:
		return nil, validationErr(fmt.Sprintf("parameter %q has unsupported type %q", field.Name, field.Type))
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func checkBounds(field ParamSpec, value float64) error {
	if field.Min != nil && value < *field.Min {
		return validationErr(fmt.Sprintf("parameter %q must be >= %v, got %v", field.Name, *field.Min, value))
	}
	if field.Max != nil && value > *field.Max {
		return validationErr(fmt.Sprintf("parameter %q must be <= %v, got %v", field.Name, *field.Max, value))
	}
	return nil
}

func typeErr(field ParamSpec, value any) error {
	return validationErr(fmt.Sprintf("parameter %q expects %s, got %T", field.Name, field.Type, value))
}

func validationErr(message string) error {
	return services.Wrap(services.ErrValidation, "registry", "validate", message, nil)
}

// FloatPtr is a convenience for bound declarations in algorithm schemas.
func FloatPtr(v float64) *float64 { return &v }
