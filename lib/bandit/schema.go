package bandit

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// IDField is the reserved name under which every snapshot carries the arm id
const IDField = "id"

// --------------------------------------------------------------------------
// Field kinds
// --------------------------------------------------------------------------

type FieldKind uint8

const (
	KindInt FieldKind = iota + 1
	KindFloat
	KindString
	KindBool
)

func (k FieldKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseFieldKind is the inverse of FieldKind.String
func ParseFieldKind(s string) (FieldKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "bool":
		return KindBool, nil
	default:
		return 0, fmt.Errorf("invalid field kind %q (expected one of: int, float, string, bool)", s)
	}
}

// Numeric reports whether fields of this kind can be incremented
func (k FieldKind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

func (k FieldKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *FieldKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFieldKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// --------------------------------------------------------------------------
// Field descriptors
// --------------------------------------------------------------------------

// FieldDef declares one field of a schema. Default is used for records that do not
// have the field yet. A nil Default means the zero value of the kind.
type FieldDef struct {
	Name    string    `json:"name"`
	Kind    FieldKind `json:"kind"`
	Default any       `json:"default"`
}

// Int, Float, String and Bool are shorthands for field declarations.
func Int(name string, def int64) FieldDef { return FieldDef{Name: name, Kind: KindInt, Default: def} }
func Float(name string, def float64) FieldDef { return FieldDef{Name: name, Kind: KindFloat, Default: def} }
func String(name string, def string) FieldDef { return FieldDef{Name: name, Kind: KindString, Default: def} }
func Bool(name string, def bool) FieldDef { return FieldDef{Name: name, Kind: KindBool, Default: def} }

// Coerce converts v to the Go type of the field kind (int64, float64, string or bool).
// Integral floats are accepted for int fields, integers for float fields.
func (f FieldDef) Coerce(v any) (any, error) {
	var (
		out any
		ok  bool
	)
	switch f.Kind {
	case KindInt:
		out, ok = toInt(v)
	case KindFloat:
		var fv float64
		if fv, ok = toFloat(v); ok && (math.IsNaN(fv) || math.IsInf(fv, 0)) {
			ok = false
		}
		out = fv
	case KindString:
		out, ok = v.(string)
	case KindBool:
		out, ok = v.(bool)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) for %s field %q", ErrInvalidValue, v, v, f.Kind, f.Name)
	}
	return out, nil
}

// Parse converts the textual representation of a value (as stored) to the field kind
func (f FieldDef) Parse(s string) (any, error) {
	var (
		v   any
		err error
	)
	switch f.Kind {
	case KindInt:
		v, err = strconv.ParseInt(s, 10, 64)
	case KindFloat:
		v, err = strconv.ParseFloat(s, 64)
	case KindString:
		v = s
	case KindBool:
		v, err = strconv.ParseBool(s)
	default:
		err = fmt.Errorf("unknown kind")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q for %s field %q", ErrInvalidValue, s, f.Kind, f.Name)
	}
	return v, nil
}

// encode renders a value for the store, v must have been coerced
func (f FieldDef) encode(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint64:
		return int64(x), x <= math.MaxInt64
	case float32:
		return toInt(float64(x))
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		i, err := x.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		if i, ok := toInt(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

// Schema is the ordered field descriptor table of an arm type.
// It is immutable after creation and safe for concurrent use.
type Schema struct {
	name   string
	fields []FieldDef
	index  map[string]int
}

// NewSchema validates the field declarations and normalizes their defaults.
// Field names must be unique, non-empty, must not be "id" and must not contain ':' or ','.
func NewSchema(name string, fields ...FieldDef) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("schema name must not be empty")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema %q declares no fields", name)
	}

	s := &Schema{
		name:   name,
		fields: make([]FieldDef, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		switch {
		case f.Name == "":
			return nil, fmt.Errorf("schema %q: field %d has no name", name, i)
		case f.Name == IDField:
			return nil, fmt.Errorf("schema %q: field name %q is reserved", name, IDField)
		case strings.ContainsAny(f.Name, ":,= "):
			return nil, fmt.Errorf("schema %q: invalid field name %q", name, f.Name)
		case f.Kind < KindInt || f.Kind > KindBool:
			return nil, fmt.Errorf("schema %q: field %q has no valid kind", name, f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("schema %q: duplicate field %q", name, f.Name)
		}

		if f.Default == nil {
			f.Default = zero(f.Kind)
		}
		def, err := f.Coerce(f.Default)
		if err != nil {
			return nil, fmt.Errorf("schema %q: default: %w", name, err)
		}
		f.Default = def

		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on invalid declarations
func MustSchema(name string, fields ...FieldDef) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSchema reads the compact definition format used by the cli:
//
//	count:int=0,reward:float=0.5,label:string,active:bool=true
//
// A missing default means the zero value of the kind. String defaults cannot contain ','.
func ParseSchema(name, def string) (*Schema, error) {
	var fields []FieldDef
	for _, part := range strings.Split(def, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		decl, rawDefault, hasDefault := strings.Cut(part, "=")
		fieldName, kindName, ok := strings.Cut(decl, ":")
		if !ok {
			return nil, fmt.Errorf("invalid field declaration %q (expected name:kind[=default])", part)
		}
		kind, err := ParseFieldKind(kindName)
		if err != nil {
			return nil, err
		}

		f := FieldDef{Name: strings.TrimSpace(fieldName), Kind: kind}
		if hasDefault {
			if f.Default, err = f.Parse(rawDefault); err != nil {
				return nil, err
			}
		}
		fields = append(fields, f)
	}
	return NewSchema(name, fields...)
}

func zero(k FieldKind) any {
	switch k {
	case KindInt:
		return int64(0)
	case KindFloat:
		return float64(0)
	case KindBool:
		return false
	default:
		return ""
	}
}

func (s *Schema) Name() string { return s.name }

// Fields returns a copy of the field declarations in declaration order
func (s *Schema) Fields() []FieldDef {
	return append([]FieldDef(nil), s.fields...)
}

// Field returns the declaration of name
func (s *Schema) Field(name string) (FieldDef, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldDef{}, false
	}
	return s.fields[i], true
}

// field is Field with an UnknownFieldError
func (s *Schema) field(name string) (FieldDef, error) {
	f, ok := s.Field(name)
	if !ok {
		return FieldDef{}, &UnknownFieldError{Schema: s.name, Field: name}
	}
	return f, nil
}

// String renders the schema in the format read by ParseSchema
func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = fmt.Sprintf("%s:%s=%s", f.Name, f.Kind, f.encode(f.Default))
	}
	return strings.Join(parts, ",")
}

// Equal reports whether both schemas declare the same fields in the same order
func (s *Schema) Equal(o *Schema) bool {
	return s.name == o.name && s.String() == o.String()
}

// --------------------------------------------------------------------------
// Registry (resolves schema identities of transfer references)
// --------------------------------------------------------------------------

var registry = xsync.NewMapOf[string, *Schema]()

// RegisterSchema makes s resolvable by name. Registering an equal schema twice is a no-op,
// registering a different schema under a taken name fails.
func RegisterSchema(s *Schema) error {
	prev, loaded := registry.LoadOrStore(s.name, s)
	if loaded && !prev.Equal(s) {
		return fmt.Errorf("schema %q is already registered with different fields (%s)", s.name, prev)
	}
	return nil
}

// LookupSchema returns the registered schema with the given name
func LookupSchema(name string) (*Schema, error) {
	s, ok := registry.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}
	return s, nil
}
