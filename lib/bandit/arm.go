package bandit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dBandit/lib/store"
)

// Fields maps field names to values, used for the initial values of new arms
type Fields map[string]any

// Arm is a record whose fields live in one hash of the store.
// It holds no field values, every read and write is a round trip to the store,
// so all Arm values bound to the same key observe the same state.
// An Arm does not own its connection and is safe for concurrent use.
type Arm struct {
	conn   store.IStore
	schema *Schema
	key    string
	id     string
}

// NewArm binds an arm to key and writes every declared field that is not yet stored,
// using the value from overrides or the schema default. Present fields are never
// overwritten, calling NewArm again for an existing key changes nothing.
// The id of the arm is the last ':' separated segment of key.
func NewArm(ctx context.Context, conn store.IStore, schema *Schema, key string, overrides Fields) (*Arm, error) {
	a, err := BindArm(conn, schema, key)
	if err != nil {
		return nil, err
	}

	values, err := a.initialValues(overrides)
	if err != nil {
		return nil, err
	}

	if err := conn.HSetIfUnset(ctx, key, values); err != nil {
		return nil, fromStore("init", key, a.id, err)
	}
	return a, nil
}

// BindArm binds an arm to key without touching the store
func BindArm(conn store.IStore, schema *Schema, key string) (*Arm, error) {
	if conn == nil {
		return nil, fmt.Errorf("bind arm: connection is nil")
	}
	if schema == nil {
		return nil, fmt.Errorf("bind arm: schema is nil")
	}
	id := key[strings.LastIndexByte(key, ':')+1:]
	if id == "" {
		return nil, fmt.Errorf("%w: key %q has no id segment", ErrInvalidKey, key)
	}
	return &Arm{conn: conn, schema: schema, key: key, id: id}, nil
}

// initialValues validates overrides and encodes the full field table
func (a *Arm) initialValues(overrides Fields) (map[string]string, error) {
	for name := range overrides {
		if _, err := a.schema.field(name); err != nil {
			return nil, err
		}
	}

	values := make(map[string]string, len(a.schema.fields))
	for _, f := range a.schema.fields {
		v := f.Default
		if o, ok := overrides[f.Name]; ok {
			var err error
			if v, err = f.Coerce(o); err != nil {
				return nil, err
			}
		}
		values[f.Name] = f.encode(v)
	}
	return values, nil
}

func (a *Arm) ID() string { return a.id }
func (a *Arm) Key() string { return a.key }
func (a *Arm) Schema() *Schema { return a.schema }

// --------------------------------------------------------------------------
// Field access
// --------------------------------------------------------------------------

// Get reads one field. The value has the Go type of the field kind
// (int64, float64, string or bool). Get(ctx, "id") returns the id without a store call.
func (a *Arm) Get(ctx context.Context, field string) (any, error) {
	if field == IDField {
		return a.id, nil
	}
	f, err := a.schema.field(field)
	if err != nil {
		return nil, err
	}

	raw, found, err := a.conn.HGet(ctx, a.key, field)
	if err != nil {
		return nil, fromStore("get", a.key, a.id, err)
	}
	if !found {
		return nil, a.missing(ctx, field)
	}
	return f.Parse(raw)
}

// missing tells a deleted record apart from a record that lacks a single field
func (a *Arm) missing(ctx context.Context, field string) error {
	exists, err := a.conn.Has(ctx, a.key)
	if err != nil {
		return fromStore("has", a.key, a.id, err)
	}
	if exists {
		return &NotFoundError{Key: a.key, ID: a.id, Field: field}
	}
	return &NotFoundError{Key: a.key, ID: a.id}
}

// Set writes one field. It fails with a NotFoundError if the record was deleted,
// a deleted arm is never brought back by a write.
func (a *Arm) Set(ctx context.Context, field string, value any) error {
	f, err := a.schema.field(field)
	if err != nil {
		return err
	}
	v, err := f.Coerce(value)
	if err != nil {
		return err
	}
	return fromStore("set", a.key, a.id, a.conn.HSet(ctx, a.key, field, f.encode(v)))
}

// Increment atomically adds delta to an int field and returns the new value.
func (a *Arm) Increment(ctx context.Context, field string, delta int64) (int64, error) {
	if _, err := a.numeric(field, KindInt); err != nil {
		return 0, err
	}
	v, err := a.conn.HIncrBy(ctx, a.key, field, delta)
	if err != nil {
		return 0, fromStore("increment", a.key, a.id, err)
	}
	return v, nil
}

// IncrementFloat atomically adds delta to a float field and returns the new value.
func (a *Arm) IncrementFloat(ctx context.Context, field string, delta float64) (float64, error) {
	f, err := a.numeric(field, KindFloat)
	if err != nil {
		return 0, err
	}
	if _, err := f.Coerce(delta); err != nil {
		return 0, err
	}
	v, err := a.conn.HIncrByFloat(ctx, a.key, field, delta)
	if err != nil {
		return 0, fromStore("increment", a.key, a.id, err)
	}
	return v, nil
}

func (a *Arm) numeric(field string, kind FieldKind) (FieldDef, error) {
	f, err := a.schema.field(field)
	if err != nil {
		return FieldDef{}, err
	}
	if f.Kind != kind {
		if f.Kind.Numeric() {
			return FieldDef{}, fmt.Errorf("%w: field %q is %s, use the %s increment", ErrNotNumeric, field, f.Kind, f.Kind)
		}
		return FieldDef{}, fmt.Errorf("%w: field %q is %s", ErrNotNumeric, field, f.Kind)
	}
	return f, nil
}

// Int reads an int field
func (a *Arm) Int(ctx context.Context, field string) (int64, error) {
	return typed[int64](ctx, a, field)
}

// Float reads a float field
func (a *Arm) Float(ctx context.Context, field string) (float64, error) {
	return typed[float64](ctx, a, field)
}

// String reads a string field
func (a *Arm) String(ctx context.Context, field string) (string, error) {
	return typed[string](ctx, a, field)
}

// Bool reads a bool field
func (a *Arm) Bool(ctx context.Context, field string) (bool, error) {
	return typed[bool](ctx, a, field)
}

func typed[T any](ctx context.Context, a *Arm, field string) (T, error) {
	var zero T
	v, err := a.Get(ctx, field)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: field %q holds %T, not %T", ErrInvalidValue, field, v, zero)
	}
	return t, nil
}

// --------------------------------------------------------------------------
// Snapshot
// --------------------------------------------------------------------------

// SnapshotField is one entry of a Snapshot
type SnapshotField struct {
	Name  string
	Value any
}

// Snapshot is the ordered field table of an arm: id first, then schema order
type Snapshot []SnapshotField

// Snapshot reads all fields with a single store call
func (a *Arm) Snapshot(ctx context.Context) (Snapshot, error) {
	raw, err := a.conn.HGetAll(ctx, a.key)
	if err != nil {
		return nil, fromStore("snapshot", a.key, a.id, err)
	}
	if len(raw) == 0 {
		return nil, &NotFoundError{Key: a.key, ID: a.id}
	}

	snap := make(Snapshot, 0, len(a.schema.fields)+1)
	snap = append(snap, SnapshotField{Name: IDField, Value: a.id})
	for _, f := range a.schema.fields {
		s, ok := raw[f.Name]
		if !ok {
			return nil, &NotFoundError{Key: a.key, ID: a.id, Field: f.Name}
		}
		v, err := f.Parse(s)
		if err != nil {
			return nil, err
		}
		snap = append(snap, SnapshotField{Name: f.Name, Value: v})
	}
	return snap, nil
}

// Get returns the value of the named field
func (s Snapshot) Get(name string) (any, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Map returns the snapshot as an unordered map
func (s Snapshot) Map() map[string]any {
	m := make(map[string]any, len(s))
	for _, f := range s {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON writes the snapshot as a JSON object, keeping the field order
func (s Snapshot) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, name...)
		buf = append(buf, ':')
		buf = append(buf, value...)
	}
	return append(buf, '}'), nil
}
