package bandit

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema("parsed", "count:int=3, reward:float=0.25,label:string,active:bool=true")
	if err != nil {
		t.Fatalf("ParseSchema failed: %v", err)
	}

	want := []FieldDef{
		{Name: "count", Kind: KindInt, Default: int64(3)},
		{Name: "reward", Kind: KindFloat, Default: 0.25},
		{Name: "label", Kind: KindString, Default: ""},
		{Name: "active", Kind: KindBool, Default: true},
	}
	got := s.Fields()
	if len(got) != len(want) {
		t.Fatalf("Expected %d fields, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Field %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	if s.String() != "count:int=3,reward:float=0.25,label:string=,active:bool=true" {
		t.Errorf("Unexpected definition: %s", s.String())
	}

	again, err := ParseSchema("parsed", s.String())
	if err != nil || !again.Equal(s) {
		t.Errorf("Expected definition to parse into an equal schema (%v)", err)
	}
}

func TestInvalidSchemas(t *testing.T) {
	tests := []struct {
		name string
		def  string
	}{
		{"Empty", ""},
		{"NoKind", "count"},
		{"BadKind", "count:decimal"},
		{"BadDefault", "count:int=many"},
		{"FractionalInt", "count:int=1.5"},
		{"ReservedID", "id:string"},
		{"Duplicate", "count:int,count:float"},
		{"BadBool", "active:bool=yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSchema("invalid", tt.def); err == nil {
				t.Errorf("Expected error for %q", tt.def)
			}
		})
	}

	if _, err := NewSchema("", Int("count", 0)); err == nil {
		t.Error("Expected error for empty schema name")
	}
	if _, err := NewSchema("nan", FieldDef{Name: "x", Kind: KindFloat, Default: "zero"}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
}

func TestCoerce(t *testing.T) {
	intField := Int("n", 0)
	for _, v := range []any{1, int8(1), int32(1), uint16(1), uint64(1), 1.0, json.Number("1")} {
		got, err := intField.Coerce(v)
		if err != nil || got != int64(1) {
			t.Errorf("Coerce(%v %T): expected int64(1), got %v (%v)", v, v, got, err)
		}
	}
	for _, v := range []any{1.5, "1", true, uint64(1 << 63)} {
		if _, err := intField.Coerce(v); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Coerce(%v %T): expected ErrInvalidValue, got %v", v, v, err)
		}
	}

	floatField := Float("f", 0)
	if got, err := floatField.Coerce(2); err != nil || got != 2.0 {
		t.Errorf("Expected 2.0, got %v (%v)", got, err)
	}
	if _, err := floatField.Coerce("2"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	s := MustSchema("registry-test", Int("count", 0))
	if err := RegisterSchema(s); err != nil {
		t.Fatalf("RegisterSchema failed: %v", err)
	}
	if err := RegisterSchema(MustSchema("registry-test", Int("count", 0))); err != nil {
		t.Errorf("Registering an equal schema should succeed: %v", err)
	}
	if err := RegisterSchema(MustSchema("registry-test", Int("count", 1))); err == nil {
		t.Error("Expected error for conflicting schema")
	}

	got, err := LookupSchema("registry-test")
	if err != nil || got != s {
		t.Errorf("LookupSchema returned %v (%v)", got, err)
	}
	if _, err := LookupSchema("registry-missing"); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("Expected ErrUnknownSchema, got %v", err)
	}
}

func TestFieldKindJSON(t *testing.T) {
	data, err := json.Marshal(Float("reward", 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"name":"reward","kind":"float","default":0.5}` {
		t.Errorf("Unexpected json: %s", data)
	}

	var f FieldDef
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	if f.Kind != KindFloat {
		t.Errorf("Expected float kind, got %s", f.Kind)
	}
	if err := json.Unmarshal([]byte(`{"name":"x","kind":"decimal"}`), &f); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
