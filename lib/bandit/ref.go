package bandit

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/lib/store/connect"
)

// --------------------------------------------------------------------------
// Transfer references
// --------------------------------------------------------------------------

// SchemaRef identifies a schema in a transfer reference. Fields is optional, if set
// a process that has not registered the schema can rebuild it.
type SchemaRef struct {
	Name   string     `json:"name"`
	Fields []FieldDef `json:"fields,omitempty"`
}

// ArmRef is the detached form of an Arm. It never contains the live connection.
type ArmRef struct {
	StoreURL string    `json:"store_url,omitempty"`
	Key      string    `json:"key"`
	Schema   SchemaRef `json:"schema"`
}

// BanditRef is the detached form of a Bandit. It never contains the live connection.
type BanditRef struct {
	StoreURL string    `json:"store_url,omitempty"`
	Prefix   string    `json:"prefix"`
	Schema   SchemaRef `json:"schema"`
}

func refOf(s *Schema) SchemaRef {
	return SchemaRef{Name: s.name, Fields: s.Fields()}
}

// Resolve returns the registered schema, or builds and registers it from Fields.
// A registered schema with different fields is an error.
func (r SchemaRef) Resolve() (*Schema, error) {
	registered, err := LookupSchema(r.Name)
	if len(r.Fields) == 0 {
		return registered, err
	}

	s, perr := NewSchema(r.Name, r.Fields...)
	if perr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownSchema, perr)
	}
	if err == nil {
		if !registered.Equal(s) {
			return nil, fmt.Errorf("%w: %q differs from the registered schema", ErrUnknownSchema, r.Name)
		}
		return registered, nil
	}
	if err := RegisterSchema(s); err != nil {
		return nil, err
	}
	return LookupSchema(r.Name)
}

// Ref returns the transfer reference of the arm. storeURL is the url of its connection.
func (a *Arm) Ref(storeURL string) ArmRef {
	return ArmRef{StoreURL: storeURL, Key: a.key, Schema: refOf(a.schema)}
}

// AttachArm binds the referenced arm to conn without touching the store
func AttachArm(conn store.IStore, ref ArmRef) (*Arm, error) {
	schema, err := ref.Schema.Resolve()
	if err != nil {
		return nil, err
	}
	return BindArm(conn, schema, ref.Key)
}

// Dial opens a connection to ref.StoreURL and attaches the arm.
// The caller owns the returned store and has to close it.
func (ref ArmRef) Dial(ctx context.Context) (*Arm, store.IStore, error) {
	conn, err := dial(ctx, ref.StoreURL)
	if err != nil {
		return nil, nil, err
	}
	arm, err := AttachArm(conn, ref)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return arm, conn, nil
}

// Ref returns the transfer reference of the bandit
func (b *Bandit) Ref() BanditRef {
	return BanditRef{StoreURL: b.storeURL, Prefix: b.prefix, Schema: refOf(b.schema)}
}

// Attach binds the referenced bandit to conn
func Attach(conn store.IStore, ref BanditRef) (*Bandit, error) {
	schema, err := ref.Schema.Resolve()
	if err != nil {
		return nil, err
	}
	return New(conn, ref.Prefix, schema, WithStoreURL(ref.StoreURL))
}

// Dial opens a connection to ref.StoreURL and attaches the bandit.
// The caller owns the returned store and has to close it.
func (ref BanditRef) Dial(ctx context.Context) (*Bandit, store.IStore, error) {
	conn, err := dial(ctx, ref.StoreURL)
	if err != nil {
		return nil, nil, err
	}
	b, err := Attach(conn, ref)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return b, conn, nil
}

func dial(ctx context.Context, url string) (store.IStore, error) {
	if url == "" {
		return nil, fmt.Errorf("reference has no store url, attach a connection instead")
	}
	conn, err := connect.Open(ctx, url)
	if err != nil {
		return nil, &storeFailure{op: "dial", key: connect.Redact(url), err: err}
	}
	return conn, nil
}
