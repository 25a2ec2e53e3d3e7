package bandit

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("bandit")

// Bandit is a named group of arms sharing a schema.
//
// The member ids are stored as a set at key <prefix>, the record of member id at
// <prefix>:<id>. A Bandit is a lightweight view without state of its own, any number of
// Bandit values (in any number of processes) can be bound to the same prefix.
type Bandit struct {
	conn     store.IStore
	prefix   string
	schema   *Schema
	storeURL string
}

// Option configures a Bandit
type Option func(*Bandit)

// WithStoreURL records the connection url of conn, it is carried by Ref so that
// other processes can reach the same store.
func WithStoreURL(url string) Option {
	return func(b *Bandit) { b.storeURL = url }
}

// New binds a bandit to prefix. Nothing is written to the store.
func New(conn store.IStore, prefix string, schema *Schema, opts ...Option) (*Bandit, error) {
	if conn == nil {
		return nil, fmt.Errorf("new bandit: connection is nil")
	}
	if schema == nil {
		return nil, fmt.Errorf("new bandit: schema is nil")
	}
	if prefix == "" || strings.HasSuffix(prefix, ":") {
		return nil, fmt.Errorf("%w: invalid prefix %q", ErrInvalidKey, prefix)
	}

	b := &Bandit{conn: conn, prefix: prefix, schema: schema}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// NewArmID generates a random arm id
func NewArmID() string {
	return uuid.NewString()
}

func (b *Bandit) Prefix() string { return b.prefix }
func (b *Bandit) Schema() *Schema { return b.schema }
func (b *Bandit) Conn() store.IStore { return b.conn }
func (b *Bandit) StoreURL() string { return b.storeURL }

// ArmKey returns the record key of arm id
func (b *Bandit) ArmKey(id string) string {
	return b.prefix + ":" + id
}

func validateID(id string) error {
	if id == "" || strings.Contains(id, ":") {
		return fmt.Errorf("%w: invalid arm id %q", ErrInvalidKey, id)
	}
	return nil
}

// --------------------------------------------------------------------------
// Membership
// --------------------------------------------------------------------------

// AddArm creates the record of arm id (if needed) and adds id to the members.
// Adding an existing arm keeps its values, overrides only fill fields that are not stored yet.
func (b *Bandit) AddArm(ctx context.Context, id string, overrides Fields) (*Arm, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	// the record is written before the membership entry, a member always has a record
	arm, err := NewArm(ctx, b.conn, b.schema, b.ArmKey(id), overrides)
	if err != nil {
		return nil, err
	}
	if err := b.conn.SAdd(ctx, b.prefix, id); err != nil {
		return nil, fromStore("add", b.prefix, id, err)
	}

	Logger.Debugf("added arm %s to bandit %s", id, b.prefix)
	return arm, nil
}

// RemoveArm removes id from the members and deletes its record.
// Removing an arm that is not a member is not an error.
func (b *Bandit) RemoveArm(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := b.conn.SRem(ctx, b.prefix, id); err != nil {
		return fromStore("remove", b.prefix, id, err)
	}
	if err := b.conn.Delete(ctx, b.ArmKey(id)); err != nil {
		return fromStore("remove", b.ArmKey(id), id, err)
	}

	Logger.Debugf("removed arm %s from bandit %s", id, b.prefix)
	return nil
}

// ArmIDs returns the member ids in no particular order
func (b *Bandit) ArmIDs(ctx context.Context) ([]string, error) {
	ids, err := b.conn.SMembers(ctx, b.prefix)
	if err != nil {
		return nil, fromStore("members", b.prefix, "", err)
	}
	return ids, nil
}

// Arms binds a fresh Arm for every member
func (b *Bandit) Arms(ctx context.Context) ([]*Arm, error) {
	ids, err := b.ArmIDs(ctx)
	if err != nil {
		return nil, err
	}
	arms := make([]*Arm, 0, len(ids))
	for _, id := range ids {
		arm, err := BindArm(b.conn, b.schema, b.ArmKey(id))
		if err != nil {
			return nil, err
		}
		arms = append(arms, arm)
	}
	return arms, nil
}

// Count returns the number of members
func (b *Bandit) Count(ctx context.Context) (int, error) {
	n, err := b.conn.SCard(ctx, b.prefix)
	if err != nil {
		return 0, fromStore("count", b.prefix, "", err)
	}
	return int(n), nil
}

// Has reports whether id is a member
func (b *Bandit) Has(ctx context.Context, id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	ok, err := b.conn.SIsMember(ctx, b.prefix, id)
	if err != nil {
		return false, fromStore("has", b.prefix, id, err)
	}
	return ok, nil
}

// Arm returns the member id, a NotFoundError if id is not a member
func (b *Bandit) Arm(ctx context.Context, id string) (*Arm, error) {
	ok, err := b.Has(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Key: b.ArmKey(id), ID: id}
	}
	return BindArm(b.conn, b.schema, b.ArmKey(id))
}

// --------------------------------------------------------------------------
// Batched reads
// --------------------------------------------------------------------------

// GetFieldFromArms reads field of every arm in ids with a single store call.
// The result has the length and order of ids, duplicates are read twice.
// If the record of any id does not exist the whole call fails with a NotFoundError
// naming that id, no partial result is returned.
//
// Only the records are read, membership is not checked. A record stored under the
// prefix of the bandit (e.g. created with NewArm) but never added with AddArm is
// read like a member. Use Has or ArmIDs first when that distinction matters.
func (b *Bandit) GetFieldFromArms(ctx context.Context, ids []string, field string) ([]any, error) {
	for _, id := range ids {
		if err := validateID(id); err != nil {
			return nil, err
		}
	}

	out := make([]any, len(ids))
	if field == IDField {
		for i, id := range ids {
			out[i] = id
		}
		return out, nil
	}

	f, err := b.schema.field(field)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	refs := make([]store.FieldRef, len(ids))
	for i, id := range ids {
		refs[i] = store.FieldRef{Key: b.ArmKey(id), Field: field}
	}

	values, err := b.conn.HGetMulti(ctx, refs)
	if err != nil {
		return nil, fromStore("batch get", b.prefix, "", err)
	}
	if len(values) != len(refs) {
		return nil, &storeFailure{op: "batch get", key: b.prefix,
			err: fmt.Errorf("store returned %d values for %d fields", len(values), len(refs))}
	}

	for i, v := range values {
		if !v.Found {
			return nil, &NotFoundError{Key: refs[i].Key, ID: ids[i]}
		}
		if out[i], err = f.Parse(v.Value); err != nil {
			return nil, err
		}
	}
	return out, nil
}
