package internal

import (
	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (structured value with metadata)
// --------------------------------------------------------------------------

// Entry stores the structure held by a key.
// Entries are treated as immutable once stored: every write builds a new Entry
// (copy-on-write), so readers that loaded an Entry never observe a concurrent mutation.
type Entry struct {
	Kind    db.Kind
	Fields  map[string]string   // used for db.KindHash
	Members map[string]struct{} // used for db.KindSet
	Index   uint64              // write index of the last modification
}

// NewHash creates a hash entry holding a copy of fields
func NewHash(fields map[string]string, index uint64) Entry {
	e := Entry{Kind: db.KindHash, Fields: make(map[string]string, len(fields)), Index: index}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// NewSet creates an empty set entry
func NewSet(index uint64) Entry {
	return Entry{Kind: db.KindSet, Members: make(map[string]struct{}), Index: index}
}

// Clone returns a deep copy of the entry, ready to be modified
func (e Entry) Clone(index uint64) Entry {
	c := Entry{Kind: e.Kind, Index: index}
	switch e.Kind {
	case db.KindHash:
		c.Fields = make(map[string]string, len(e.Fields)+1)
		for k, v := range e.Fields {
			c.Fields[k] = v
		}
	case db.KindSet:
		c.Members = make(map[string]struct{}, len(e.Members)+1)
		for m := range e.Members {
			c.Members[m] = struct{}{}
		}
	}
	return c
}

// Width returns the number of fields or members of the entry
func (e Entry) Width() int {
	if e.Kind == db.KindSet {
		return len(e.Members)
	}
	return len(e.Fields)
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry] // Map of all entries in this shard
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	return shards[util.Stripe(key, len(shards))]
}
