package db

import (
	"errors"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple   Implementation = "maple"
	ImplLevelDB Implementation = "leveldb"
	ImplRedis   Implementation = "redis" // reported by stores that talk to an external Redis server
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureHash      Feature = 1 << iota // Support for HGet, HSet, HSetIfUnset and HGetAll operations
	FeatureCounter                       // Support for HIncrBy and HIncrByFloat operations
	FeatureSet                           // Support for SAdd, SRem, SMembers, SIsMember and SCard operations
	FeatureDelete                        // Support for Delete operations
	FeatureHas                           // Support for Has operations
	FeatureSave                          // Support for Save operations
	FeatureLoad                          // Support for Load operations
	FeaturePersistent                    // Data survives a process restart
)

func (f Feature) String() string {
	switch f {
	case FeatureHash:
		return "Hash"
	case FeatureCounter:
		return "Counter"
	case FeatureSet:
		return "Set"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeaturePersistent:
		return "Persistent"
	default:
		return "Unknown"
	}
}

// Kind is the structure stored under a key.
type Kind uint8

const (
	KindNone Kind = iota
	KindHash
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindSet:
		return "set"
	default:
		return "none"
	}
}

type DatabaseInfo struct {
	Keys              int            `json:"keys"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrKeyNotFound is returned by write operations that require an existing key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrWrongType is returned when a key holds a different structure than the operation expects.
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
	// ErrNotNumber is returned when a counter operation targets a field that does not hold a number.
	ErrNotNumber = errors.New("field value is not a number")
)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations whose values are
// structured: a key either holds a hash (field -> value) or a set of members.
// Every single-key operation must be atomic with respect to all other operations on the same key.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Hash Operations
	// --------------------------------------------------------------------------

	// HSetIfUnset writes every field of fields that is not yet present in the hash stored at key.
	// The hash is created if the key does not exist. Present fields are never overwritten.
	// The returned bool is true if the key was created by this call.
	HSetIfUnset(key string, fields map[string]string) (created bool, err error)

	// HSet overwrites a single field of an existing hash.
	// ErrKeyNotFound is returned if the key does not exist, the key is never created.
	HSet(key, field, value string) (err error)

	// HIncrBy atomically adds delta to the integer stored in field and returns the new value.
	// A missing field counts as 0. ErrKeyNotFound is returned if the key does not exist.
	HIncrBy(key, field string, delta int64) (value int64, err error)

	// HIncrByFloat is the float variant of HIncrBy.
	HIncrByFloat(key, field string, delta float64) (value float64, err error)

	// HGet returns the value of a single field. loaded is false if the key or the field does not exist.
	HGet(key, field string) (value string, loaded bool, err error)

	// HGetAll returns a copy of the hash stored at key. A missing key yields an empty map.
	HGetAll(key string) (fields map[string]string, err error)

	// --------------------------------------------------------------------------
	// Set Operations
	// --------------------------------------------------------------------------

	// SAdd adds members to the set stored at key and returns how many were new.
	SAdd(key string, members ...string) (added int, err error)

	// SRem removes members from the set stored at key and returns how many were removed.
	// The key is removed once the set is empty.
	SRem(key string, members ...string) (removed int, err error)

	// SMembers returns all members of the set in no particular order.
	SMembers(key string) (members []string, err error)

	// SIsMember reports whether member is part of the set stored at key.
	SIsMember(key, member string) (ok bool, err error)

	// SCard returns the number of members of the set stored at key.
	SCard(key string) (count int, err error)

	// --------------------------------------------------------------------------
	// Key Operations
	// --------------------------------------------------------------------------

	// Delete removes the key and its whole structure. Deleting a missing key is not an error,
	// existed reports whether there was something to delete.
	Delete(key string) (existed bool, err error)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool, err error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
