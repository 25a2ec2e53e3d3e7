package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dBandit/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// FieldRef addresses a single field of a hash.
type FieldRef struct {
	Key   string
	Field string
}

// FieldValue is the result for one FieldRef of a batched read.
// Found is false if the key or the field does not exist.
type FieldValue struct {
	Value string
	Found bool
}

// IStore is the generic interface for interacting with a structured key–value store.
// Every key holds either a hash (field -> value) or a set of members.
// All operations on a single key are linearizable; there is no ordering across keys.
// Failures are reported as *Error (nil on success).
type IStore interface {
	// HGet returns the value of a single hash field. found is false if the key or the field does not exist.
	HGet(ctx context.Context, key, field string) (value string, found bool, err error)
	// HSet overwrites a single field of an existing hash.
	// The key is never created: a missing key yields an error with code RetCNotFound.
	HSet(ctx context.Context, key, field, value string) (err error)
	// HSetIfUnset writes every field that is not yet present in the hash, creating the key if needed.
	// Present fields are never overwritten. The call is atomic.
	HSetIfUnset(ctx context.Context, key string, fields map[string]string) (err error)
	// HIncrBy atomically adds delta to an integer field and returns the new value.
	// A missing field counts as 0, a missing key yields RetCNotFound.
	HIncrBy(ctx context.Context, key, field string, delta int64) (value int64, err error)
	// HIncrByFloat is the float variant of HIncrBy.
	HIncrByFloat(ctx context.Context, key, field string, delta float64) (value float64, err error)
	// HGetAll returns all fields of a hash. A missing key yields an empty map.
	HGetAll(ctx context.Context, key string) (fields map[string]string, err error)
	// HGetMulti reads many fields of possibly different keys in a single round trip.
	// The result has the same length and order as refs. Reads of different keys are not
	// isolated from concurrent writers.
	HGetMulti(ctx context.Context, refs []FieldRef) (values []FieldValue, err error)

	// SAdd adds a member to the set stored at key, creating the set if needed.
	SAdd(ctx context.Context, key, member string) (err error)
	// SRem removes a member from the set stored at key. Removing an absent member is not an error.
	SRem(ctx context.Context, key, member string) (err error)
	// SMembers returns all members of the set in no particular order.
	SMembers(ctx context.Context, key string) (members []string, err error)
	// SIsMember reports whether member is part of the set stored at key.
	SIsMember(ctx context.Context, key, member string) (ok bool, err error)
	// SCard returns the number of members of the set stored at key.
	SCard(ctx context.Context, key string) (count int64, err error)

	// Delete removes a key and its whole structure. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) (err error)
	// Has returns whether a key exists in the store.
	Has(ctx context.Context, key string) (loaded bool, err error)

	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo(ctx context.Context) (info db.DatabaseInfo, err error)

	// Close releases the resources held by the store (connections, engines).
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same return code,
// which makes errors.Is(err, store.ErrNotFound) work for every error carrying RetCNotFound.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinels for errors.Is comparisons, only the code is compared.
var (
	ErrInternal    = NewError(RetCInternalError, "internal error")
	ErrUnsupported = NewError(RetCUnsupportedOperation, "unsupported operation")
	ErrInvalid     = NewError(RetCInvalidOperation, "invalid operation")
	ErrNotFound    = NewError(RetCNotFound, "key not found")
	ErrWrongType   = NewError(RetCWrongType, "wrong type")
	ErrNotNumber   = NewError(RetCNotNumber, "not a number")
	ErrUnavailable = NewError(RetCUnavailable, "store unavailable")
)

// FromDBError maps the errors of a db.KVDB engine to store errors.
// nil stays nil, unknown errors become RetCInternalError.
func FromDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrKeyNotFound):
		return NewError(RetCNotFound, err.Error())
	case errors.Is(err, db.ErrWrongType):
		return NewError(RetCWrongType, err.Error())
	case errors.Is(err, db.ErrNotNumber):
		return NewError(RetCNotNumber, err.Error())
	default:
		return NewError(RetCInternalError, err.Error())
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCNotFound                            // 4: The key does not exist (and the operation requires it).
	RetCWrongType                           // 5: The key holds a different structure.
	RetCNotNumber                           // 6: Counter operation on a non-numeric field.
	RetCUnavailable                         // 7: The store could not be reached or timed out.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCWrongType:
		return "WrongType"
	case RetCNotNumber:
		return "NotNumber"
	case RetCUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}
