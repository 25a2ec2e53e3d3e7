package bandit

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dBandit/lib/store"
)

var (
	// ErrUnknownField is matched by every UnknownFieldError
	ErrUnknownField = errors.New("unknown field")
	// ErrNotFound is matched by every NotFoundError
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps all store failures that are not a missing record.
	// The original *store.Error stays reachable with errors.As.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotNumeric is returned when incrementing a field that is not declared numeric
	ErrNotNumeric = errors.New("field is not numeric")
	// ErrInvalidValue is returned for values that do not match the declared field kind
	ErrInvalidValue = errors.New("invalid field value")
	// ErrInvalidKey is returned for empty ids, ids containing ':' and empty prefixes
	ErrInvalidKey = errors.New("invalid key")
	// ErrUnknownSchema is returned when a transfer reference names an unregistered schema
	ErrUnknownSchema = errors.New("unknown schema")
)

// UnknownFieldError reports a field name that is not declared by the schema.
// It is raised before any store call.
type UnknownFieldError struct {
	Schema string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q for schema %q", e.Field, e.Schema)
}

func (e *UnknownFieldError) Is(target error) bool { return target == ErrUnknownField }

// NotFoundError reports an arm that is not a member of a bandit or whose record
// does not exist (anymore). Field is set if only a single field is missing.
type NotFoundError struct {
	Key   string
	ID    string
	Field string
}

func (e *NotFoundError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("arm %q (key %q) has no field %q", e.ID, e.Key, e.Field)
	}
	return fmt.Sprintf("arm %q not found (key %q)", e.ID, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// storeFailure ties a failed store call to ErrStoreUnavailable and the cause
type storeFailure struct {
	op  string
	key string
	err error
}

func (e *storeFailure) Error() string {
	return fmt.Sprintf("%s %q: %v: %v", e.op, e.key, ErrStoreUnavailable, e.err)
}

func (e *storeFailure) Unwrap() []error { return []error{ErrStoreUnavailable, e.err} }

// fromStore converts the error of a store call on the record key of arm id
func fromStore(op, key, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Key: key, ID: id}
	case errors.Is(err, store.ErrNotNumber):
		return fmt.Errorf("%s %q: %w: %v", op, key, ErrInvalidValue, err)
	default:
		return &storeFailure{op: op, key: key, err: err}
	}
}
