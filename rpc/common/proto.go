package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dBandit/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Entry is one element of a list carried by a Message.
// Which fields are used depends on the type of message.
type Entry struct {
	Key   string `json:"key,omitempty"`   // Used for: HGetMulti (request)
	Field string `json:"field,omitempty"` // Used for: HSetIfUnset, HGetMulti (request), HGetAll (response)
	Value string `json:"value,omitempty"` // Used for: HSetIfUnset, HGetMulti, HGetAll, SMembers (response)
	Found bool   `json:"found,omitempty"` // Used for: HGetMulti (response)
}

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key   string `json:"key,omitempty"`   // Used for: every operation on a single key
	Field string `json:"field,omitempty"` // Used for: HGet, HSet, HIncrBy(Float), set member operations
	Value string `json:"value,omitempty"` // Used for: HSet, HIncrBy(Float) deltas (request), scalar results (response)

	// Entries carries field maps and batches
	Entries []Entry `json:"entries,omitempty"`

	// Response only fields
	Ok   bool   `json:"ok,omitempty"`   // Used for: HGet, Has, SIsMember responses
	Code uint8  `json:"code,omitempty"` // store.RetCode of a failed operation
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: GetDBInfo (json encoded db.DatabaseInfo)
}

// AsError rebuilds the store error carried by a response, nil if the response is not an error.
func (m *Message) AsError() error {
	if m.MsgType != MsgTError && m.Err == "" && m.Code == 0 {
		return nil
	}
	code := store.RetCode(m.Code)
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewHGetRequest creates a new HGet request
func NewHGetRequest(key, field string) *Message {
	return &Message{MsgType: MsgTHGet, Key: key, Field: field}
}

// NewHSetRequest creates a new HSet request
func NewHSetRequest(key, field, value string) *Message {
	return &Message{MsgType: MsgTHSet, Key: key, Field: field, Value: value}
}

// NewHSetIfUnsetRequest creates a new HSetIfUnset request, the fields are sent as entries
func NewHSetIfUnsetRequest(key string, fields map[string]string) *Message {
	entries := make([]Entry, 0, len(fields))
	for f, v := range fields {
		entries = append(entries, Entry{Field: f, Value: v})
	}
	return &Message{MsgType: MsgTHSetIfUnset, Key: key, Entries: entries}
}

// NewHIncrByRequest creates a new HIncrBy request
func NewHIncrByRequest(key, field string, delta int64) *Message {
	return &Message{MsgType: MsgTHIncrBy, Key: key, Field: field, Value: strconv.FormatInt(delta, 10)}
}

// NewHIncrByFloatRequest creates a new HIncrByFloat request.
// The shortest representation is used, ParseFloat restores the exact value.
func NewHIncrByFloatRequest(key, field string, delta float64) *Message {
	return &Message{MsgType: MsgTHIncrByFloat, Key: key, Field: field, Value: strconv.FormatFloat(delta, 'g', -1, 64)}
}

// NewHGetAllRequest creates a new HGetAll request
func NewHGetAllRequest(key string) *Message {
	return &Message{MsgType: MsgTHGetAll, Key: key}
}

// NewHGetMultiRequest creates a new HGetMulti request, one entry per ref
func NewHGetMultiRequest(refs []store.FieldRef) *Message {
	entries := make([]Entry, len(refs))
	for i, ref := range refs {
		entries[i] = Entry{Key: ref.Key, Field: ref.Field}
	}
	return &Message{MsgType: MsgTHGetMulti, Entries: entries}
}

// NewSetMemberRequest creates a request for one of the set operations that take a member
// (SAdd, SRem, SIsMember)
func NewSetMemberRequest(t MessageType, key, member string) *Message {
	return &Message{MsgType: t, Key: key, Field: member}
}

// NewKeyRequest creates a request for one of the operations that only take a key
// (SMembers, SCard, Delete, Has)
func NewKeyRequest(t MessageType, key string) *Message {
	return &Message{MsgType: t, Key: key}
}

// NewGetDBInfoRequest creates a new GetDBInfo request
func NewGetDBInfoRequest() *Message {
	return &Message{MsgType: MsgTGetDBInfo}
}

// NewResponse creates a response of type t. If err is set, its message and
// store.RetCode are copied into the response.
func NewResponse(t MessageType, err error) *Message {
	msg := &Message{
		MsgType: t,
	}
	if err != nil {
		msg.Err = err.Error()
		msg.Code = uint8(store.RetCInternalError)
		var se *store.Error
		if errors.As(err, &se) {
			msg.Err = se.Msg
			msg.Code = uint8(se.Code)
		}
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code store.RetCode, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    uint8(code),
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:      "success",
	MsgTError:        "error",
	MsgTHGet:         "hget",
	MsgTHSet:         "hset",
	MsgTHSetIfUnset:  "hsetIfUnset",
	MsgTHIncrBy:      "hincrBy",
	MsgTHIncrByFloat: "hincrByFloat",
	MsgTHGetAll:      "hgetAll",
	MsgTHGetMulti:    "hgetMulti",
	MsgTSAdd:         "sadd",
	MsgTSRem:         "srem",
	MsgTSMembers:     "smembers",
	MsgTSIsMember:    "sisMember",
	MsgTSCard:        "scard",
	MsgTDelete:       "delete",
	MsgTHas:          "has",
	MsgTGetDBInfo:    "dbInfo",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Hash operations

	MsgTHGet         // Read a single field
	MsgTHSet         // Overwrite a single field of an existing hash
	MsgTHSetIfUnset  // Backfill missing fields, creates the hash
	MsgTHIncrBy      // Atomic integer increment
	MsgTHIncrByFloat // Atomic float increment
	MsgTHGetAll      // Read all fields of a hash
	MsgTHGetMulti    // Batched field read across keys

	// Set operations

	MsgTSAdd      // Add a member
	MsgTSRem      // Remove a member
	MsgTSMembers  // List members
	MsgTSIsMember // Membership test
	MsgTSCard     // Cardinality

	// Key operations

	MsgTDelete    // Delete a key
	MsgTHas       // Check if a key exists
	MsgTGetDBInfo // Metadata of the underlying database
)
