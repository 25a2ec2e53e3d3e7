package internal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/dBandit/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTHSetIfUnset  CommandType = iota // Create a hash or add missing fields to it.
	CommandTHSet                            // Overwrite a field of an existing hash.
	CommandTHIncrBy                         // Add an integer delta to a field.
	CommandTHIncrByFloat                    // Add a float delta to a field.
	CommandTSAdd                            // Add a member to a set.
	CommandTSRem                            // Remove a member from a set.
	CommandTDelete                          // Delete a key.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTHSetIfUnset:
		return "HSetIfUnset"
	case CommandTHSet:
		return "HSet"
	case CommandTHIncrBy:
		return "HIncrBy"
	case CommandTHIncrByFloat:
		return "HIncrByFloat"
	case CommandTSAdd:
		return "SAdd"
	case CommandTSRem:
		return "SRem"
	case CommandTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTHSetIfUnset, CommandTHSet:
		return db.FeatureHash, nil
	case CommandTHIncrBy, CommandTHIncrByFloat:
		return db.FeatureCounter, nil
	case CommandTSAdd, CommandTSRem:
		return db.FeatureSet, nil
	case CommandTDelete:
		return db.FeatureDelete, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type   CommandType
	Key    string
	Field  string            // hash field or set member
	Value  string            // new field value (HSet)
	Delta  uint64            // int64 or float64 bits (HIncrBy, HIncrByFloat)
	Fields map[string]string // fields to backfill (HSetIfUnset)
}

// IntDelta returns the delta of a HIncrBy command
func (command *Command) IntDelta() int64 { return int64(command.Delta) }

// FloatDelta returns the delta of a HIncrByFloat command
func (command *Command) FloatDelta() float64 { return math.Float64frombits(command.Delta) }

// SetIntDelta stores an integer delta
func (command *Command) SetIntDelta(d int64) { command.Delta = uint64(d) }

// SetFloatDelta stores a float delta
func (command *Command) SetFloatDelta(d float64) { command.Delta = math.Float64bits(d) }

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := 1 + 8 // Type + Delta
	size += 4 + len(command.Key)
	size += 4 + len(command.Field)
	size += 4 + len(command.Value)
	size += 4 // number of fields
	for f, v := range command.Fields {
		size += 4 + len(f) + 4 + len(v)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for delta (big endian),
// key, field and value as length prefixed strings (4 bytes length, big endian),
// 4 bytes for the number of fields followed by the fields as pairs of length prefixed strings
func (command *Command) Serialize() []byte {
	result := make([]byte, 0, command.SizeBytes())

	result = append(result, byte(command.Type))
	result = binary.BigEndian.AppendUint64(result, command.Delta)
	result = appendString(result, command.Key)
	result = appendString(result, command.Field)
	result = appendString(result, command.Value)

	result = binary.BigEndian.AppendUint32(result, uint32(len(command.Fields)))
	for f, v := range command.Fields {
		result = appendString(result, f)
		result = appendString(result, v)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	// Minimum size: 1 (Type) + 8 (Delta) + 3*4 (string lengths) + 4 (field count) = 25 bytes
	if len(data) < 25 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Delta = binary.BigEndian.Uint64(data[1:9])

	r := reader{data: data, pos: 9}
	command.Key = r.string()
	command.Field = r.string()
	command.Value = r.string()

	n := r.uint32()
	if r.err != nil {
		return r.err
	}

	command.Fields = nil
	if n > 0 {
		// every pair needs at least 8 bytes, guards against corrupt counts
		if int(n) > (len(data)-r.pos)/8 {
			return fmt.Errorf("data too short for %d fields", n)
		}
		command.Fields = make(map[string]string, n)
		for i := uint32(0); i < n; i++ {
			f := r.string()
			v := r.string()
			if r.err != nil {
				return r.err
			}
			command.Fields[f] = v
		}
	}

	if r.pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-r.pos)
	}
	return r.err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// reader decodes length prefixed values and remembers the first error
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.data) < r.pos+4 {
		r.err = fmt.Errorf("data too short at offset %d", r.pos)
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) string() string {
	n := int(r.uint32())
	if r.err != nil {
		return ""
	}
	if len(r.data) < r.pos+n {
		r.err = fmt.Errorf("data too short for string of length %d", n)
		return ""
	}
	s := string(r.data[r.pos : r.pos+n])
	r.pos += n
	return s
}
