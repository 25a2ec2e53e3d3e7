package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dBandit/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey     byte = 1 << 0
	hasField   byte = 1 << 1
	hasValue   byte = 1 << 2
	hasEntries byte = 1 << 3
	hasOk      byte = 1 << 4
	hasCode    byte = 1 << 5
	hasErr     byte = 1 << 6
	hasMeta    byte = 1 << 7
)

// Per entry flags
const (
	entryFound byte = 1 << 0
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

// Serialize writes the message as
//
//	type(1) | flags(1) | [key] | [field] | [value] | [n(4) | n*entry] | [ok(1)] | [code(1)] | [err] | [meta]
//
// where every string is prefixed with its uint32 length and an entry is key | field | value | flags(1).
func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Key != "" {
		flags |= hasKey
		result = appendString(result, msg.Key)
	}
	if msg.Field != "" {
		flags |= hasField
		result = appendString(result, msg.Field)
	}
	if msg.Value != "" {
		flags |= hasValue
		result = appendString(result, msg.Value)
	}
	if len(msg.Entries) > 0 {
		flags |= hasEntries
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Entries)))
		for _, e := range msg.Entries {
			result = appendString(result, e.Key)
			result = appendString(result, e.Field)
			result = appendString(result, e.Value)
			var ef byte
			if e.Found {
				ef |= entryFound
			}
			result = append(result, ef)
		}
	}
	if msg.Ok {
		flags |= hasOk
		result = append(result, 1)
	}
	if msg.Code != 0 {
		flags |= hasCode
		result = append(result, msg.Code)
	}
	if msg.Err != "" {
		flags |= hasErr
		result = appendString(result, msg.Err)
	}
	if len(msg.Meta) > 0 {
		flags |= hasMeta
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Meta)))
		result = append(result, msg.Meta...)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	r := reader{data: data, pos: 2}

	if flags&hasKey != 0 {
		msg.Key = r.string("key")
	}
	if flags&hasField != 0 {
		msg.Field = r.string("field")
	}
	if flags&hasValue != 0 {
		msg.Value = r.string("value")
	}
	if flags&hasEntries != 0 {
		n := r.uint32("entry count")
		// every entry needs at least 13 bytes, reject counts the data cannot hold
		if r.err == nil && uint64(n)*13 > uint64(len(data)-r.pos) {
			r.err = fmt.Errorf("data too short for %d entries", n)
		}
		if r.err == nil {
			msg.Entries = make([]common.Entry, n)
			for i := range msg.Entries {
				msg.Entries[i].Key = r.string("entry key")
				msg.Entries[i].Field = r.string("entry field")
				msg.Entries[i].Value = r.string("entry value")
				msg.Entries[i].Found = r.byte("entry flags")&entryFound != 0
			}
		}
	}
	if flags&hasOk != 0 {
		msg.Ok = r.byte("Ok flag") != 0
	}
	if flags&hasCode != 0 {
		msg.Code = r.byte("code")
	}
	if flags&hasErr != 0 {
		msg.Err = r.string("error")
	}
	if flags&hasMeta != 0 {
		n := r.uint32("meta length")
		meta := r.bytes(int(n), "meta data")
		if r.err == nil {
			msg.Meta = append([]byte(nil), meta...)
		}
	}
	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Field != "" {
		size += 4 + len(msg.Field)
	}
	if msg.Value != "" {
		size += 4 + len(msg.Value)
	}
	if len(msg.Entries) > 0 {
		size += 4
		for _, e := range msg.Entries {
			size += 13 + len(e.Key) + len(e.Field) + len(e.Value)
		}
	}
	if msg.Ok {
		size++
	}
	if msg.Code != 0 {
		size++
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if len(msg.Meta) > 0 {
		size += 4 + len(msg.Meta)
	}
	return size
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// reader keeps the first error, every read after an error is a no-op
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) bytes(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", what)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) byte(what string) byte {
	b := r.bytes(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint32(what string) uint32 {
	b := r.bytes(4, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) string(what string) string {
	n := r.uint32(what + " length")
	return string(r.bytes(int(n), what+" data"))
}
