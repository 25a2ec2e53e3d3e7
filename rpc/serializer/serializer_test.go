package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dBandit/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// HSet request
		{
			MsgType: common.MsgTHSet,
			Key:     "arms:a1",
			Field:   "pulls",
			Value:   "17",
		},

		// HGet response
		{
			MsgType: common.MsgTHGet,
			Value:   "0.25",
			Ok:      true,
		},

		// HGetMulti response, found and missing entries
		{
			MsgType: common.MsgTHGetMulti,
			Entries: []common.Entry{
				{Key: "arms:a1", Field: "pulls", Value: "3", Found: true},
				{Key: "arms:a2", Field: "pulls"},
			},
		},

		// Error response with code
		{
			MsgType: common.MsgTHIncrBy,
			Code:    6,
			Err:     "value is not an integer",
		},

		// Message with all fields filled
		{
			MsgType: common.MsgTHSetIfUnset,
			Key:     "arms:a1",
			Field:   "f",
			Value:   "v",
			Entries: []common.Entry{{Field: "pulls", Value: "0"}, {Field: "name", Value: "ünïcode ✓"}},
			Ok:      true,
			Code:    1,
			Err:     "err",
			Meta:    []byte(`{"keys":1}`),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				if err = serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// MsgTUnknown is skipped, json refuses to decode it
			for msgType := common.MsgTSuccess; msgType <= common.MsgTGetDBInfo; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType, err)
					continue
				}

				var result common.Message
				if err = serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType, err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s", msgType, result.MsgType)
				}
			}
		})
	}
}

// TestBinaryReusesNoState makes sure a decoded message does not keep fields of a previously decoded one
func TestBinaryReusesNoState(t *testing.T) {
	serializer := NewBinarySerializer()

	full, _ := serializer.Serialize(testMessages()[5])
	empty, _ := serializer.Serialize(common.Message{MsgType: common.MsgTHas})

	var msg common.Message
	if err := serializer.Deserialize(full, &msg); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if err := serializer.Deserialize(empty, &msg); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if !reflect.DeepEqual(msg, common.Message{MsgType: common.MsgTHas}) {
		t.Errorf("Expected a clean message, got %+v", msg)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{name: "Empty data", data: []byte{}, expectError: true},
		{name: "Too short header", data: []byte{1}, expectError: true},
		{name: "Valid header only", data: []byte{1, 0}, expectError: false},
		{name: "Invalid length for key", data: []byte{3, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, expectError: true},
		{name: "Invalid length for value", data: []byte{3, 4, 0, 0, 0, 10}, expectError: true},
		{name: "Too many entries", data: []byte{9, 8, 0xff, 0xff, 0xff, 0xff}, expectError: true},
		{name: "Missing code byte", data: []byte{9, 32}, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
