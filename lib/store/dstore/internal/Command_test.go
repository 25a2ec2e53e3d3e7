package internal

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "HSet with key, field and value",
			command: Command{
				Type:  CommandTHSet,
				Key:   "bandit:1",
				Field: "name",
				Value: "arm",
			},
			expected: 1 + 8 + 4 + 8 + 4 + 4 + 4 + 3 + 4, // Type + Delta + Key + Field + Value + FieldCount
		},
		{
			name: "HSetIfUnset with fields",
			command: Command{
				Type:   CommandTHSetIfUnset,
				Key:    "k",
				Fields: map[string]string{"count": "0"},
			},
			expected: 1 + 8 + 4 + 1 + 4 + 4 + 4 + (4 + 5 + 4 + 1),
		},
		{
			name:     "Empty command",
			command:  Command{Type: CommandTDelete},
			expected: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	incr := Command{Type: CommandTHIncrBy, Key: "bandit:1", Field: "count"}
	incr.SetIntDelta(-42)

	incrFloat := Command{Type: CommandTHIncrByFloat, Key: "bandit:1", Field: "reward"}
	incrFloat.SetFloatDelta(0.125)

	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "HSetIfUnset with several fields",
			command: Command{
				Type:   CommandTHSetIfUnset,
				Key:    "bandit:1",
				Fields: map[string]string{"count": "0", "reward": "0.5", "label": ""},
			},
		},
		{
			name:    "HSet",
			command: Command{Type: CommandTHSet, Key: "bandit:1", Field: "label", Value: "a\x00b"},
		},
		{name: "HIncrBy negative delta", command: incr},
		{name: "HIncrByFloat", command: incrFloat},
		{name: "SAdd", command: Command{Type: CommandTSAdd, Key: "bandit", Field: "1"}},
		{name: "Delete without field", command: Command{Type: CommandTDelete, Key: "bandit:1"}},
		{name: "Unicode key", command: Command{Type: CommandTSRem, Key: "你好世界", Field: "✓"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var newCommand Command
			if err := newCommand.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if newCommand.Key != tt.command.Key {
				t.Errorf("Key mismatch: got %q, want %q", newCommand.Key, tt.command.Key)
			}
			if newCommand.Field != tt.command.Field || newCommand.Value != tt.command.Value {
				t.Errorf("Field/Value mismatch: got %q=%q, want %q=%q",
					newCommand.Field, newCommand.Value, tt.command.Field, tt.command.Value)
			}
			if newCommand.Delta != tt.command.Delta {
				t.Errorf("Delta mismatch: got %v, want %v", newCommand.Delta, tt.command.Delta)
			}
			if len(tt.command.Fields) > 0 && !reflect.DeepEqual(newCommand.Fields, tt.command.Fields) {
				t.Errorf("Fields mismatch: got %v, want %v", newCommand.Fields, tt.command.Fields)
			}

			// Verify that SizeBytes matches the serialized data length
			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d",
					tt.command.SizeBytes(), len(data))
			}
		})
	}

	var decoded Command
	_ = decoded.Deserialize(incr.Serialize())
	if decoded.IntDelta() != -42 {
		t.Errorf("Expected int delta -42, got %d", decoded.IntDelta())
	}
	_ = decoded.Deserialize(incrFloat.Serialize())
	if decoded.FloatDelta() != 0.125 {
		t.Errorf("Expected float delta 0.125, got %f", decoded.FloatDelta())
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectedErr: "data too short for command",
		},
		{
			name:        "Data too short (less than header)",
			data:        []byte{1, 2, 3, 4, 5},
			expectedErr: "data too short for command",
		},
		{
			name: "Invalid key length",
			data: func() []byte {
				data := make([]byte, 25)
				data[0] = byte(CommandTHSet)
				// Set key length to a large value that exceeds the data
				binary.BigEndian.PutUint32(data[9:13], 1000)
				return data
			}(),
			expectedErr: "data too short for string of length 1000",
		},
		{
			name: "Invalid field count",
			data: func() []byte {
				data := make([]byte, 25)
				data[0] = byte(CommandTHSetIfUnset)
				binary.BigEndian.PutUint32(data[21:25], 3)
				return data
			}(),
			expectedErr: "data too short for 3 fields",
		},
		{
			name:        "Trailing bytes",
			data:        append((&Command{Type: CommandTDelete, Key: "k"}).Serialize(), 0xff),
			expectedErr: "1 trailing bytes after command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)

			// Check if we got the expected error
			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{Type: CommandTHIncrBy, Key: "arm", Field: "n"}
	cmd.SetIntDelta(7)

	var expected []byte
	expected = append(expected, byte(CommandTHIncrBy))
	expected = binary.BigEndian.AppendUint64(expected, 7)
	expected = binary.BigEndian.AppendUint32(expected, 3)
	expected = append(expected, "arm"...)
	expected = binary.BigEndian.AppendUint32(expected, 1)
	expected = append(expected, "n"...)
	expected = binary.BigEndian.AppendUint32(expected, 0) // value
	expected = binary.BigEndian.AppendUint32(expected, 0) // field count

	serialized := cmd.Serialize()
	if !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}

// TestFeatureMapping checks that every command type maps to a feature
func TestFeatureMapping(t *testing.T) {
	for ct := CommandTHSetIfUnset; ct <= CommandTDelete; ct++ {
		if _, err := ct.ToDBFeature(); err != nil {
			t.Errorf("Expected feature for %s, got %v", ct, err)
		}
	}
	if _, err := CommandType(200).ToDBFeature(); err == nil {
		t.Errorf("Expected error for unknown command type")
	}
}
