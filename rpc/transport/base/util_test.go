package base

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	payloads := [][]byte{[]byte("hget"), {}, bytes.Repeat([]byte{7}, 300)}
	go func() {
		for i, p := range payloads {
			if err := writeFrame(a, 100, uint64(i+1), p); err != nil {
				t.Errorf("writeFrame failed: %v", err)
				return
			}
		}
	}()

	buf := make([]byte, 64)
	for i, want := range payloads {
		shard, id, data, err := readFrame(b, buf)
		if err != nil {
			t.Fatalf("readFrame failed: %v", err)
		}
		if shard != 100 || id != uint64(i+1) || !bytes.Equal(data, want) {
			t.Errorf("frame %d: got shard=%d id=%d len=%d", i, shard, id, len(data))
		}
	}
}

func TestFrameTooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		var header [frameHeaderSize]byte
		binary.BigEndian.PutUint32(header[16:], maxFrameSize+1)
		_, _ = a.Write(header[:])
	}()

	if _, _, _, err := readFrame(b, nil); err == nil {
		t.Error("Expected an error for an oversized frame")
	}
}
