package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// A frame is a fixed header followed by the serialized message:
//
//	shardID(8) | requestID(8) | length(4) | payload(length)
//
// all integers big endian.
const (
	frameHeaderSize = 20

	// maxFrameSize bounds the payload a peer can make us allocate
	maxFrameSize = 64 << 20
)

func writeFrame(conn net.Conn, shardID, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", len(data), maxFrameSize)
	}
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint64(header[0:], shardID)
	binary.BigEndian.PutUint64(header[8:], requestID)
	binary.BigEndian.PutUint32(header[16:], uint32(len(data)))

	bufs := net.Buffers{header[:], data}
	_, err := bufs.WriteTo(conn)
	return err
}

// readFrame reads the next frame. The payload is read into buf if it fits,
// otherwise into a new slice, so it is only valid as long as buf is.
func readFrame(conn net.Conn, buf []byte) (shardID, requestID uint64, data []byte, err error) {
	var header [frameHeaderSize]byte
	if _, err = io.ReadFull(conn, header[:]); err != nil {
		return 0, 0, nil, err
	}
	shardID = binary.BigEndian.Uint64(header[0:])
	requestID = binary.BigEndian.Uint64(header[8:])
	n := binary.BigEndian.Uint32(header[16:])

	if n > maxFrameSize {
		return 0, 0, nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", n, maxFrameSize)
	}
	if int(n) > len(buf) {
		buf = make([]byte, n)
	}
	if _, err = io.ReadFull(conn, buf[:n]); err != nil {
		return 0, 0, nil, err
	}
	return shardID, requestID, buf[:n], nil
}
