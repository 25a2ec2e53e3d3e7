// Package serializer converts common.Message values to bytes and back. It defines a
// common interface and three implementations with different trade-offs.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format. A flag byte records which optional
//     fields are present, so only those are written. Entries (field maps, batch
//     reads) are length-prefixed lists.
//
//   - gobSerializerImpl: Go's gob encoding. Larger and slower, kept for compatibility.
//
//   - jsonSerializerImpl: JSON encoding, human readable, useful for debugging with curl.
//
// Performance: Binary is the fastest and smallest, JSON is acceptable, GOB is the
// slowest because every message carries its type description.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	serializer := serializer.NewBinarySerializer()
//	data, err := serializer.Serialize(message)
//	// ... send data ...
//	var receivedMsg common.Message
//	err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
