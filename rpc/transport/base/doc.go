// Package base implements the socket transports (TCP, Unix sockets) independent of
// the concrete network. Protocol specific behaviour is injected through connectors.
//
// Frames have the format
//
//	shardId (8 bytes, big endian) | requestID (8 bytes) | length (4 bytes) | payload
//
// Key Components:
//
//   - IClientConnector/IServerConnector: dial/listen and socket options of one protocol.
//
//   - clientTransport: manages several connections per endpoint with round-robin
//     selection. Requests are written under a per connection lock, a reader goroutine
//     correlates responses by request ID. Only requests that never reached the wire
//     are retried, a written request may already have been applied (counters!).
//
//   - serverTransport: accepts connections and processes the frames of one
//     connection with a bounded number of workers. Read buffers are pooled.
//
// Thread Safety:
//
//	All public methods are safe for concurrent use.
package base
