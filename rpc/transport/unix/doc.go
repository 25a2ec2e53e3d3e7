// Package unix implements the transport over Unix domain sockets for processes on
// the same machine. It provides the connectors for package base and inherits its
// framing, connection pooling and request routing.
//
// The endpoint is the socket path. A stale socket file is removed before listening.
package unix
