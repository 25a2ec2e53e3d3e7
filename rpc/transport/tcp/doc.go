// Package tcp implements the TCP socket transport. It provides the TCP connectors
// for package base, which contains the framing, connection pooling and request
// correlation.
//
// Socket options (TCP_NODELAY, keep-alive, linger, buffer sizes) are applied to
// both accepted and dialed connections.
package tcp
