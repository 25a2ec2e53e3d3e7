// Package http implements the HTTP transport.
//
// The server accepts POST /{shardId} with the serialized message as body and
// answers with the serialized response. GET /metrics exposes the server metrics in
// the Prometheus text format.
//
// The client distributes requests round-robin over all endpoints. Endpoints may be
// given as URLs (http://host:port) or as plain host:port.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use, the round-robin counter is atomic.
package http
