// Package transport defines the contract between the RPC client/server and the
// network. A transport moves opaque byte slices tagged with a shard ID, it knows
// nothing about messages or stores.
//
// Key Components:
//
//   - IRPCClientTransport: connection management and request sending.
//
//   - IRPCServerTransport: accepts requests and routes them to the registered handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations live in the subpackages http, tcp and unix. The socket based
// transports share the framing and connection handling of package base.
package transport
