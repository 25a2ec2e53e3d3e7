// Package rpc exposes a store.IStore over the network. A server hosts any number
// of shards, each shard being a store, and a client implements store.IStore by
// forwarding every call to one shard.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, configuration structures and logging.
//
//   - transport: pluggable network transports (TCP, Unix sockets, HTTP).
//
//   - serializer: Message encodings (Binary, JSON, GOB).
//
//   - client: the store.IStore implementation talking to a server.
//
//   - server: the server dispatching requests to its shards.
package rpc
