// Package common provides the data structures shared by the RPC client, the RPC
// server and the transports.
//
// Key Components:
//
//   - Message: the single structure used for requests and responses. There is one
//     MessageType per store.IStore operation. Failed operations carry the
//     store.RetCode in Code, so clients rebuild a *store.Error with the same code
//     (see Message.AsError).
//
//   - ServerConfig / ClientConfig: configuration of server nodes (shards, raft
//     parameters, transport) and clients (endpoints, retries, timeouts). The raft
//     parameters convert to Dragonboat configurations.
//
//   - Logger: a formatter for Dragonboat's logger.ILogger which is used by every
//     package of this module. InitLoggers installs it and sets the level.
package common
