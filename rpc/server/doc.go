// Package server implements the RPC server that exposes store.IStore shards over a transport.
//
// Every shard is addressed by its ID and backed by one of three store kinds:
//
//   - ShardTypeLocalIStore: an in-memory lstore on the maple engine.
//   - ShardTypePersistentIStore: an lstore on a leveldb engine below DataDir/shard-<id>.
//   - ShardTypeRemoteIStore: a raft replicated dstore. When using this type the RAFT
//     configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead, DataDir,
//     ReplicaID and ClusterMembers) must be set.
//
// Key Components:
//
//   - IRPCServerAdapter: translates a decoded common.Message into a call on a store.IStore
//     and builds the response. Store errors keep their return code in Message.Code.
//
//   - RPCServer: owns the shards, the serializer and the transport. Handle can be called
//     directly, which is how the in-process tests drive the server.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalIStore},
//	    {ShardID: 200, Type: common.ShardTypePersistentIStore},
//	  },
//	  DataDir:       "/var/lib/dbandit",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Every request is counted in dbandit_rpc_requests_total and timed in
// dbandit_rpc_request_duration_seconds (labelled by message type). Failed requests are
// additionally counted in dbandit_rpc_errors_total by return code.
package server
