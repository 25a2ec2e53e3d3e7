// Package store provides the connection contract between the bandit record model and a
// structured key-value store. Every key holds either a hash (field -> value) or a set of
// members, and the contract only contains the primitives a record/collection model needs:
// single field reads and writes, atomic counters, full-hash reads, a batched multi-key
// field read, set membership and key deletion.
//
// Key Components:
//
//   - IStore Interface: The core abstraction implemented by every backend. All methods
//     take a context.Context so that remote backends can honour deadlines and
//     cancellation. Write primitives that target a single field never create a key,
//     which lets callers detect records that were deleted underneath them.
//
//   - Error System: A structured error reporting mechanism using typed return codes
//     (RetCode) and descriptive messages. Errors keep their code across process
//     boundaries (the RPC layer transports it), and errors.Is(err, store.ErrNotFound)
//     compares codes, so callers can branch on conditions instead of messages.
//
//   - DBFactory: A function type that abstracts the creation of the underlying db.KVDB
//     instance used by the lstore and dstore implementations.
//
// Implementations:
//
//	- Local Store (lstore): A non-distributed implementation that directly utilizes a
//	  db.KVDB instance (maple in memory, leveldb on disk).
//	  Available in the "github.com/ValentinKolb/dBandit/lib/store/lstore" package.
//
//	- Distributed Store (dstore): An implementation built on the Dragonboat RAFT
//	  consensus library. Writes go through the raft log, reads are linearizable.
//	  Available in the "github.com/ValentinKolb/dBandit/lib/store/dstore" package.
//
//	- Redis Store (rstore): An implementation on top of go-redis. Batched reads are
//	  pipelined, writes that must not create keys are Lua scripts.
//	  Available in the "github.com/ValentinKolb/dBandit/lib/store/rstore" package.
//
//	- RPC client: The rpc/client package implements IStore against a remote dbandit
//	  server, see "github.com/ValentinKolb/dBandit/rpc/client".
//
// The connect package opens any of these from a connection URL.
package store
