// Package lstore implements a local, single-node store based on the store.IStore
// interface. It is a thin wrapper around any db.KVDB implementation: engine errors are
// mapped to store error codes and unsupported engine features are reported as
// RetCUnsupportedOperation instead of failing silently.
//
// Whether data survives a process restart depends on the engine: maple keeps
// everything in memory, leveldb persists to disk.
//
// Thread Safety:
//
//	All operations are thread-safe. The store adds no locking of its own, the
//	db.KVDB engines guarantee atomicity per key.
//
// Usage Example:
//
//	factory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//	defer s.Close()
//
//	_ = s.HSetIfUnset(ctx, "bandit:1", map[string]string{"count": "0"})
//	n, err := s.HIncrBy(ctx, "bandit:1", "count", 1)
//
// The context arguments are accepted for interface compatibility; local operations
// do not block and only check whether the context is already done.
package lstore
