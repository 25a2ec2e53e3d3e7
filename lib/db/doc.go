// Package db provides a standardized interface for structured key-value database
// engines. Every key holds either a hash (field -> value) or a set of members, which is
// the shape needed to store arms (one hash per arm) and bandits (one membership set
// per bandit).
//
// The package focuses on:
//   - A unified interface for hash, counter and set operations
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database engines must satisfy.
//     It provides hash operations (HSetIfUnset, HSet, HGet, HGetAll), atomic counters
//     (HIncrBy, HIncrByFloat), set operations (SAdd, SRem, SMembers, SIsMember, SCard),
//     key operations (Delete, Has) and persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that engines
//     advertise through the SupportsFeature method.
//
//   - Errors: ErrKeyNotFound, ErrWrongType and ErrNotNumber are the only errors an
//     engine reports for well-formed requests. The store layer maps them to return codes.
//
// Note on Atomicity:
//   - Each method call is atomic with respect to every other call on the same key.
//     Engines are free to choose how (lock-free compute, striped locks, ...).
//   - HSet, HIncrBy and HIncrByFloat never create a key. This is what allows callers
//     to detect that a record was deleted underneath them instead of silently
//     resurrecting it.
//   - There is no atomicity across keys.
//
// Related Packages:
//
// The engines/maple package provides a sharded in-memory engine built on xsync maps.
// The engines/leveldb package provides a persistent engine on top of goleveldb.
// The testing package provides a shared conformance suite (RunKVDBTests) for engines.
package db
