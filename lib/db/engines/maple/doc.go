// Package maple implements an in-memory key-value database (KVDB) whose keys hold
// hashes or sets. It provides a complete implementation of the db.KVDB interface with
// a focus on thread safety and low contention.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages the
//     shards and a monotonically increasing write index that is stamped onto every
//     modified entry and reported by GetInfo.
//
//   - Shard: A partition of the database that manages a subset of the key space.
//     Keys are distributed across shards in a two-step process:
//     1. String keys are converted to 64-bit integers with a seeded xxhash64 (util.HashString)
//     with a database-specific seed
//     2. The integer key is right-shifted by 7 bits to use higher-quality bits for
//     distribution
//
//   - Entry: The structure stored under a key. An entry is either a hash or a set and
//     is never mutated once stored. Writes clone the entry, modify the clone and swap it
//     in (copy-on-write), so readers never need a lock.
//
// Atomicity:
//
// Every mutating operation runs inside xsync.MapOf.Compute, which serializes all
// computations on the same key. Read-modify-write operations such as HIncrBy or
// HSetIfUnset are therefore atomic without any additional locking, and operations on
// different keys never block each other.
//
// Persistence Format:
//
// Save and Load use the snapshot format of the util package. The snapshot is fuzzy:
// each key is captured consistently, but concurrent writes to other keys may or may not
// be part of it. It is on the caller to provide a consistent snapshot for loading
// (the raft state machine in dstore does).
package maple
