// Package rstore implements store.IStore on top of a Redis server using go-redis.
//
// Hashes and sets map directly onto Redis hashes and sets. Two details are worth knowing:
//
//   - HSet, HIncrBy and HIncrByFloat must not create a key. Redis offers no XX flag for
//     hash commands, so these run as small Lua scripts that check EXISTS first and reply
//     with a NOTFOUND error otherwise.
//
//   - HGetMulti pipelines one HGET per field, so a batched read is a single round trip.
//     HSetIfUnset wraps one HSETNX per field in MULTI/EXEC.
//
// Redis cannot store an empty hash, HSetIfUnset without fields is therefore a no-op.
// Connection failures and timeouts are reported with RetCUnavailable, Redis type errors
// with RetCWrongType and arithmetic errors with RetCNotNumber.
package rstore
