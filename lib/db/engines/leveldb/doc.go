// Package leveldb implements a persistent db.KVDB engine on top of goleveldb.
//
// A logical key is stored as one meta record holding its kind plus one leveldb
// record per hash field or set member, so single fields can be read and written
// without decoding the whole structure. Multi-record updates are written with a
// leveldb.Batch and are therefore atomic on disk.
//
// Read-modify-write operations (HSetIfUnset, HIncrBy, SRem, ...) are serialized per key
// with a fixed array of striped mutexes. Reads take no lock, leveldb iterators operate
// on an implicit snapshot.
//
// An empty path opens the database on goleveldb's in-memory storage, which is used by
// the tests.
package leveldb
