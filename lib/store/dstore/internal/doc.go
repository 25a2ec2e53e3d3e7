// Package internal holds the messages exchanged between the dstore client and
// its state machine. It is not meant to be imported outside of dstore.
//
// Command (Command.go) is a write. It is stored in the RAFT log, so it has a
// compact binary encoding:
//
//	type(1) | delta(8) | key | field | value | n(4) | n * (field | value)
//
// where delta holds the int64 or the float64 bits of an increment and every
// string is a uint32 length followed by its bytes. Unused strings are encoded
// empty, so all commands share one layout. ToDBFeature maps a command to the
// db.Feature the engine of the state machine needs for it.
//
// Query (Query.go) is a read. Queries never leave the process (Dragonboat hands
// them to Lookup as a value), so they are plain structs without an encoding.
//
// Neither type is safe for concurrent mutation. The state machine only reads them.
package internal
