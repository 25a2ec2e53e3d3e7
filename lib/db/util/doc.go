// Package util provides utility components for engines that satisfy the db.KVDB
// interface.
//
// The package contains:
//   - functions: seed generation and the seeded FNV-1a string hash used for sharding
//     and lock striping
//   - statistics: summary statistics for shard distribution reporting
//   - snapshot: the binary snapshot codec shared by all engines for Save and Load,
//     so a snapshot written by one engine can be restored into another
package util
