// Package dstore implements store.IStore on top of a RAFT shard run by
// Dragonboat. Every replica holds a full db.KVDB, so arms stored on a dstore
// shard survive the loss of a minority of the servers.
//
// Components:
//
//   - storeImpl (store.go): the IStore seen by the rpc server. Writes are
//     encoded as internal.Command and proposed with SyncPropose, reads are
//     internal.Query values passed to SyncRead.
//
//   - stateMachine (statemachine.go): the IConcurrentStateMachine executed on
//     every replica. Update applies committed commands to the db.KVDB, Lookup
//     answers queries, and the snapshot methods delegate to Save and Load of
//     the engine.
//
// Writes:
//
// HSetIfUnset, HSet, HIncrBy, HIncrByFloat, SAdd, SRem and Delete go through
// the RAFT log. The log orders them globally, so an increment is applied once
// and in the same position on every replica, and the new counter value is
// returned in the Data of the statemachine.Result. The result code carries the
// store.RetCode of the engine call.
//
// Reads:
//
// HGet, HGetAll, HGetMulti, SMembers, SIsMember, SCard and Has use SyncRead and
// are linearizable. GetDBInfo uses StaleRead, its counters do not need to be exact.
//
// Failures:
//
// dragonboat.ErrSystemBusy is retried with a short pause until the timeout of
// the store expires. A timeout, a closed node host or a missing quorum is
// reported as store.ErrUnavailable, which the bandit layer turns into its
// ErrStoreUnavailable.
//
// Setup:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	// ...
//	err = nh.StartConcurrentReplica(members, false,
//		dstore.CreateStateMachineFactory(func() db.KVDB { return maple.NewMapleDB(nil) }),
//		shardConfig)
//	// ...
//	st := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// The rpc server performs these steps for every shard of type dstore. Deploy
// an odd number of replicas (3 or 5), writes stop while no majority is reachable.
package dstore
