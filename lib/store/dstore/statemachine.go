package dstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	require := func(f db.Feature) error {
		if !fsm.database.SupportsFeature(f) {
			return store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("%s operation is not supported", q.Type))
		}
		return nil
	}

	// Handle different Query types
	switch q.Type {
	case internal.QueryTHGet:
		if err := require(db.FeatureHash); err != nil {
			return nil, err
		}
		val, ok, err := fsm.database.HGet(q.Key, q.Field)
		if err != nil {
			return nil, store.FromDBError(err)
		}
		return internal.QueryResult{Value: val, Ok: ok}, nil

	case internal.QueryTHGetAll:
		if err := require(db.FeatureHash); err != nil {
			return nil, err
		}
		fields, err := fsm.database.HGetAll(q.Key)
		if err != nil {
			return nil, store.FromDBError(err)
		}
		return fields, nil

	case internal.QueryTHGetMulti:
		if err := require(db.FeatureHash); err != nil {
			return nil, err
		}
		values := make([]store.FieldValue, len(q.Refs))
		for i, ref := range q.Refs {
			val, ok, err := fsm.database.HGet(ref.Key, ref.Field)
			if err != nil {
				return nil, store.FromDBError(err)
			}
			values[i] = store.FieldValue{Value: val, Found: ok}
		}
		return values, nil

	case internal.QueryTSMembers:
		if err := require(db.FeatureSet); err != nil {
			return nil, err
		}
		members, err := fsm.database.SMembers(q.Key)
		if err != nil {
			return nil, store.FromDBError(err)
		}
		return members, nil

	case internal.QueryTSIsMember:
		if err := require(db.FeatureSet); err != nil {
			return nil, err
		}
		ok, err := fsm.database.SIsMember(q.Key, q.Field)
		if err != nil {
			return nil, store.FromDBError(err)
		}
		return ok, nil

	case internal.QueryTSCard:
		if err := require(db.FeatureSet); err != nil {
			return nil, err
		}
		n, err := fsm.database.SCard(q.Key)
		if err != nil {
			return nil, store.FromDBError(err)
		}
		return int64(n), nil

	case internal.QueryTHas:
		if err := require(db.FeatureHas); err != nil {
			return nil, err
		}
		ok, err := fsm.database.Has(q.Key)
		if err != nil {
			return nil, store.FromDBError(err)
		}
		return ok, nil

	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil

	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the KVDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	for idx, e := range entries {
		entries[idx].Result = fsm.apply(e.Cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single serialized command.
// The result value carries the store.RetCode, the data either the error message or the
// 8 byte result of a counter operation (int64 or float64 bits, big endian).
func (fsm *KVStateMachine) apply(data []byte) sm.Result {
	if len(data) == 0 {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
	}

	// Deserialize the command
	cmd := internal.Command{}
	if err := cmd.Deserialize(data); err != nil {
		return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
	}

	// Check if the db supports the operation
	feat, err := cmd.Type.ToDBFeature()
	if err != nil {
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}
	if !fsm.database.SupportsFeature(feat) {
		return sm.Result{
			Value: uint64(store.RetCUnsupportedOperation),
			Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
		}
	}

	var out uint64
	switch cmd.Type {
	case internal.CommandTHSetIfUnset:
		_, err = fsm.database.HSetIfUnset(cmd.Key, cmd.Fields)
	case internal.CommandTHSet:
		err = fsm.database.HSet(cmd.Key, cmd.Field, cmd.Value)
	case internal.CommandTHIncrBy:
		var v int64
		v, err = fsm.database.HIncrBy(cmd.Key, cmd.Field, cmd.IntDelta())
		out = uint64(v)
	case internal.CommandTHIncrByFloat:
		var v float64
		v, err = fsm.database.HIncrByFloat(cmd.Key, cmd.Field, cmd.FloatDelta())
		out = math.Float64bits(v)
	case internal.CommandTSAdd:
		_, err = fsm.database.SAdd(cmd.Key, cmd.Field)
	case internal.CommandTSRem:
		_, err = fsm.database.SRem(cmd.Key, cmd.Field)
	case internal.CommandTDelete:
		_, err = fsm.database.Delete(cmd.Key)
	}

	if err != nil {
		var se *store.Error
		errors.As(store.FromDBError(err), &se)
		return sm.Result{Value: uint64(se.Code), Data: []byte(se.Msg)}
	}
	return sm.Result{Value: uint64(store.RetCSuccess), Data: binary.BigEndian.AppendUint64(nil, out)}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the database content with the snapshot.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
