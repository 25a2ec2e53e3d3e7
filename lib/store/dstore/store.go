package dstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the IStore interface.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// toStoreError maps dragonboat errors to store errors
func toStoreError(err error) error {
	var se *store.Error
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, dragonboat.ErrTimeout),
		errors.Is(err, dragonboat.ErrShardNotReady),
		errors.Is(err, dragonboat.ErrShardNotFound),
		errors.Is(err, dragonboat.ErrClosed):
		return store.NewError(store.RetCUnavailable, err.Error())
	default:
		return store.NewError(store.RetCInternalError, err.Error())
	}
}

// write sends a serialized Command via SyncPropose and returns the 8 byte result
// of the command (only meaningful for counter operations).
// It returns a *store.Error if an error occurs.
func (s *storeImpl) write(ctx context.Context, cmd internal.Command) (uint64, error) {
	for i := 0; i < retries; i++ {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)

		res, err := s.nh.SyncPropose(tctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return 0, toStoreError(err)
		}
		if res.Value != uint64(store.RetCSuccess) {
			return 0, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		if len(res.Data) != 8 {
			return 0, nil
		}
		return binary.BigEndian.Uint64(res.Data), nil
	}
	return 0, store.NewError(store.RetCUnavailable, "system busy")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
//
// It returns the response of type R and an error (nil on success).
func read[R any](ctx context.Context, r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the state machine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			tctx, cancel := context.WithTimeout(ctx, r.timeout)
			res, err = r.nh.SyncRead(tctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			return zero, toStoreError(err)
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCUnavailable, "system busy")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) HGet(ctx context.Context, key, field string) (string, bool, error) {
	res, err := read[internal.QueryResult](ctx, s, internal.Query{
		Type:  internal.QueryTHGet,
		Key:   key,
		Field: field,
	}, false)
	if err != nil {
		return "", false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) HSet(ctx context.Context, key, field, value string) error {
	_, err := s.write(ctx, internal.Command{
		Type:  internal.CommandTHSet,
		Key:   key,
		Field: field,
		Value: value,
	})
	return err
}

func (s *storeImpl) HSetIfUnset(ctx context.Context, key string, fields map[string]string) error {
	_, err := s.write(ctx, internal.Command{
		Type:   internal.CommandTHSetIfUnset,
		Key:    key,
		Fields: fields,
	})
	return err
}

func (s *storeImpl) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	cmd := internal.Command{Type: internal.CommandTHIncrBy, Key: key, Field: field}
	cmd.SetIntDelta(delta)
	res, err := s.write(ctx, cmd)
	return int64(res), err
}

func (s *storeImpl) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	cmd := internal.Command{Type: internal.CommandTHIncrByFloat, Key: key, Field: field}
	cmd.SetFloatDelta(delta)
	res, err := s.write(ctx, cmd)
	return math.Float64frombits(res), err
}

func (s *storeImpl) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return read[map[string]string](ctx, s, internal.Query{
		Type: internal.QueryTHGetAll,
		Key:  key,
	}, false)
}

func (s *storeImpl) HGetMulti(ctx context.Context, refs []store.FieldRef) ([]store.FieldValue, error) {
	return read[[]store.FieldValue](ctx, s, internal.Query{
		Type: internal.QueryTHGetMulti,
		Refs: refs,
	}, false)
}

func (s *storeImpl) SAdd(ctx context.Context, key, member string) error {
	_, err := s.write(ctx, internal.Command{
		Type:  internal.CommandTSAdd,
		Key:   key,
		Field: member,
	})
	return err
}

func (s *storeImpl) SRem(ctx context.Context, key, member string) error {
	_, err := s.write(ctx, internal.Command{
		Type:  internal.CommandTSRem,
		Key:   key,
		Field: member,
	})
	return err
}

func (s *storeImpl) SMembers(ctx context.Context, key string) ([]string, error) {
	return read[[]string](ctx, s, internal.Query{
		Type: internal.QueryTSMembers,
		Key:  key,
	}, false)
}

func (s *storeImpl) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return read[bool](ctx, s, internal.Query{
		Type:  internal.QueryTSIsMember,
		Key:   key,
		Field: member,
	}, false)
}

func (s *storeImpl) SCard(ctx context.Context, key string) (int64, error) {
	return read[int64](ctx, s, internal.Query{
		Type: internal.QueryTSCard,
		Key:  key,
	}, false)
}

func (s *storeImpl) Delete(ctx context.Context, key string) error {
	_, err := s.write(ctx, internal.Command{
		Type: internal.CommandTDelete,
		Key:  key,
	})
	return err
}

func (s *storeImpl) Has(ctx context.Context, key string) (bool, error) {
	return read[bool](ctx, s, internal.Query{
		Type: internal.QueryTHas,
		Key:  key,
	}, false)
}

func (s *storeImpl) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		ctx,
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}

// Close is a no-op, the node host is owned by the caller
func (s *storeImpl) Close() error {
	return nil
}
