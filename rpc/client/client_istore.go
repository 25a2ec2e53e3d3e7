package client

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/ValentinKolb/dBandit/rpc/serializer"
	"github.com/ValentinKolb/dBandit/rpc/transport"
)

// NewRPCStore creates a store.IStore that forwards every call to shard shardId of a server.
// The transport is connected with config, Close closes it.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {

	if err := transport.Connect(config); err != nil {
		return nil, store.NewError(store.RetCUnavailable, err.Error())
	}

	return &rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	resp, err := i.invoke(ctx, common.NewHGetRequest(key, field))
	if err != nil {
		return "", false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) HSet(ctx context.Context, key, field, value string) error {
	_, err := i.invoke(ctx, common.NewHSetRequest(key, field, value))
	return err
}

func (i *rpcStore) HSetIfUnset(ctx context.Context, key string, fields map[string]string) error {
	_, err := i.invoke(ctx, common.NewHSetIfUnsetRequest(key, fields))
	return err
}

func (i *rpcStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	resp, err := i.invoke(ctx, common.NewHIncrByRequest(key, field, delta))
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseInt(resp.Value, 10, 64)
	if err != nil {
		return 0, store.NewError(store.RetCInternalError, "malformed counter in response: "+err.Error())
	}
	return val, nil
}

func (i *rpcStore) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	resp, err := i.invoke(ctx, common.NewHIncrByFloatRequest(key, field, delta))
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseFloat(resp.Value, 64)
	if err != nil {
		return 0, store.NewError(store.RetCInternalError, "malformed counter in response: "+err.Error())
	}
	return val, nil
}

func (i *rpcStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	resp, err := i.invoke(ctx, common.NewHGetAllRequest(key))
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(resp.Entries))
	for _, e := range resp.Entries {
		fields[e.Field] = e.Value
	}
	return fields, nil
}

// HGetMulti sends all refs in one message
func (i *rpcStore) HGetMulti(ctx context.Context, refs []store.FieldRef) ([]store.FieldValue, error) {
	if len(refs) == 0 {
		return []store.FieldValue{}, nil
	}
	resp, err := i.invoke(ctx, common.NewHGetMultiRequest(refs))
	if err != nil {
		return nil, err
	}
	if len(resp.Entries) != len(refs) {
		return nil, store.NewError(store.RetCInternalError, "batch response does not match the request")
	}
	values := make([]store.FieldValue, len(refs))
	for idx, e := range resp.Entries {
		values[idx] = store.FieldValue{Value: e.Value, Found: e.Found}
	}
	return values, nil
}

func (i *rpcStore) SAdd(ctx context.Context, key, member string) error {
	_, err := i.invoke(ctx, common.NewSetMemberRequest(common.MsgTSAdd, key, member))
	return err
}

func (i *rpcStore) SRem(ctx context.Context, key, member string) error {
	_, err := i.invoke(ctx, common.NewSetMemberRequest(common.MsgTSRem, key, member))
	return err
}

func (i *rpcStore) SMembers(ctx context.Context, key string) ([]string, error) {
	resp, err := i.invoke(ctx, common.NewKeyRequest(common.MsgTSMembers, key))
	if err != nil {
		return nil, err
	}
	members := make([]string, len(resp.Entries))
	for idx, e := range resp.Entries {
		members[idx] = e.Value
	}
	return members, nil
}

func (i *rpcStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	resp, err := i.invoke(ctx, common.NewSetMemberRequest(common.MsgTSIsMember, key, member))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) SCard(ctx context.Context, key string) (int64, error) {
	resp, err := i.invoke(ctx, common.NewKeyRequest(common.MsgTSCard, key))
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(resp.Value, 10, 64)
	if err != nil {
		return 0, store.NewError(store.RetCInternalError, "malformed cardinality in response: "+err.Error())
	}
	return n, nil
}

func (i *rpcStore) Delete(ctx context.Context, key string) error {
	_, err := i.invoke(ctx, common.NewKeyRequest(common.MsgTDelete, key))
	return err
}

func (i *rpcStore) Has(ctx context.Context, key string) (bool, error) {
	resp, err := i.invoke(ctx, common.NewKeyRequest(common.MsgTHas, key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	resp, err := i.invoke(ctx, common.NewGetDBInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	var info db.DatabaseInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, store.NewError(store.RetCInternalError, "malformed db info in response: "+err.Error())
	}
	return info, nil
}

func (i *rpcStore) Close() error {
	return i.transport.Close()
}
