package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, s store.IStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse(store.RetCInternalError, "handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTHGet:
		val, ok, err := s.HGet(ctx, req.Key, req.Field)
		resp := common.NewResponse(req.MsgType, err)
		resp.Value, resp.Ok = val, ok
		return resp

	case common.MsgTHSet:
		return common.NewResponse(req.MsgType, s.HSet(ctx, req.Key, req.Field, req.Value))

	case common.MsgTHSetIfUnset:
		fields := make(map[string]string, len(req.Entries))
		for _, e := range req.Entries {
			fields[e.Field] = e.Value
		}
		return common.NewResponse(req.MsgType, s.HSetIfUnset(ctx, req.Key, fields))

	case common.MsgTHIncrBy:
		delta, err := strconv.ParseInt(req.Value, 10, 64)
		if err != nil {
			return common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("invalid delta %q", req.Value))
		}
		val, err := s.HIncrBy(ctx, req.Key, req.Field, delta)
		resp := common.NewResponse(req.MsgType, err)
		if err == nil {
			resp.Value = strconv.FormatInt(val, 10)
		}
		return resp

	case common.MsgTHIncrByFloat:
		delta, err := strconv.ParseFloat(req.Value, 64)
		if err != nil {
			return common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("invalid delta %q", req.Value))
		}
		val, err := s.HIncrByFloat(ctx, req.Key, req.Field, delta)
		resp := common.NewResponse(req.MsgType, err)
		if err == nil {
			resp.Value = strconv.FormatFloat(val, 'g', -1, 64)
		}
		return resp

	case common.MsgTHGetAll:
		fields, err := s.HGetAll(ctx, req.Key)
		resp := common.NewResponse(req.MsgType, err)
		for f, v := range fields {
			resp.Entries = append(resp.Entries, common.Entry{Field: f, Value: v})
		}
		return resp

	case common.MsgTHGetMulti:
		refs := make([]store.FieldRef, len(req.Entries))
		for i, e := range req.Entries {
			refs[i] = store.FieldRef{Key: e.Key, Field: e.Field}
		}
		values, err := s.HGetMulti(ctx, refs)
		resp := common.NewResponse(req.MsgType, err)
		if err == nil {
			resp.Entries = make([]common.Entry, len(values))
			for i, v := range values {
				resp.Entries[i] = common.Entry{Value: v.Value, Found: v.Found}
			}
		}
		return resp

	case common.MsgTSAdd:
		return common.NewResponse(req.MsgType, s.SAdd(ctx, req.Key, req.Field))

	case common.MsgTSRem:
		return common.NewResponse(req.MsgType, s.SRem(ctx, req.Key, req.Field))

	case common.MsgTSMembers:
		members, err := s.SMembers(ctx, req.Key)
		resp := common.NewResponse(req.MsgType, err)
		for _, m := range members {
			resp.Entries = append(resp.Entries, common.Entry{Value: m})
		}
		return resp

	case common.MsgTSIsMember:
		ok, err := s.SIsMember(ctx, req.Key, req.Field)
		resp := common.NewResponse(req.MsgType, err)
		resp.Ok = ok
		return resp

	case common.MsgTSCard:
		n, err := s.SCard(ctx, req.Key)
		resp := common.NewResponse(req.MsgType, err)
		if err == nil {
			resp.Value = strconv.FormatInt(n, 10)
		}
		return resp

	case common.MsgTDelete:
		return common.NewResponse(req.MsgType, s.Delete(ctx, req.Key))

	case common.MsgTHas:
		ok, err := s.Has(ctx, req.Key)
		resp := common.NewResponse(req.MsgType, err)
		resp.Ok = ok
		return resp

	case common.MsgTGetDBInfo:
		info, err := s.GetDBInfo(ctx)
		resp := common.NewResponse(req.MsgType, err)
		if err == nil {
			if resp.Meta, err = json.Marshal(info); err != nil {
				return common.NewErrorResponse(store.RetCInternalError, err.Error())
			}
		}
		return resp

	default:
		return common.NewErrorResponse(store.RetCInvalidOperation,
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType))
	}
}
