package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/ValentinKolb/dBandit/rpc/serializer"
	"github.com/ValentinKolb/dBandit/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request and returns the response.
// Transport failures become RetCUnavailable, error responses are rebuilt into the
// *store.Error raised on the server.
func (a *rpcClientAdapter) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.NewError(store.RetCUnavailable, err.Error())
	}

	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("failed to serialize request: %v", err))
	}

	respBytes, err := a.send(ctx, reqBytes)
	if err != nil {
		Logger.Debugf("%s request to shard %d failed: %v", req.MsgType, a.shardId, err)
		return nil, store.NewError(store.RetCUnavailable, err.Error())
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("failed to deserialize response: %v", err))
	}

	if err := resp.AsError(); err != nil {
		return nil, err
	}

	if resp.MsgType != req.MsgType {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	return resp, nil
}

type sendResult struct {
	data []byte
	err  error
}

// send waits for the transport until ctx is done. The transport has no
// cancellation of its own, an abandoned request finishes in the background
// and its response is dropped.
func (a *rpcClientAdapter) send(ctx context.Context, req []byte) ([]byte, error) {
	if ctx.Done() == nil {
		return a.transport.Send(a.shardId, req)
	}

	done := make(chan sendResult, 1)
	go func() {
		data, err := a.transport.Send(a.shardId, req)
		done <- sendResult{data, err}
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
