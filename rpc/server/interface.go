package server

import (
	"context"

	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle executes the request against the store and returns the response.
	// Failures are reported inside the response, never as a nil response.
	Handle(ctx context.Context, req *common.Message, store store.IStore) (resp *common.Message)
}
