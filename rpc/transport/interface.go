package transport

import (
	"github.com/ValentinKolb/dBandit/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc answers one serialized request addressed to shardId.
// It must be safe for concurrent use, transports call it from many goroutines.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport accepts requests and hands them to the registered handler
type IRPCServerTransport interface {
	// RegisterHandler sets the handler, it has to be called before Listen
	RegisterHandler(handler ServerHandleFunc)
	// Listen serves config.Transport.Endpoint until Close is called, then it returns nil
	Listen(config common.ServerConfig) error
	// Close stops listening and drops all open connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport delivers requests to one of the configured endpoints
type IRPCClientTransport interface {
	// Connect opens the connections to the endpoints of config
	Connect(config common.ClientConfig) error
	// Send delivers req to shardId and waits for the response.
	// Requests that were written are not retried, they may already have been applied.
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close closes all connections
	Close() error
}
