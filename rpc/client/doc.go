// Package client implements store.IStore on top of the RPC layer.
//
// NewRPCStore connects the given transport and returns a store that forwards every
// operation to one shard of a remote server. Errors returned by the server keep their
// store.RetCode, so errors.Is(err, store.ErrNotFound) works the same as against a local store.
// Transport failures and expired contexts are reported as store.ErrUnavailable.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 2,
//	  },
//	}
//
//	s, err := client.NewRPCStore(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  return err
//	}
//	defer s.Close()
//
//	count, err := s.HIncrBy(ctx, "arm:1", "count", 1)
//
// Requests are retried by the transport only if they never reached the wire, an
// increment is never applied twice because of a retry.
//
// The store is safe for concurrent use.
package client
