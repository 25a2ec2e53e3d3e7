// Package connect opens a store.IStore from a connection URL.
//
// The URL is the only thing a process needs to reach the same data as another process,
// which is why bandit transfer references carry it instead of a live connection.
// Note that mem:// always creates a new private store, a reference to a mem:// bandit
// can therefore not be dialed from another process.
//
// Usage Example:
//
//	s, err := connect.Open(ctx, "dbandit+tcp://localhost:8080/100?serializer=binary&timeout=5")
//	if err != nil {
//	  return err
//	}
//	defer s.Close()
package connect
