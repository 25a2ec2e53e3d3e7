package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/store"
	storetesting "github.com/ValentinKolb/dBandit/lib/store/testing"
	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/ValentinKolb/dBandit/rpc/serializer"
	"github.com/ValentinKolb/dBandit/rpc/server"
	"github.com/ValentinKolb/dBandit/rpc/transport"
	"github.com/ValentinKolb/dBandit/rpc/transport/http"
)

const testShard = 100

// loopbackTransport hands requests directly to an in-process handler
type loopbackTransport struct {
	handle transport.ServerHandleFunc
	down   bool
	hold   chan struct{}
}

func (l *loopbackTransport) Connect(common.ClientConfig) error { return nil }

func (l *loopbackTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	if l.down {
		return nil, errors.New("connection refused")
	}
	if l.hold != nil {
		<-l.hold
	}
	return l.handle(shardId, append([]byte(nil), req...)), nil
}

func (l *loopbackTransport) Close() error { return nil }

// newTestServer starts an initialized server with one in-memory shard
func newTestServer(t *testing.T, s serializer.IRPCSerializer) *server.RPCServer {
	t.Helper()
	srv := server.NewRPCServer(common.ServerConfig{
		Shards:        []common.ServerShard{{ShardID: testShard, Type: common.ShardTypeLocalIStore}},
		TimeoutSecond: 5,
		LogLevel:      "warn",
	}, http.NewHttpServerTransport(), s)
	if err := srv.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newTestClient(t *testing.T, shard uint64, factory func() serializer.IRPCSerializer) (store.IStore, *loopbackTransport) {
	t.Helper()
	srv := newTestServer(t, factory())
	lt := &loopbackTransport{handle: srv.Handle}
	s, err := NewRPCStore(shard, common.ClientConfig{TimeoutSecond: 5}, lt, factory())
	if err != nil {
		t.Fatalf("NewRPCStore failed: %v", err)
	}
	return s, lt
}

func TestRPCStore(t *testing.T) {
	serializers := map[string]func() serializer.IRPCSerializer{
		"json":   serializer.NewJSONSerializer,
		"gob":    serializer.NewGOBSerializer,
		"binary": serializer.NewBinarySerializer,
	}
	for name, factory := range serializers {
		storetesting.RunIStoreTests(t, "RPC/"+name, func(t *testing.T) store.IStore {
			s, _ := newTestClient(t, testShard, factory)
			return s
		})
	}
}

func TestUnknownShard(t *testing.T) {
	s, _ := newTestClient(t, 999, serializer.NewBinarySerializer)
	defer s.Close()

	_, _, err := s.HGet(context.Background(), "k", "f")
	if !errors.Is(err, store.ErrInvalid) {
		t.Errorf("Expected invalid operation for unknown shard, got %v", err)
	}
}

func TestTransportFailure(t *testing.T) {
	s, lt := newTestClient(t, testShard, serializer.NewBinarySerializer)
	defer s.Close()

	lt.down = true
	_, err := s.HIncrBy(context.Background(), "k", "f", 1)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Expected unavailable error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lt.down = false
	if _, err := s.Has(ctx, "k"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Expected unavailable error for canceled context, got %v", err)
	}
}

func TestCancelInFlight(t *testing.T) {
	s, lt := newTestClient(t, testShard, serializer.NewBinarySerializer)
	defer s.Close()

	lt.hold = make(chan struct{})
	defer close(lt.hold)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.HIncrBy(ctx, "k", "f", 1)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Expected unavailable error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Request returned after %v, expected it to stop at the deadline", elapsed)
	}
}

func TestDBInfo(t *testing.T) {
	s, _ := newTestClient(t, testShard, serializer.NewJSONSerializer)
	defer s.Close()
	ctx := context.Background()

	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "0"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	info, err := s.GetDBInfo(ctx)
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.Keys != 1 || info.DbType != db.ImplMaple {
		t.Errorf("Unexpected db info: %+v", info)
	}
}
