package bandit

import (
	"testing"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/db/engines/maple"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/lib/store/lstore"
	"github.com/ValentinKolb/dBandit/lib/store/rstore"
	"github.com/ValentinKolb/dBandit/rpc/client"
	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/ValentinKolb/dBandit/rpc/serializer"
	"github.com/ValentinKolb/dBandit/rpc/server"
	"github.com/ValentinKolb/dBandit/rpc/transport"
	"github.com/ValentinKolb/dBandit/rpc/transport/http"
	"github.com/alicebob/miniredis/v2"
)

// backend creates a fresh store and returns the url another connection can use to reach it
// (empty if there is none)
type backend func(t *testing.T) (store.IStore, string)

var backends = map[string]backend{
	"maple": func(t *testing.T) (store.IStore, string) {
		s := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
		t.Cleanup(func() { _ = s.Close() })
		return s, ""
	},
	"redis": func(t *testing.T) (store.IStore, string) {
		mr := miniredis.RunT(t)
		url := "redis://" + mr.Addr() + "/0"
		s, err := rstore.NewRedisStoreFromURL(url)
		if err != nil {
			t.Fatalf("failed to connect to miniredis: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s, url
	},
	"rpc": func(t *testing.T) (store.IStore, string) {
		srv := server.NewRPCServer(common.ServerConfig{
			Shards:        []common.ServerShard{{ShardID: 1, Type: common.ShardTypeLocalIStore}},
			TimeoutSecond: 5,
			LogLevel:      "warn",
		}, http.NewHttpServerTransport(), serializer.NewBinarySerializer())
		if err := srv.Init(); err != nil {
			t.Fatalf("failed to init server: %v", err)
		}
		t.Cleanup(func() { _ = srv.Close() })

		s, err := client.NewRPCStore(1, common.ClientConfig{TimeoutSecond: 5},
			&loopback{handle: srv.Handle}, serializer.NewBinarySerializer())
		if err != nil {
			t.Fatalf("failed to create rpc store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s, ""
	},
}

// forEachBackend runs fn as a subtest against every store backend
func forEachBackend(t *testing.T, fn func(t *testing.T, conn store.IStore)) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			conn, _ := newStore(t)
			fn(t, conn)
		})
	}
}

// loopback hands rpc requests directly to an in-process server
type loopback struct {
	handle transport.ServerHandleFunc
}

func (l *loopback) Connect(common.ClientConfig) error { return nil }

func (l *loopback) Send(shardId uint64, req []byte) ([]byte, error) {
	return l.handle(shardId, append([]byte(nil), req...)), nil
}

func (l *loopback) Close() error { return nil }

var testSchema = MustSchema("test-arm",
	Int("count", 0),
	Float("reward", 0.5),
	String("label", "none"),
	Bool("active", true),
)
