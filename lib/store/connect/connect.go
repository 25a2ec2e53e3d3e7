package connect

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/db/engines/leveldb"
	"github.com/ValentinKolb/dBandit/lib/db/engines/maple"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/lib/store/lstore"
	"github.com/ValentinKolb/dBandit/lib/store/rstore"
	"github.com/ValentinKolb/dBandit/rpc/client"
	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/ValentinKolb/dBandit/rpc/serializer"
	"github.com/ValentinKolb/dBandit/rpc/transport"
	"github.com/ValentinKolb/dBandit/rpc/transport/http"
	"github.com/ValentinKolb/dBandit/rpc/transport/tcp"
	"github.com/ValentinKolb/dBandit/rpc/transport/unix"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("connect")

// Defaults of the RPC query options
const (
	DefaultTimeoutSecond = 5
	DefaultRetryCount    = 3
	DefaultConnections   = 1
	DefaultSerializer    = "binary"
)

// Open parses rawURL and returns a connected store. The caller owns the store and must close it.
//
// Supported schemes:
//
//	mem://                                   private in-memory store (maple)
//	leveldb:///path/to/dir                   persistent local store (goleveldb)
//	redis://host:port/db, rediss://...       Redis server
//	dbandit+http://host:port/<shard>             dbandit server over http
//	dbandit+tcp://host:port/<shard>              dbandit server over tcp
//	dbandit+unix:///path/to.sock?shard=<n>       dbandit server over a unix socket
//
// The dbandit schemes accept the query options serializer (json, gob, binary), timeout (seconds),
// retries, conns and endpoint (repeatable, additional servers of the same cluster).
func Open(ctx context.Context, rawURL string) (store.IStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.NewError(store.RetCUnavailable, err.Error())
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalid("invalid store url: %v", err)
	}

	Logger.Debugf("opening store %s", Redact(rawURL))

	switch u.Scheme {
	case "mem":
		return lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }), nil

	case "leveldb":
		path := u.Host + u.Path
		if path == "" {
			return nil, invalid("leveldb url needs a path: %s", rawURL)
		}
		engine, err := leveldb.NewLevelDB(&leveldb.DBOptions{Path: path})
		if err != nil {
			return nil, store.NewError(store.RetCUnavailable, err.Error())
		}
		return lstore.NewLocalStore(func() db.KVDB { return engine }), nil

	case "redis", "rediss":
		s, err := rstore.NewRedisStoreFromURL(rawURL)
		if err != nil {
			return nil, err
		}
		// go-redis connects lazily, fail early on unreachable servers
		if _, err := s.Has(ctx, "dbandit:ping"); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil

	case "dbandit+http", "dbandit+tcp", "dbandit+unix":
		return openRPC(u)

	default:
		return nil, invalid("unsupported store url scheme %q", u.Scheme)
	}
}

// Redact removes the password of rawURL for logging
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Redacted()
}

func openRPC(u *url.URL) (store.IStore, error) {
	q := u.Query()

	var (
		t        transport.IRPCClientTransport
		endpoint string
		shardStr string
	)
	switch u.Scheme {
	case "dbandit+http":
		t, endpoint, shardStr = http.NewHttpClientTransport(), u.Host, strings.Trim(u.Path, "/")
	case "dbandit+tcp":
		t, endpoint, shardStr = tcp.NewTCPClientTransport(), u.Host, strings.Trim(u.Path, "/")
	case "dbandit+unix":
		t, endpoint, shardStr = unix.NewUnixClientTransport(), u.Path, q.Get("shard")
	}

	if endpoint == "" {
		return nil, invalid("%s url needs an endpoint", u.Scheme)
	}
	shard, err := strconv.ParseUint(shardStr, 10, 64)
	if err != nil {
		return nil, invalid("invalid shard id %q", shardStr)
	}

	s, err := parseSerializer(q.Get("serializer"))
	if err != nil {
		return nil, err
	}

	timeout, err := intOption(q, "timeout", DefaultTimeoutSecond)
	if err != nil {
		return nil, err
	}
	retries, err := intOption(q, "retries", DefaultRetryCount)
	if err != nil {
		return nil, err
	}
	conns, err := intOption(q, "conns", DefaultConnections)
	if err != nil {
		return nil, err
	}

	config := common.ClientConfig{
		TimeoutSecond: timeout,
		Transport: common.ClientTransportConfig{
			Endpoints:              append([]string{endpoint}, q["endpoint"]...),
			RetryCount:             retries,
			ConnectionsPerEndpoint: conns,
		},
	}
	Logger.Debugf("rpc store for shard %d: %s", shard, config.String())

	return client.NewRPCStore(shard, config, t, s)
}

func parseSerializer(name string) (serializer.IRPCSerializer, error) {
	if name == "" {
		name = DefaultSerializer
	}
	switch name {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, invalid("invalid serializer %q (expected one of: json, gob, binary)", name)
	}
}

func intOption(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, invalid("invalid %s %q", name, raw)
	}
	return v, nil
}

func invalid(format string, args ...any) error {
	return store.NewError(store.RetCInvalidOperation, fmt.Sprintf(format, args...))
}
