package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/db/engines/leveldb"
	"github.com/ValentinKolb/dBandit/lib/db/engines/maple"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/lib/store/dstore"
	"github.com/ValentinKolb/dBandit/lib/store/lstore"
	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/ValentinKolb/dBandit/rpc/serializer"
	"github.com/ValentinKolb/dBandit/rpc/transport"
	transportHttp "github.com/ValentinKolb/dBandit/rpc/transport/http"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the store it encapsulates and the adapter that handles requests for the store
type serverShard struct {
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// RPCServer hosts the configured shards behind one transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	initOnce      sync.Once
	initErr       error
	nodeHost      *dragonboat.NodeHost
	metricsServer *http.Server
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// --------------------------------------------------------------------------
// Request handling
// --------------------------------------------------------------------------

// Handle decodes a request for shardId, executes it and returns the encoded response.
// It is registered as the transport handler, but can be called directly as well.
func (s *RPCServer) Handle(shardId uint64, req []byte) []byte {
	start := time.Now()

	var msg common.Message
	var resp *common.Message

	shard, ok := s.shards.Load(shardId)
	if !ok {
		resp = common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		resp = common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		ctx, cancel := s.requestContext()
		resp = shard.Adapter.Handle(ctx, &msg, shard.Store)
		cancel()
	}

	observe(msg.MsgType, resp, start)

	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(store.RetCInternalError,
			fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// requestContext bounds a single request by the configured timeout
func (s *RPCServer) requestContext() (context.Context, context.CancelFunc) {
	if s.config.TimeoutSecond <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(s.config.TimeoutSecond)*time.Second)
}

// observe records the request in the metrics exposed at /metrics
func observe(t common.MessageType, resp *common.Message, start time.Time) {
	label := strconv.Quote(t.String())
	metrics.GetOrCreateCounter(`dbandit_rpc_requests_total{type=` + label + `}`).Inc()
	metrics.GetOrCreateHistogram(`dbandit_rpc_request_duration_seconds{type=` + label + `}`).UpdateDuration(start)
	if resp.Code != 0 || resp.MsgType == common.MsgTError {
		code := strconv.Quote(store.RetCode(resp.Code).String())
		metrics.GetOrCreateCounter(`dbandit_rpc_errors_total{type=` + label + `,code=` + code + `}`).Inc()
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Init creates all shards and registers the request handler at the transport.
// It is called by Serve, calling it again has no effect.
func (s *RPCServer) Init() error {
	s.initOnce.Do(func() {
		s.initErr = s.init()
	})
	return s.initErr
}

func (s *RPCServer) init() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Engine of in-memory and replicated shards
	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }

	// Only create the NodeHost if we have remote shards
	if s.config.HasRemoteShard() {
		nh, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nh
	}

	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	for _, shardConfig := range s.config.Shards {
		var st store.IStore

		switch shardConfig.Type {
		case common.ShardTypeLocalIStore:
			st = lstore.NewLocalStore(dbFactory)

		case common.ShardTypePersistentIStore:
			path := filepath.Join(s.config.DataDir, fmt.Sprintf("shard-%d", shardConfig.ShardID))
			engine, err := leveldb.NewLevelDB(&leveldb.DBOptions{Path: path})
			if err != nil {
				return fmt.Errorf("failed to open leveldb for shard %d: %w", shardConfig.ShardID, err)
			}
			st = lstore.NewLocalStore(func() db.KVDB { return engine })

		case common.ShardTypeRemoteIStore:
			if err := s.nodeHost.StartConcurrentReplica(
				s.config.ClusterMembers,
				false,
				dstore.CreateStateMachineFactory(dbFactory),
				s.config.ToDragonboatConfig(shardConfig.ShardID),
			); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}
			st = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Store:   st,
			Adapter: NewIStoreServerAdapter(),
		})
		Logger.Infof("created %s shard %d", shardConfig.Type, shardConfig.ShardID)
	}

	s.transport.RegisterHandler(s.Handle)

	Logger.Infof("dBandit setup completed successfully")
	return nil
}

// Serve initializes the server plus the shards and starts the transport layer.
// It blocks until the transport stops.
func (s *RPCServer) Serve() error {
	if err := s.Init(); err != nil {
		return err
	}

	// socket transports have no http mux, metrics get their own listener
	if s.config.MetricsEndpoint != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /metrics", transportHttp.MetricsHandler)
		s.metricsServer = &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			Logger.Infof("Serving metrics on %s", s.config.MetricsEndpoint)
			if err := s.metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("metrics server failed: %v", err)
			}
		}()
	}

	return s.transport.Listen(s.config)
}

// Close stops the transport and releases all shards.
func (s *RPCServer) Close() error {
	errs := []error{s.transport.Close()}
	if s.metricsServer != nil {
		errs = append(errs, s.metricsServer.Close())
	}
	s.shards.Range(func(id uint64, shard serverShard) bool {
		errs = append(errs, shard.Store.Close())
		return true
	})
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
	return errors.Join(errs...)
}
