package rstore

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.GetLogger("rstore")

// --------------------------------------------------------------------------
// Lua scripts
// --------------------------------------------------------------------------

// The single field writes must never create a key. Redis has no XX flag for hash
// commands, so the existence check and the write run as one script.
const notFoundReply = "NOTFOUND"

var (
	hsetExisting = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('NOTFOUND')
end
return redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
`)

	hincrbyExisting = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('NOTFOUND')
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
`)

	hincrbyfloatExisting = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('NOTFOUND')
end
return redis.call('HINCRBYFLOAT', KEYS[1], ARGV[1], ARGV[2])
`)
)

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

type storeImpl struct {
	rdb redis.UniversalClient
}

// NewRedisStore creates a store that talks to a Redis server (or cluster) through rdb.
// The store takes ownership of the client, Close closes it.
func NewRedisStore(rdb redis.UniversalClient) store.IStore {
	return &storeImpl{rdb: rdb}
}

// NewRedisStoreFromURL parses a redis:// or rediss:// URL and connects to the server.
func NewRedisStoreFromURL(url string) (store.IStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, store.NewError(store.RetCInvalidOperation, err.Error())
	}
	return NewRedisStore(redis.NewClient(opts)), nil
}

// toStoreError maps go-redis and Redis server errors to store errors
func toStoreError(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	msg := err.Error()
	switch {
	case strings.Contains(msg, notFoundReply):
		return store.NewError(store.RetCNotFound, "key not found")
	case strings.Contains(msg, "WRONGTYPE"):
		return store.NewError(store.RetCWrongType, msg)
	case strings.Contains(msg, "not an integer"),
		strings.Contains(msg, "not a valid float"),
		strings.Contains(msg, "not a float"),
		strings.Contains(msg, "overflow"),
		strings.Contains(msg, "NaN or Infinity"):
		return store.NewError(store.RetCNotNumber, msg)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.As(err, &netErr):
		log.Warningf("redis unavailable: %v", err)
		return store.NewError(store.RetCUnavailable, msg)
	default:
		return store.NewError(store.RetCInternalError, msg)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := s.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, toStoreError(err)
	}
	return val, true, nil
}

func (s *storeImpl) HSet(ctx context.Context, key, field, value string) error {
	return toStoreError(hsetExisting.Run(ctx, s.rdb, []string{key}, field, value).Err())
}

// HSetIfUnset issues one HSETNX per field inside MULTI/EXEC, which makes the whole
// backfill atomic.
func (s *storeImpl) HSetIfUnset(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for f, v := range fields {
			pipe.HSetNX(ctx, key, f, v)
		}
		return nil
	})
	return toStoreError(err)
}

func (s *storeImpl) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	val, err := hincrbyExisting.Run(ctx, s.rdb, []string{key}, field, delta).Int64()
	if err != nil {
		return 0, toStoreError(err)
	}
	return val, nil
}

func (s *storeImpl) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	raw, err := hincrbyfloatExisting.Run(ctx, s.rdb, []string{key}, field, strconv.FormatFloat(delta, 'g', -1, 64)).Text()
	if err != nil {
		return 0, toStoreError(err)
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, store.NewError(store.RetCNotNumber, err.Error())
	}
	return val, nil
}

func (s *storeImpl) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, toStoreError(err)
	}
	return fields, nil
}

// HGetMulti pipelines one HGET per ref, which costs a single network round trip.
func (s *storeImpl) HGetMulti(ctx context.Context, refs []store.FieldRef) ([]store.FieldValue, error) {
	if len(refs) == 0 {
		return []store.FieldValue{}, nil
	}

	cmds := make([]*redis.StringCmd, len(refs))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, ref := range refs {
			cmds[i] = pipe.HGet(ctx, ref.Key, ref.Field)
		}
		return nil
	})
	// a missing field makes Exec report redis.Nil, the commands carry the details
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, toStoreError(err)
	}

	values := make([]store.FieldValue, len(refs))
	for i, cmd := range cmds {
		val, err := cmd.Result()
		switch {
		case errors.Is(err, redis.Nil):
			values[i] = store.FieldValue{}
		case err != nil:
			return nil, toStoreError(err)
		default:
			values[i] = store.FieldValue{Value: val, Found: true}
		}
	}
	return values, nil
}

func (s *storeImpl) SAdd(ctx context.Context, key, member string) error {
	return toStoreError(s.rdb.SAdd(ctx, key, member).Err())
}

func (s *storeImpl) SRem(ctx context.Context, key, member string) error {
	return toStoreError(s.rdb.SRem(ctx, key, member).Err())
}

func (s *storeImpl) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, toStoreError(err)
	}
	return members, nil
}

func (s *storeImpl) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, toStoreError(err)
	}
	return ok, nil
}

func (s *storeImpl) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, toStoreError(err)
	}
	return n, nil
}

func (s *storeImpl) Delete(ctx context.Context, key string) error {
	return toStoreError(s.rdb.Del(ctx, key).Err())
}

func (s *storeImpl) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, toStoreError(err)
	}
	return n > 0, nil
}

func (s *storeImpl) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	n, err := s.rdb.DBSize(ctx).Result()
	if err != nil {
		return db.DatabaseInfo{}, toStoreError(err)
	}

	stats := s.rdb.PoolStats()
	return db.DatabaseInfo{
		Keys:   int(n),
		DbType: db.ImplRedis,
		SupportedFeatures: []db.Feature{
			db.FeatureHash, db.FeatureCounter, db.FeatureSet,
			db.FeatureDelete, db.FeatureHas, db.FeaturePersistent,
		},
		Metadata: &struct {
			Hits       uint32 `json:"pool_hits"`
			Misses     uint32 `json:"pool_misses"`
			Timeouts   uint32 `json:"pool_timeouts"`
			TotalConns uint32 `json:"pool_total_conns"`
			IdleConns  uint32 `json:"pool_idle_conns"`
		}{
			Hits:       stats.Hits,
			Misses:     stats.Misses,
			Timeouts:   stats.Timeouts,
			TotalConns: stats.TotalConns,
			IdleConns:  stats.IdleConns,
		},
	}, nil
}

func (s *storeImpl) Close() error {
	if err := s.rdb.Close(); err != nil {
		return toStoreError(err)
	}
	return nil
}
