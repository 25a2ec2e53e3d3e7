package lstore

import (
	"context"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/store"
)

type storeImpl struct {
	db db.KVDB
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// This works by using the engine created by factory directly.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db: factory(),
	}
}

// check returns an error if the context is done or the engine lacks the feature
func (s *storeImpl) check(ctx context.Context, feature db.Feature, op string) error {
	if err := ctx.Err(); err != nil {
		return store.NewError(store.RetCUnavailable, err.Error())
	}
	if !s.db.SupportsFeature(feature) {
		return store.NewError(store.RetCUnsupportedOperation, op+" operation is not supported")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) HGet(ctx context.Context, key, field string) (string, bool, error) {
	if err := s.check(ctx, db.FeatureHash, "HGet"); err != nil {
		return "", false, err
	}
	val, ok, err := s.db.HGet(key, field)
	return val, ok, store.FromDBError(err)
}

func (s *storeImpl) HSet(ctx context.Context, key, field, value string) error {
	if err := s.check(ctx, db.FeatureHash, "HSet"); err != nil {
		return err
	}
	return store.FromDBError(s.db.HSet(key, field, value))
}

func (s *storeImpl) HSetIfUnset(ctx context.Context, key string, fields map[string]string) error {
	if err := s.check(ctx, db.FeatureHash, "HSetIfUnset"); err != nil {
		return err
	}
	_, err := s.db.HSetIfUnset(key, fields)
	return store.FromDBError(err)
}

func (s *storeImpl) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if err := s.check(ctx, db.FeatureCounter, "HIncrBy"); err != nil {
		return 0, err
	}
	val, err := s.db.HIncrBy(key, field, delta)
	return val, store.FromDBError(err)
}

func (s *storeImpl) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	if err := s.check(ctx, db.FeatureCounter, "HIncrByFloat"); err != nil {
		return 0, err
	}
	val, err := s.db.HIncrByFloat(key, field, delta)
	return val, store.FromDBError(err)
}

func (s *storeImpl) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := s.check(ctx, db.FeatureHash, "HGetAll"); err != nil {
		return nil, err
	}
	fields, err := s.db.HGetAll(key)
	return fields, store.FromDBError(err)
}

func (s *storeImpl) HGetMulti(ctx context.Context, refs []store.FieldRef) ([]store.FieldValue, error) {
	if err := s.check(ctx, db.FeatureHash, "HGetMulti"); err != nil {
		return nil, err
	}
	values := make([]store.FieldValue, len(refs))
	for i, ref := range refs {
		val, ok, err := s.db.HGet(ref.Key, ref.Field)
		if err != nil {
			return nil, store.FromDBError(err)
		}
		values[i] = store.FieldValue{Value: val, Found: ok}
	}
	return values, nil
}

func (s *storeImpl) SAdd(ctx context.Context, key, member string) error {
	if err := s.check(ctx, db.FeatureSet, "SAdd"); err != nil {
		return err
	}
	_, err := s.db.SAdd(key, member)
	return store.FromDBError(err)
}

func (s *storeImpl) SRem(ctx context.Context, key, member string) error {
	if err := s.check(ctx, db.FeatureSet, "SRem"); err != nil {
		return err
	}
	_, err := s.db.SRem(key, member)
	return store.FromDBError(err)
}

func (s *storeImpl) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := s.check(ctx, db.FeatureSet, "SMembers"); err != nil {
		return nil, err
	}
	members, err := s.db.SMembers(key)
	return members, store.FromDBError(err)
}

func (s *storeImpl) SIsMember(ctx context.Context, key, member string) (bool, error) {
	if err := s.check(ctx, db.FeatureSet, "SIsMember"); err != nil {
		return false, err
	}
	ok, err := s.db.SIsMember(key, member)
	return ok, store.FromDBError(err)
}

func (s *storeImpl) SCard(ctx context.Context, key string) (int64, error) {
	if err := s.check(ctx, db.FeatureSet, "SCard"); err != nil {
		return 0, err
	}
	n, err := s.db.SCard(key)
	return int64(n), store.FromDBError(err)
}

func (s *storeImpl) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, db.FeatureDelete, "Delete"); err != nil {
		return err
	}
	_, err := s.db.Delete(key)
	return store.FromDBError(err)
}

func (s *storeImpl) Has(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx, db.FeatureHas, "Has"); err != nil {
		return false, err
	}
	ok, err := s.db.Has(key)
	return ok, store.FromDBError(err)
}

func (s *storeImpl) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return db.DatabaseInfo{}, store.NewError(store.RetCUnavailable, err.Error())
	}
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	if err := s.db.Close(); err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	return nil
}
