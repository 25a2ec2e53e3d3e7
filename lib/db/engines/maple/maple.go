package maple

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dBandit/lib/db/util"
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	writeIdx  atomic.Uint64     // Logical clock, advanced by every write
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	maple := &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
	}
	maple.shards = newShards(opts.NumShards)
	return maple
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := range shards {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shard returns the shard responsible for key
func (maple *mapleImpl) shard(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// compute is the shared write path of all mutating operations.
// fn receives the current entry (loaded is false if the key does not exist) and returns
// the new entry, whether the key should be removed, or an error. On error the stored
// entry is left untouched and no key is created.
//
// Thread-safety: xsync.MapOf.Compute serializes all computations on the same key.
func (maple *mapleImpl) compute(key string, fn func(old internal.Entry, loaded bool, idx uint64) (internal.Entry, bool, error)) error {
	idx := maple.writeIdx.Add(1)

	var fnErr error
	maple.shard(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		entry, del, err := fn(old, loaded, idx)
		if err != nil {
			fnErr = err
			return old, !loaded
		}
		return entry, del
	})
	return fnErr
}

// load returns the entry stored at key, checking that it holds the expected kind
func (maple *mapleImpl) load(key string, kind db.Kind) (internal.Entry, bool, error) {
	entry, ok := maple.shard(key).Data.Load(key)
	if !ok {
		return internal.Entry{}, false, nil
	}
	if entry.Kind != kind {
		return internal.Entry{}, false, db.ErrWrongType
	}
	return entry, true, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Hash Operations
// --------------------------------------------------------------------------

// HSetIfUnset writes all fields that are not yet present.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) HSetIfUnset(key string, fields map[string]string) (bool, error) {
	created := false
	err := maple.compute(key, func(old internal.Entry, loaded bool, idx uint64) (internal.Entry, bool, error) {
		if !loaded {
			created = true
			return internal.NewHash(fields, idx), false, nil
		}
		if old.Kind != db.KindHash {
			return old, false, db.ErrWrongType
		}

		entry := old.Clone(idx)
		for f, v := range fields {
			if _, ok := entry.Fields[f]; !ok {
				entry.Fields[f] = v
			}
		}
		return entry, false, nil
	})
	return created, err
}

// HSet overwrites a field of an existing hash.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) HSet(key, field, value string) error {
	return maple.compute(key, func(old internal.Entry, loaded bool, idx uint64) (internal.Entry, bool, error) {
		if !loaded {
			return old, false, db.ErrKeyNotFound
		}
		if old.Kind != db.KindHash {
			return old, false, db.ErrWrongType
		}
		entry := old.Clone(idx)
		entry.Fields[field] = value
		return entry, false, nil
	})
}

// HIncrBy adds delta to an integer field.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) HIncrBy(key, field string, delta int64) (int64, error) {
	var result int64
	err := maple.compute(key, func(old internal.Entry, loaded bool, idx uint64) (internal.Entry, bool, error) {
		if !loaded {
			return old, false, db.ErrKeyNotFound
		}
		if old.Kind != db.KindHash {
			return old, false, db.ErrWrongType
		}

		var current int64
		if raw, ok := old.Fields[field]; ok {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return old, false, db.ErrNotNumber
			}
			current = v
		}
		if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
			return old, false, fmt.Errorf("%w: increment would overflow", db.ErrNotNumber)
		}

		result = current + delta
		entry := old.Clone(idx)
		entry.Fields[field] = strconv.FormatInt(result, 10)
		return entry, false, nil
	})
	return result, err
}

// HIncrByFloat adds delta to a float field.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) HIncrByFloat(key, field string, delta float64) (float64, error) {
	var result float64
	err := maple.compute(key, func(old internal.Entry, loaded bool, idx uint64) (internal.Entry, bool, error) {
		if !loaded {
			return old, false, db.ErrKeyNotFound
		}
		if old.Kind != db.KindHash {
			return old, false, db.ErrWrongType
		}

		var current float64
		if raw, ok := old.Fields[field]; ok {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return old, false, db.ErrNotNumber
			}
			current = v
		}
		next := current + delta
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return old, false, fmt.Errorf("%w: increment would produce NaN or Infinity", db.ErrNotNumber)
		}

		result = next
		entry := old.Clone(idx)
		entry.Fields[field] = strconv.FormatFloat(result, 'g', -1, 64)
		return entry, false, nil
	})
	return result, err
}

// HGet returns a single field.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) HGet(key, field string) (string, bool, error) {
	entry, ok, err := maple.load(key, db.KindHash)
	if err != nil || !ok {
		return "", false, err
	}
	value, ok := entry.Fields[field]
	return value, ok, nil
}

// HGetAll returns a copy of the hash.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) HGetAll(key string) (map[string]string, error) {
	entry, ok, err := maple.load(key, db.KindHash)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(entry.Fields))
	if ok {
		for k, v := range entry.Fields {
			fields[k] = v
		}
	}
	return fields, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Set Operations
// --------------------------------------------------------------------------

// SAdd adds members to a set, creating it if needed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SAdd(key string, members ...string) (int, error) {
	added := 0
	err := maple.compute(key, func(old internal.Entry, loaded bool, idx uint64) (internal.Entry, bool, error) {
		var entry internal.Entry
		switch {
		case !loaded:
			entry = internal.NewSet(idx)
		case old.Kind != db.KindSet:
			return old, false, db.ErrWrongType
		default:
			entry = old.Clone(idx)
		}

		for _, m := range members {
			if _, ok := entry.Members[m]; !ok {
				entry.Members[m] = struct{}{}
				added++
			}
		}
		// never store an empty set
		return entry, len(entry.Members) == 0, nil
	})
	return added, err
}

// SRem removes members from a set and removes the key once the set is empty.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SRem(key string, members ...string) (int, error) {
	removed := 0
	err := maple.compute(key, func(old internal.Entry, loaded bool, idx uint64) (internal.Entry, bool, error) {
		if !loaded {
			return old, true, nil
		}
		if old.Kind != db.KindSet {
			return old, false, db.ErrWrongType
		}

		entry := old.Clone(idx)
		for _, m := range members {
			if _, ok := entry.Members[m]; ok {
				delete(entry.Members, m)
				removed++
			}
		}
		return entry, len(entry.Members) == 0, nil
	})
	return removed, err
}

// SMembers returns the members of a set.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SMembers(key string) ([]string, error) {
	entry, ok, err := maple.load(key, db.KindSet)
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(entry.Members))
	if ok {
		for m := range entry.Members {
			members = append(members, m)
		}
	}
	return members, nil
}

// SIsMember reports set membership.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SIsMember(key, member string) (bool, error) {
	entry, ok, err := maple.load(key, db.KindSet)
	if err != nil || !ok {
		return false, err
	}
	_, ok = entry.Members[member]
	return ok, nil
}

// SCard returns the size of a set.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SCard(key string) (int, error) {
	entry, _, err := maple.load(key, db.KindSet)
	if err != nil {
		return 0, err
	}
	return len(entry.Members), nil
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Key Operations
// --------------------------------------------------------------------------

// Delete removes a key of any kind.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string) (bool, error) {
	maple.writeIdx.Add(1)
	_, existed := maple.shard(key).Data.LoadAndDelete(key)
	return existed, nil
}

// Has checks whether a key exists.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) (bool, error) {
	_, ok := maple.shard(key).Data.Load(key)
	return ok, nil
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
// Concurrent writes are allowed during Save, the snapshot is therefore fuzzy:
// it is consistent per key but not across keys.
func (maple *mapleImpl) Save(w io.Writer) error {
	var entries []util.SnapshotEntry

	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			// entries are immutable once stored, no copy needed
			se := util.SnapshotEntry{Key: key, Kind: entry.Kind}
			switch entry.Kind {
			case db.KindHash:
				se.Fields = entry.Fields
			case db.KindSet:
				se.Members = make([]string, 0, len(entry.Members))
				for m := range entry.Members {
					se.Members = append(se.Members, m)
				}
			}
			entries = append(entries, se)
			return true
		})
	}

	return util.WriteSnapshot(w, entries)
}

// Load replaces the database content with the snapshot from the reader
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	shards := newShards(maple.numShards)
	seed := util.GenerateSeed()

	err := util.ReadSnapshot(r, func(se util.SnapshotEntry) error {
		var entry internal.Entry
		switch se.Kind {
		case db.KindHash:
			entry = internal.NewHash(se.Fields, 0)
		case db.KindSet:
			entry = internal.NewSet(0)
			for _, m := range se.Members {
				entry.Members[m] = struct{}{}
			}
		}
		internal.GetShard(util.HashString(se.Key, seed), shards).Data.Store(se.Key, entry)
		return nil
	})
	if err != nil {
		return err
	}

	maple.seed = seed
	maple.shards = shards
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	shardSizes := make([]float64, len(maple.shards))
	keys := 0
	hashes, sets, width := 0, 0, 0

	for i, s := range maple.shards {
		size := s.Data.Size()
		shardSizes[i] = float64(size)
		keys += size

		s.Data.Range(func(_ string, entry internal.Entry) bool {
			if entry.Kind == db.KindSet {
				sets++
			} else {
				hashes++
			}
			width += entry.Width()
			return true
		})
	}

	avgWidth := 0.0
	if keys > 0 {
		avgWidth = float64(width) / float64(keys)
	}

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Hashes            int                    `json:"hashes"`
		Sets              int                    `json:"sets"`
		AverageWidth      float64                `json:"average_width"`
	}{
		CurrentWriteIndex: maple.writeIdx.Load(),
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Hashes:            hashes,
		Sets:              sets,
		AverageWidth:      avgWidth,
	}

	return db.DatabaseInfo{
		Keys:   keys,
		DbType: db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureHash, db.FeatureCounter, db.FeatureSet,
			db.FeatureDelete, db.FeatureHas,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureHash |
		db.FeatureCounter |
		db.FeatureSet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close is a no-op, the data is dropped together with the instance
func (maple *mapleImpl) Close() error {
	return nil
}
