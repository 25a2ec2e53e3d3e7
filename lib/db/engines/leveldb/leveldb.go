package leveldb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/db/util"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	lvlutil "github.com/syndtr/goleveldb/leveldb/util"
)

// --------------------------------------------------------------------------
// Key layout
// --------------------------------------------------------------------------

// Every logical key is spread over several leveldb records:
//
//	'k' key                  -> kind byte (db.KindHash | db.KindSet)
//	'h' len(key) key field   -> value
//	's' len(key) key member  -> empty
//
// The key is length prefixed so that no key can be a prefix of another one.
const (
	tagMeta   byte = 'k'
	tagHash   byte = 'h'
	tagMember byte = 's'
)

func metaKey(key string) []byte {
	return append([]byte{tagMeta}, key...)
}

func itemPrefix(tag byte, key string) []byte {
	b := make([]byte, 0, 5+len(key))
	b = append(b, tag)
	b = binary.BigEndian.AppendUint32(b, uint32(len(key)))
	return append(b, key...)
}

func itemKey(tag byte, key, item string) []byte {
	return append(itemPrefix(tag, key), item...)
}

func tagFor(kind db.Kind) byte {
	if kind == db.KindSet {
		return tagMember
	}
	return tagHash
}

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

const numLocks = 256

// levelImpl implements a persistent database on top of goleveldb
type levelImpl struct {
	ldb   *leveldb.DB
	path  string
	seed  uint64
	locks [numLocks]sync.Mutex // striped per-key write locks
}

// DBOptions configures the leveldb engine
type DBOptions struct {
	Path        string // Directory of the database, empty for an in-memory database
	CacheSizeMB int    // Block cache capacity (0 = goleveldb default)
}

// NewLevelDB opens (or creates) a leveldb backed database
func NewLevelDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{}
	}

	o := &opt.Options{}
	if opts.CacheSizeMB > 0 {
		o.BlockCacheCapacity = opts.CacheSizeMB * opt.MiB
	}

	var (
		ldb *leveldb.DB
		err error
	)
	if opts.Path == "" {
		ldb, err = leveldb.Open(storage.NewMemStorage(), o)
	} else {
		ldb, err = leveldb.OpenFile(opts.Path, o)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %q: %w", opts.Path, err)
	}

	return &levelImpl{
		ldb:  ldb,
		path: opts.Path,
		seed: util.GenerateSeed(),
	}, nil
}

// lock acquires the write lock responsible for key and returns the unlock function
func (l *levelImpl) lock(key string) func() {
	m := &l.locks[util.Stripe(util.HashString(key, l.seed), numLocks)]
	m.Lock()
	return m.Unlock
}

// kind returns the kind stored at key (db.KindNone if the key does not exist)
func (l *levelImpl) kind(key string) (db.Kind, error) {
	b, err := l.ldb.Get(metaKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return db.KindNone, nil
	}
	if err != nil {
		return db.KindNone, err
	}
	if len(b) != 1 {
		return db.KindNone, fmt.Errorf("corrupt meta record for key %q", key)
	}
	return db.Kind(b[0]), nil
}

// expect checks that key holds the given kind. loaded is false if the key does not exist.
func (l *levelImpl) expect(key string, kind db.Kind) (loaded bool, err error) {
	k, err := l.kind(key)
	if err != nil || k == db.KindNone {
		return false, err
	}
	if k != kind {
		return false, db.ErrWrongType
	}
	return true, nil
}

func (l *levelImpl) hasItem(tag byte, key, item string) (bool, error) {
	return l.ldb.Has(itemKey(tag, key, item), nil)
}

// items returns all items (fields or members) of a key, value is nil for members
func (l *levelImpl) items(tag byte, key string, fn func(item string, value []byte)) error {
	prefix := itemPrefix(tag, key)
	iter := l.ldb.NewIterator(lvlutil.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		fn(string(iter.Key()[len(prefix):]), iter.Value())
	}
	return iter.Error()
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Hash Operations
// --------------------------------------------------------------------------

func (l *levelImpl) HSetIfUnset(key string, fields map[string]string) (bool, error) {
	defer l.lock(key)()

	loaded, err := l.expect(key, db.KindHash)
	if err != nil {
		return false, err
	}

	batch := new(leveldb.Batch)
	if !loaded {
		batch.Put(metaKey(key), []byte{byte(db.KindHash)})
	}
	for f, v := range fields {
		if loaded {
			ok, err := l.hasItem(tagHash, key, f)
			if err != nil {
				return false, err
			}
			if ok {
				continue
			}
		}
		batch.Put(itemKey(tagHash, key, f), []byte(v))
	}

	if batch.Len() == 0 {
		return false, nil
	}
	return !loaded, l.ldb.Write(batch, nil)
}

func (l *levelImpl) HSet(key, field, value string) error {
	defer l.lock(key)()

	loaded, err := l.expect(key, db.KindHash)
	if err != nil {
		return err
	}
	if !loaded {
		return db.ErrKeyNotFound
	}
	return l.ldb.Put(itemKey(tagHash, key, field), []byte(value), nil)
}

// incr is the shared read-modify-write path of the counter operations
func (l *levelImpl) incr(key, field string, apply func(raw []byte, present bool) (string, error)) error {
	defer l.lock(key)()

	loaded, err := l.expect(key, db.KindHash)
	if err != nil {
		return err
	}
	if !loaded {
		return db.ErrKeyNotFound
	}

	raw, err := l.ldb.Get(itemKey(tagHash, key, field), nil)
	present := err == nil
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return err
	}

	next, err := apply(raw, present)
	if err != nil {
		return err
	}
	return l.ldb.Put(itemKey(tagHash, key, field), []byte(next), nil)
}

func (l *levelImpl) HIncrBy(key, field string, delta int64) (int64, error) {
	var result int64
	err := l.incr(key, field, func(raw []byte, present bool) (string, error) {
		var current int64
		if present {
			v, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return "", db.ErrNotNumber
			}
			current = v
		}
		if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
			return "", fmt.Errorf("%w: increment would overflow", db.ErrNotNumber)
		}
		result = current + delta
		return strconv.FormatInt(result, 10), nil
	})
	return result, err
}

func (l *levelImpl) HIncrByFloat(key, field string, delta float64) (float64, error) {
	var result float64
	err := l.incr(key, field, func(raw []byte, present bool) (string, error) {
		var current float64
		if present {
			v, err := strconv.ParseFloat(string(raw), 64)
			if err != nil {
				return "", db.ErrNotNumber
			}
			current = v
		}
		next := current + delta
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return "", fmt.Errorf("%w: increment would produce NaN or Infinity", db.ErrNotNumber)
		}
		result = next
		return strconv.FormatFloat(result, 'g', -1, 64), nil
	})
	return result, err
}

func (l *levelImpl) HGet(key, field string) (string, bool, error) {
	loaded, err := l.expect(key, db.KindHash)
	if err != nil || !loaded {
		return "", false, err
	}

	v, err := l.ldb.Get(itemKey(tagHash, key, field), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (l *levelImpl) HGetAll(key string) (map[string]string, error) {
	fields := make(map[string]string)

	loaded, err := l.expect(key, db.KindHash)
	if err != nil || !loaded {
		return fields, err
	}

	err = l.items(tagHash, key, func(field string, value []byte) {
		fields[field] = string(value)
	})
	return fields, err
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Set Operations
// --------------------------------------------------------------------------

func (l *levelImpl) SAdd(key string, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	defer l.lock(key)()

	loaded, err := l.expect(key, db.KindSet)
	if err != nil {
		return 0, err
	}

	batch := new(leveldb.Batch)
	if !loaded {
		batch.Put(metaKey(key), []byte{byte(db.KindSet)})
	}

	added := 0
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}

		if loaded {
			ok, err := l.hasItem(tagMember, key, m)
			if err != nil {
				return 0, err
			}
			if ok {
				continue
			}
		}
		batch.Put(itemKey(tagMember, key, m), nil)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	return added, l.ldb.Write(batch, nil)
}

func (l *levelImpl) SRem(key string, members ...string) (int, error) {
	defer l.lock(key)()

	loaded, err := l.expect(key, db.KindSet)
	if err != nil || !loaded {
		return 0, err
	}

	batch := new(leveldb.Batch)
	removed := 0
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}

		ok, err := l.hasItem(tagMember, key, m)
		if err != nil {
			return 0, err
		}
		if ok {
			batch.Delete(itemKey(tagMember, key, m))
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	// remove the key once the set is empty
	remaining := 0
	if err := l.items(tagMember, key, func(string, []byte) { remaining++ }); err != nil {
		return 0, err
	}
	if remaining == removed {
		batch.Delete(metaKey(key))
	}

	return removed, l.ldb.Write(batch, nil)
}

func (l *levelImpl) SMembers(key string) ([]string, error) {
	members := make([]string, 0)

	loaded, err := l.expect(key, db.KindSet)
	if err != nil || !loaded {
		return members, err
	}

	err = l.items(tagMember, key, func(member string, _ []byte) {
		members = append(members, member)
	})
	return members, err
}

func (l *levelImpl) SIsMember(key, member string) (bool, error) {
	loaded, err := l.expect(key, db.KindSet)
	if err != nil || !loaded {
		return false, err
	}
	return l.hasItem(tagMember, key, member)
}

func (l *levelImpl) SCard(key string) (int, error) {
	loaded, err := l.expect(key, db.KindSet)
	if err != nil || !loaded {
		return 0, err
	}

	n := 0
	err = l.items(tagMember, key, func(string, []byte) { n++ })
	return n, err
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Key Operations
// --------------------------------------------------------------------------

func (l *levelImpl) Delete(key string) (bool, error) {
	defer l.lock(key)()

	k, err := l.kind(key)
	if err != nil || k == db.KindNone {
		return false, err
	}

	batch := new(leveldb.Batch)
	batch.Delete(metaKey(key))
	if err := l.items(tagFor(k), key, func(item string, _ []byte) {
		batch.Delete(itemKey(tagFor(k), key, item))
	}); err != nil {
		return false, err
	}
	if err := l.ldb.Write(batch, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (l *levelImpl) Has(key string) (bool, error) {
	return l.ldb.Has(metaKey(key), nil)
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a consistent snapshot of the whole database to w
func (l *levelImpl) Save(w io.Writer) error {
	snap, err := l.ldb.GetSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()

	var entries []util.SnapshotEntry

	iter := snap.NewIterator(lvlutil.BytesPrefix([]byte{tagMeta}), nil)
	for iter.Next() {
		key := string(iter.Key()[1:])
		kind := db.Kind(iter.Value()[0])
		entry := util.SnapshotEntry{Key: key, Kind: kind}

		prefix := itemPrefix(tagFor(kind), key)
		items := snap.NewIterator(lvlutil.BytesPrefix(prefix), nil)
		for items.Next() {
			item := string(items.Key()[len(prefix):])
			if kind == db.KindHash {
				if entry.Fields == nil {
					entry.Fields = make(map[string]string)
				}
				entry.Fields[item] = string(items.Value())
			} else {
				entry.Members = append(entry.Members, item)
			}
		}
		items.Release()
		if err := items.Error(); err != nil {
			iter.Release()
			return err
		}

		entries = append(entries, entry)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}

	return util.WriteSnapshot(w, entries)
}

// Load replaces the database content with the snapshot from the reader
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (l *levelImpl) Load(r io.Reader) error {
	// wipe everything first
	wipe := new(leveldb.Batch)
	iter := l.ldb.NewIterator(nil, nil)
	for iter.Next() {
		wipe.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	if err := l.ldb.Write(wipe, nil); err != nil {
		return err
	}

	return util.ReadSnapshot(r, func(se util.SnapshotEntry) error {
		batch := new(leveldb.Batch)
		batch.Put(metaKey(se.Key), []byte{byte(se.Kind)})
		switch se.Kind {
		case db.KindHash:
			for f, v := range se.Fields {
				batch.Put(itemKey(tagHash, se.Key, f), []byte(v))
			}
		case db.KindSet:
			for _, m := range se.Members {
				batch.Put(itemKey(tagMember, se.Key, m), nil)
			}
		}
		return l.ldb.Write(batch, nil)
	})
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

func (l *levelImpl) GetInfo() db.DatabaseInfo {
	keys := 0
	iter := l.ldb.NewIterator(lvlutil.BytesPrefix([]byte{tagMeta}), nil)
	for iter.Next() {
		keys++
	}
	iter.Release()

	var diskSize int64
	if sizes, err := l.ldb.SizeOf([]lvlutil.Range{{Start: []byte{0}, Limit: []byte{0xff}}}); err == nil {
		diskSize = sizes.Sum()
	}

	meta := &struct {
		Path       string `json:"path"`
		Persistent bool   `json:"persistent"`
		DiskSize   int64  `json:"approximate_disk_size"`
		Files      string `json:"files_at_level0"`
	}{
		Path:       l.path,
		Persistent: l.path != "",
		DiskSize:   diskSize,
	}
	meta.Files, _ = l.ldb.GetProperty("leveldb.num-files-at-level0")

	features := []db.Feature{
		db.FeatureHash, db.FeatureCounter, db.FeatureSet,
		db.FeatureDelete, db.FeatureHas,
		db.FeatureSave, db.FeatureLoad,
	}
	if l.path != "" {
		features = append(features, db.FeaturePersistent)
	}

	return db.DatabaseInfo{
		Keys:              keys,
		DbType:            db.ImplLevelDB,
		SupportedFeatures: features,
		Metadata:          meta,
	}
}

func (l *levelImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureHash |
		db.FeatureCounter |
		db.FeatureSet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureSave |
		db.FeatureLoad
	if l.path != "" {
		supportedFeatures |= db.FeaturePersistent
	}
	return supportedFeatures&feature == feature
}

func (l *levelImpl) Close() error {
	return l.ldb.Close()
}
