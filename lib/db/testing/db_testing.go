package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("HSetIfUnset&HGet", func(t *testing.T) {
			testHSetIfUnset(t, factory())
		})

		t.Run("HSet", func(t *testing.T) {
			testHSet(t, factory())
		})

		t.Run("HGetAll", func(t *testing.T) {
			testHGetAll(t, factory())
		})

		t.Run("HIncrBy", func(t *testing.T) {
			testHIncrBy(t, factory())
		})

		t.Run("HIncrByFloat", func(t *testing.T) {
			testHIncrByFloat(t, factory())
		})

		t.Run("ConcurrentIncrements", func(t *testing.T) {
			testConcurrentIncrements(t, factory())
		})

		t.Run("Sets", func(t *testing.T) {
			testSets(t, factory())
		})

		t.Run("WrongType", func(t *testing.T) {
			testWrongType(t, factory())
		})

		t.Run("Delete&Has", func(t *testing.T) {
			testDeleteHas(t, factory())
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustCreate(t testing.TB, database db.KVDB, key string, fields map[string]string) {
	t.Helper()
	if _, err := database.HSetIfUnset(key, fields); err != nil {
		t.Fatalf("HSetIfUnset(%s) failed: %v", key, err)
	}
}

func has(t testing.TB, database db.KVDB, key string) bool {
	t.Helper()
	ok, err := database.Has(key)
	if err != nil {
		t.Fatalf("Has(%s) failed: %v", key, err)
	}
	return ok
}

func del(t testing.TB, database db.KVDB, key string) bool {
	t.Helper()
	existed, err := database.Delete(key)
	if err != nil {
		t.Fatalf("Delete(%s) failed: %v", key, err)
	}
	return existed
}

func expectField(t testing.TB, database db.KVDB, key, field, expected string) {
	t.Helper()
	value, loaded, err := database.HGet(key, field)
	if err != nil {
		t.Fatalf("HGet(%s, %s) failed: %v", key, field, err)
	}
	if !loaded {
		t.Errorf("Expected field %s of %s to exist", field, key)
		return
	}
	if value != expected {
		t.Errorf("Expected %s.%s = %q, got %q", key, field, expected, value)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testHSetIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)

	created, err := database.HSetIfUnset("arm:1", map[string]string{"count": "0", "name": "a"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !created {
		t.Errorf("Expected first HSetIfUnset to create the key")
	}
	expectField(t, database, "arm:1", "count", "0")
	expectField(t, database, "arm:1", "name", "a")

	// present fields are never overwritten, missing fields are added
	created, err = database.HSetIfUnset("arm:1", map[string]string{"count": "5", "reward": "1.5"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if created {
		t.Errorf("Expected second HSetIfUnset not to create the key")
	}
	expectField(t, database, "arm:1", "count", "0")
	expectField(t, database, "arm:1", "reward", "1.5")

	_, loaded, err := database.HGet("arm:1", "missing")
	if err != nil || loaded {
		t.Errorf("Expected missing field to return loaded=false, got loaded=%v err=%v", loaded, err)
	}

	_, loaded, err = database.HGet("nonexistent-key", "count")
	if err != nil || loaded {
		t.Errorf("Expected nonexistent key to return loaded=false, got loaded=%v err=%v", loaded, err)
	}
}

func testHSet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)
	requireFeature(t, database, db.FeatureHas)

	err := database.HSet("missing", "field", "value")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for HSet on missing key, got %v", err)
	}
	if has(t, database, "missing") {
		t.Errorf("HSet must never create a key")
	}

	mustCreate(t, database, "arm:1", map[string]string{"name": "a"})
	if err := database.HSet("arm:1", "name", "b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expectField(t, database, "arm:1", "name", "b")

	if err := database.HSet("arm:1", "extra", "x"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expectField(t, database, "arm:1", "extra", "x")
}

func testHGetAll(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)

	fields, err := database.HGetAll("missing")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("Expected empty map for missing key, got %v", fields)
	}

	mustCreate(t, database, "arm:1", map[string]string{"count": "1", "reward": "2.5"})
	fields, err = database.HGetAll("arm:1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(fields) != 2 || fields["count"] != "1" || fields["reward"] != "2.5" {
		t.Errorf("Unexpected fields: %v", fields)
	}

	// the result must be a copy
	fields["count"] = "X"
	expectField(t, database, "arm:1", "count", "1")
}

func testHIncrBy(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)
	requireFeature(t, database, db.FeatureCounter)

	if _, err := database.HIncrBy("missing", "count", 1); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for HIncrBy on missing key, got %v", err)
	}

	mustCreate(t, database, "arm:1", map[string]string{"count": "3", "name": "a"})

	v, err := database.HIncrBy("arm:1", "count", 2)
	if err != nil || v != 5 {
		t.Errorf("Expected 5, got %d (err=%v)", v, err)
	}
	v, err = database.HIncrBy("arm:1", "count", -7)
	if err != nil || v != -2 {
		t.Errorf("Expected -2, got %d (err=%v)", v, err)
	}
	expectField(t, database, "arm:1", "count", "-2")

	// a missing field counts as zero
	v, err = database.HIncrBy("arm:1", "pulls", 4)
	if err != nil || v != 4 {
		t.Errorf("Expected 4, got %d (err=%v)", v, err)
	}

	if _, err := database.HIncrBy("arm:1", "name", 1); !errors.Is(err, db.ErrNotNumber) {
		t.Errorf("Expected ErrNotNumber, got %v", err)
	}
	expectField(t, database, "arm:1", "name", "a")
}

func testHIncrByFloat(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)
	requireFeature(t, database, db.FeatureCounter)

	if _, err := database.HIncrByFloat("missing", "reward", 1); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for HIncrByFloat on missing key, got %v", err)
	}

	mustCreate(t, database, "arm:1", map[string]string{"reward": "0.5", "name": "a"})

	v, err := database.HIncrByFloat("arm:1", "reward", 1.25)
	if err != nil || v != 1.75 {
		t.Errorf("Expected 1.75, got %f (err=%v)", v, err)
	}

	value, _, _ := database.HGet("arm:1", "reward")
	if f, err := strconv.ParseFloat(value, 64); err != nil || f != 1.75 {
		t.Errorf("Expected stored reward 1.75, got %q", value)
	}

	if _, err := database.HIncrByFloat("arm:1", "name", 1); !errors.Is(err, db.ErrNotNumber) {
		t.Errorf("Expected ErrNotNumber, got %v", err)
	}

	// stored in the shortest form, the same text the schema encoder writes
	if _, err := database.HIncrByFloat("arm:1", "big", 1e21); err != nil {
		t.Fatalf("HIncrByFloat failed: %v", err)
	}
	expectField(t, database, "arm:1", "big", "1e+21")
}

func testConcurrentIncrements(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)
	requireFeature(t, database, db.FeatureCounter)

	mustCreate(t, database, "arm:hot", map[string]string{"count": "0"})

	const goroutines = 8
	const perGoroutine = 250

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if _, err := database.HIncrBy("arm:hot", "count", 1); err != nil {
					t.Errorf("HIncrBy failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	expectField(t, database, "arm:hot", "count", strconv.Itoa(goroutines*perGoroutine))
}

func testSets(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureHas)

	added, err := database.SAdd("bandit", "a", "b", "c")
	if err != nil || added != 3 {
		t.Errorf("Expected 3 added members, got %d (err=%v)", added, err)
	}
	added, err = database.SAdd("bandit", "a", "d")
	if err != nil || added != 1 {
		t.Errorf("Expected 1 added member, got %d (err=%v)", added, err)
	}

	if n, err := database.SCard("bandit"); err != nil || n != 4 {
		t.Errorf("Expected cardinality 4, got %d (err=%v)", n, err)
	}

	ok, err := database.SIsMember("bandit", "b")
	if err != nil || !ok {
		t.Errorf("Expected b to be a member (err=%v)", err)
	}
	ok, _ = database.SIsMember("bandit", "z")
	if ok {
		t.Errorf("Expected z not to be a member")
	}

	members, err := database.SMembers("bandit")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sort.Strings(members)
	if fmt.Sprint(members) != "[a b c d]" {
		t.Errorf("Unexpected members: %v", members)
	}

	removed, err := database.SRem("bandit", "a", "z")
	if err != nil || removed != 1 {
		t.Errorf("Expected 1 removed member, got %d (err=%v)", removed, err)
	}

	// removing the last member removes the key
	if _, err := database.SRem("bandit", "b", "c", "d"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if has(t, database, "bandit") {
		t.Errorf("Expected empty set to be removed")
	}

	// missing keys behave like empty sets
	if n, err := database.SCard("missing"); err != nil || n != 0 {
		t.Errorf("Expected cardinality 0 for missing key, got %d (err=%v)", n, err)
	}
	if members, err := database.SMembers("missing"); err != nil || len(members) != 0 {
		t.Errorf("Expected no members for missing key, got %v (err=%v)", members, err)
	}
	if removed, err := database.SRem("missing", "a"); err != nil || removed != 0 {
		t.Errorf("Expected no removal for missing key, got %d (err=%v)", removed, err)
	}
}

func testWrongType(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)
	requireFeature(t, database, db.FeatureSet)

	mustCreate(t, database, "hash", map[string]string{"f": "1"})
	if _, err := database.SAdd("set", "m"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := database.SAdd("hash", "m"); !errors.Is(err, db.ErrWrongType) {
		t.Errorf("Expected ErrWrongType for SAdd on hash, got %v", err)
	}
	if _, err := database.SIsMember("hash", "m"); !errors.Is(err, db.ErrWrongType) {
		t.Errorf("Expected ErrWrongType for SIsMember on hash, got %v", err)
	}
	if _, _, err := database.HGet("set", "f"); !errors.Is(err, db.ErrWrongType) {
		t.Errorf("Expected ErrWrongType for HGet on set, got %v", err)
	}
	if err := database.HSet("set", "f", "1"); !errors.Is(err, db.ErrWrongType) {
		t.Errorf("Expected ErrWrongType for HSet on set, got %v", err)
	}
	if _, err := database.HSetIfUnset("set", map[string]string{"f": "1"}); !errors.Is(err, db.ErrWrongType) {
		t.Errorf("Expected ErrWrongType for HSetIfUnset on set, got %v", err)
	}
	if _, err := database.HIncrBy("set", "f", 1); !errors.Is(err, db.ErrWrongType) {
		t.Errorf("Expected ErrWrongType for HIncrBy on set, got %v", err)
	}

	// failed writes leave the data untouched
	expectField(t, database, "hash", "f", "1")
	if ok, _ := database.SIsMember("set", "m"); !ok {
		t.Errorf("Expected set to be untouched")
	}
}

func testDeleteHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureDelete)
	requireFeature(t, database, db.FeatureHas)

	if has(t, database, "arm:1") {
		t.Errorf("Expected Has to return false for nonexistent key")
	}
	if del(t, database, "arm:1") {
		t.Errorf("Expected Delete of nonexistent key to report existed=false")
	}

	mustCreate(t, database, "arm:1", map[string]string{"count": "0"})
	if !has(t, database, "arm:1") {
		t.Errorf("Expected Has to return true after HSetIfUnset")
	}

	if !del(t, database, "arm:1") {
		t.Errorf("Expected Delete to report existed=true")
	}
	if has(t, database, "arm:1") {
		t.Errorf("Expected Has to return false after Delete")
	}

	// a deleted record is not resurrected by writes
	if _, err := database.HIncrBy("arm:1", "count", 1); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after Delete, got %v", err)
	}
	if has(t, database, "arm:1") {
		t.Errorf("Expected key to stay deleted")
	}
}

// testClosed checks that an engine refusing work after Close says so on every
// operation. Engines that keep serving after Close must stay consistent.
func testClosed(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureDelete)
	requireFeature(t, database, db.FeatureHas)

	mustCreate(t, database, "arm:1", map[string]string{"count": "0"})
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, _, getErr := database.HGet("arm:1", "count")
	ok, hasErr := database.Has("arm:1")
	if getErr == nil {
		if hasErr != nil || !ok {
			t.Errorf("Expected Has to see arm:1 while HGet still works, got %v (err=%v)", ok, hasErr)
		}
		return
	}

	if hasErr == nil {
		t.Errorf("Expected Has to fail on a closed engine, got %v", ok)
	}
	if _, err := database.Delete("arm:1"); err == nil {
		t.Errorf("Expected Delete to fail on a closed engine")
	}
	if _, err := database.HIncrBy("arm:1", "count", 1); err == nil {
		t.Errorf("Expected HIncrBy to fail on a closed engine")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureHash)
	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureSave)
	requireFeature(t, database, db.FeatureLoad)

	numEntries := 500
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load:%d", i)
		mustCreate(t, database, key, map[string]string{
			"count": strconv.Itoa(i),
			"name":  fmt.Sprintf("arm-%d", i),
		})
		if _, err := database.SAdd("save-load", strconv.Itoa(i)); err != nil {
			t.Fatalf("SAdd failed: %v", err)
		}
	}

	// Load must replace existing content
	mustCreate(t, database2, "stale", map[string]string{"x": "1"})

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	if has(t, database2, "stale") {
		t.Errorf("Expected Load to replace the existing data")
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load:%d", i)
		expectField(t, database2, key, "count", strconv.Itoa(i))
		expectField(t, database2, key, "name", fmt.Sprintf("arm-%d", i))
	}

	if n, err := database2.SCard("save-load"); err != nil || n != numEntries {
		t.Errorf("Expected %d members after Load, got %d (err=%v)", numEntries, n, err)
	}

	// the loaded database must be writable
	if v, err := database2.HIncrBy("save-load:0", "count", 1); err != nil || v != 1 {
		t.Errorf("Expected 1 after increment on loaded data, got %d (err=%v)", v, err)
	}
	expectField(t, database, "save-load:0", "count", "0")
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)
	requireFeature(t, database, db.FeatureSet)

	// empty values and unicode
	mustCreate(t, database, "edge:1", map[string]string{"empty": "", "uni": "日本語 ✓"})
	expectField(t, database, "edge:1", "empty", "")
	expectField(t, database, "edge:1", "uni", "日本語 ✓")

	// keys that share a prefix must not interfere
	mustCreate(t, database, "edge", map[string]string{"f": "outer"})
	mustCreate(t, database, "edge:10", map[string]string{"f": "inner"})
	expectField(t, database, "edge", "f", "outer")
	expectField(t, database, "edge:10", "f", "inner")
	if _, loaded, _ := database.HGet("edge:1", "f"); loaded {
		t.Errorf("Expected edge:1 not to see fields of edge:10")
	}

	// an empty hash is still a key
	mustCreate(t, database, "edge:empty", map[string]string{})
	if database.SupportsFeature(db.FeatureHas) && !has(t, database, "edge:empty") {
		t.Errorf("Expected empty hash to exist")
	}

	// large values
	large := string(bytes.Repeat([]byte("x"), 1<<16))
	if err := database.HSet("edge:1", "large", large); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expectField(t, database, "edge:1", "large", large)

	// adding zero members is a no-op
	if added, err := database.SAdd("edge:set"); err != nil || added != 0 {
		t.Errorf("Expected no members added, got %d (err=%v)", added, err)
	}
	if database.SupportsFeature(db.FeatureHas) && has(t, database, "edge:set") {
		t.Errorf("Expected no empty set to be stored")
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHash)
	requireFeature(t, database, db.FeatureCounter)
	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureDelete)

	const arms = 20
	const workers = 4
	const rounds = 100

	for i := 0; i < arms; i++ {
		id := strconv.Itoa(i)
		mustCreate(t, database, "exp:"+id, map[string]string{"count": "0", "reward": "0"})
		if _, err := database.SAdd("exp", id); err != nil {
			t.Fatalf("SAdd failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				key := "exp:" + strconv.Itoa((w+r)%arms)
				if _, err := database.HIncrBy(key, "count", 1); err != nil {
					t.Errorf("HIncrBy failed: %v", err)
					return
				}
				if _, err := database.HIncrByFloat(key, "reward", 0.5); err != nil {
					t.Errorf("HIncrByFloat failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	members, err := database.SMembers("exp")
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	for _, id := range members {
		value, _, err := database.HGet("exp:"+id, "count")
		if err != nil {
			t.Fatalf("HGet failed: %v", err)
		}
		n, _ := strconv.Atoi(value)
		total += n
	}
	if total != workers*rounds {
		t.Errorf("Expected %d pulls in total, got %d", workers*rounds, total)
	}

	// retire half of the arms
	for i := 0; i < arms/2; i++ {
		id := strconv.Itoa(i)
		if _, err := database.SRem("exp", id); err != nil {
			t.Fatalf("SRem failed: %v", err)
		}
		del(t, database, "exp:"+id)
	}
	if n, _ := database.SCard("exp"); n != arms/2 {
		t.Errorf("Expected %d arms left, got %d", arms/2, n)
	}
}
