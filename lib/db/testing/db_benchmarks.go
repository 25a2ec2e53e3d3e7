package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("HSetIfUnset", func(b *testing.B) {
		benchmarkHSetIfUnset(b, factory())
	})

	b.Run("HSet", func(b *testing.B) {
		benchmarkHSet(b, factory())
	})

	b.Run("HGet", func(b *testing.B) {
		benchmarkHGet(b, factory())
	})

	b.Run("HGetAll", func(b *testing.B) {
		benchmarkHGetAll(b, factory())
	})

	b.Run("HIncrBy", func(b *testing.B) {
		benchmarkHIncrBy(b, factory())
	})

	b.Run("HIncrBy(hot)", func(b *testing.B) {
		benchmarkHIncrByHot(b, factory())
	})

	b.Run("SAdd", func(b *testing.B) {
		benchmarkSAdd(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

const benchKeys = 10_000

func prefill(b *testing.B, database db.KVDB) {
	for i := 0; i < benchKeys; i++ {
		if _, err := database.HSetIfUnset(fmt.Sprintf("bench:%d", i), map[string]string{
			"count":  "0",
			"reward": "0",
			"name":   "arm-" + strconv.Itoa(i),
		}); err != nil {
			b.Fatalf("prefill failed: %v", err)
		}
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkHSetIfUnset(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureHash)

	var counter atomic.Int64
	fields := map[string]string{"count": "0", "reward": "0"}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			_, _ = database.HSetIfUnset("bench:"+strconv.FormatInt(i, 10), fields)
		}
	})
}

func benchmarkHSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureHash)
	prefill(b, database)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_ = database.HSet(fmt.Sprintf("bench:%d", r.Intn(benchKeys)), "name", "updated")
		}
	})
}

func benchmarkHGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureHash)
	prefill(b, database)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_, _, _ = database.HGet(fmt.Sprintf("bench:%d", r.Intn(benchKeys)), "count")
		}
	})
}

func benchmarkHGetAll(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureHash)
	prefill(b, database)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_, _ = database.HGetAll(fmt.Sprintf("bench:%d", r.Intn(benchKeys)))
		}
	})
}

func benchmarkHIncrBy(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCounter)
	prefill(b, database)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_, _ = database.HIncrBy(fmt.Sprintf("bench:%d", r.Intn(benchKeys)), "count", 1)
		}
	})
}

// all goroutines hit the same record
func benchmarkHIncrByHot(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCounter)
	if _, err := database.HSetIfUnset("bench:hot", map[string]string{"count": "0"}); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = database.HIncrBy("bench:hot", "count", 1)
		}
	})
}

func benchmarkSAdd(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			_, _ = database.SAdd(fmt.Sprintf("bench:%d", i%16), strconv.FormatInt(i, 10))
		}
	})
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSave)
	requireFeature(b, database, db.FeatureLoad)
	prefill(b, database)

	var snapshot bytes.Buffer
	if err := database.Save(&snapshot); err != nil {
		b.Fatal(err)
	}
	data := snapshot.Bytes()

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := database.Load(bytes.NewReader(data)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// 80% reads, 15% increments, 5% membership changes
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureHash)
	requireFeature(b, database, db.FeatureCounter)
	requireFeature(b, database, db.FeatureSet)
	prefill(b, database)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			i := r.Intn(benchKeys)
			key := fmt.Sprintf("bench:%d", i)
			switch op := r.Intn(100); {
			case op < 80:
				_, _, _ = database.HGet(key, "count")
			case op < 95:
				_, _ = database.HIncrBy(key, "count", 1)
			default:
				_, _ = database.SAdd("bench", strconv.Itoa(i))
			}
		}
	})
}
