package leveldb

import (
	"testing"

	"github.com/ValentinKolb/dBandit/lib/db"
	dbtesting "github.com/ValentinKolb/dBandit/lib/db/testing"
)

func memFactory(t testing.TB) dbtesting.DBFactory {
	return func() db.KVDB {
		database, err := NewLevelDB(nil)
		if err != nil {
			t.Fatalf("failed to open leveldb: %v", err)
		}
		return database
	}
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "LevelDB", memFactory(t))
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()

	database, err := NewLevelDB(&DBOptions{Path: dir})
	if err != nil {
		t.Fatalf("failed to open leveldb: %v", err)
	}
	if !database.SupportsFeature(db.FeaturePersistent) {
		t.Errorf("Expected file backed leveldb to be persistent")
	}
	if _, err := database.HSetIfUnset("arm:1", map[string]string{"count": "0"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	if _, err := database.HIncrBy("arm:1", "count", 3); err != nil {
		t.Fatalf("HIncrBy failed: %v", err)
	}
	if _, err := database.SAdd("arm", "1"); err != nil {
		t.Fatalf("SAdd failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewLevelDB(&DBOptions{Path: dir})
	if err != nil {
		t.Fatalf("failed to reopen leveldb: %v", err)
	}
	defer reopened.Close()

	value, loaded, err := reopened.HGet("arm:1", "count")
	if err != nil || !loaded || value != "3" {
		t.Errorf("Expected count 3 after reopen, got %q (loaded=%v, err=%v)", value, loaded, err)
	}
	if ok, _ := reopened.SIsMember("arm", "1"); !ok {
		t.Errorf("Expected membership to survive reopen")
	}
	if info := reopened.GetInfo(); info.Keys != 2 {
		t.Errorf("Expected 2 keys, got %d", info.Keys)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "LevelDB", memFactory(b))
}
