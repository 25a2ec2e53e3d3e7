package maple

import (
	"testing"

	"github.com/ValentinKolb/dBandit/lib/db"
	dbtesting "github.com/ValentinKolb/dBandit/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}

func TestSingleShard(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB(1 shard)", func() db.KVDB {
		return NewMapleDB(&DBOptions{NumShards: 1})
	})
}

func TestInfo(t *testing.T) {
	database := NewMapleDB(&DBOptions{NumShards: 4})
	defer database.Close()

	if _, err := database.HSetIfUnset("arm:1", map[string]string{"count": "0"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	if _, err := database.SAdd("arm", "1"); err != nil {
		t.Fatalf("SAdd failed: %v", err)
	}

	info := database.GetInfo()
	if info.Keys != 2 {
		t.Errorf("Expected 2 keys, got %d", info.Keys)
	}
	if info.DbType != db.ImplMaple {
		t.Errorf("Expected db type %s, got %s", db.ImplMaple, info.DbType)
	}
	if database.SupportsFeature(db.FeaturePersistent) {
		t.Errorf("Expected maple not to be persistent")
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}
