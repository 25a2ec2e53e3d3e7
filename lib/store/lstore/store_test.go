package lstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/db/engines/leveldb"
	"github.com/ValentinKolb/dBandit/lib/db/engines/maple"
	"github.com/ValentinKolb/dBandit/lib/store"
	storetesting "github.com/ValentinKolb/dBandit/lib/store/testing"
)

func TestMapleStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "lstore(maple)", func(t *testing.T) store.IStore {
		return NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	})
}

func TestLevelDBStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "lstore(leveldb)", func(t *testing.T) store.IStore {
		return NewLocalStore(func() db.KVDB {
			database, err := leveldb.NewLevelDB(&leveldb.DBOptions{Path: t.TempDir()})
			if err != nil {
				t.Fatalf("failed to open leveldb: %v", err)
			}
			return database
		})
	})
}

func TestCanceledContext(t *testing.T) {
	s := NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.HGet(ctx, "k", "f"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable for a canceled context, got %v", err)
	}
}

func TestClosedEngine(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(func() db.KVDB {
		database, err := leveldb.NewLevelDB(&leveldb.DBOptions{Path: t.TempDir()})
		if err != nil {
			t.Fatalf("failed to open leveldb: %v", err)
		}
		return database
	})
	if err := s.HSetIfUnset(ctx, "b:1", map[string]string{"count": "0"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := s.Has(ctx, "b:1"); err == nil || errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected Has to report the closed engine, got %v", err)
	}
	if err := s.Delete(ctx, "b:1"); err == nil {
		t.Error("Expected Delete to report the closed engine")
	}
}
