package rstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/store"
	storetesting "github.com/ValentinKolb/dBandit/lib/store/testing"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedisStore(t *testing.T) store.IStore {
	mr := miniredis.RunT(t)
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestRedisStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "rstore(miniredis)", newMiniRedisStore)
}

func TestFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStoreFromURL("redis://" + mr.Addr() + "/0")
	if err != nil {
		t.Fatalf("NewRedisStoreFromURL failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "0"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	if got := mr.HGet("arm:1", "count"); got != "0" {
		t.Errorf("Expected count 0 in redis, got %q", got)
	}

	if _, err := NewRedisStoreFromURL("http://not-redis"); err == nil {
		t.Errorf("Expected error for a non redis URL")
	}
}

func TestUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer s.Close()

	mr.Close()

	_, err := s.SCard(context.Background(), "bandit")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable after the server went away, got %v", err)
	}
}

func TestDBInfo(t *testing.T) {
	s := newMiniRedisStore(t)
	defer s.Close()

	ctx := context.Background()
	_ = s.SAdd(ctx, "bandit", "1")
	_ = s.HSetIfUnset(ctx, "bandit:1", map[string]string{"count": "0"})

	info, err := s.GetDBInfo(ctx)
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.Keys != 2 {
		t.Errorf("Expected 2 keys, got %d", info.Keys)
	}
}
