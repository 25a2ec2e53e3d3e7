package testing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/store"
)

// StoreFactory creates a fresh, empty store for a single test.
// The test closes the store when it is done.
type StoreFactory func(t *testing.T) store.IStore

// RunIStoreTests runs the conformance suite for a store.IStore implementation.
func RunIStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("HSetIfUnset&HGet", func(t *testing.T) {
			testHSetIfUnset(t, factory(t))
		})

		t.Run("HSetRequiresKey", func(t *testing.T) {
			testHSetRequiresKey(t, factory(t))
		})

		t.Run("Counters", func(t *testing.T) {
			testCounters(t, factory(t))
		})

		t.Run("ConcurrentHIncrBy", func(t *testing.T) {
			testConcurrentHIncrBy(t, factory(t))
		})

		t.Run("HGetAll", func(t *testing.T) {
			testHGetAll(t, factory(t))
		})

		t.Run("HGetMulti", func(t *testing.T) {
			testHGetMulti(t, factory(t))
		})

		t.Run("Sets", func(t *testing.T) {
			testSets(t, factory(t))
		})

		t.Run("Delete&Has", func(t *testing.T) {
			testDeleteHas(t, factory(t))
		})

		t.Run("ErrorCodes", func(t *testing.T) {
			testErrorCodes(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func expectField(t *testing.T, s store.IStore, key, field, expected string) {
	t.Helper()
	value, found, err := s.HGet(context.Background(), key, field)
	if err != nil {
		t.Fatalf("HGet(%s, %s) failed: %v", key, field, err)
	}
	if !found {
		t.Errorf("Expected field %s of %s to exist", field, key)
		return
	}
	if value != expected {
		t.Errorf("Expected %s.%s = %q, got %q", key, field, expected, value)
	}
}

func expectCode(t *testing.T, err error, code store.RetCode) {
	t.Helper()
	var se *store.Error
	if !errors.As(err, &se) {
		t.Errorf("Expected *store.Error with code %s, got %v", code, err)
		return
	}
	if se.Code != code {
		t.Errorf("Expected code %s, got %s (%s)", code, se.Code, se.Msg)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testHSetIfUnset(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "0", "name": "a"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	expectField(t, s, "arm:1", "count", "0")
	expectField(t, s, "arm:1", "name", "a")

	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "9", "reward": "0.5"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	expectField(t, s, "arm:1", "count", "0")
	expectField(t, s, "arm:1", "reward", "0.5")

	_, found, err := s.HGet(ctx, "arm:1", "missing")
	if err != nil || found {
		t.Errorf("Expected missing field to return found=false, got found=%v err=%v", found, err)
	}
	_, found, err = s.HGet(ctx, "arm:404", "count")
	if err != nil || found {
		t.Errorf("Expected missing key to return found=false, got found=%v err=%v", found, err)
	}
}

func testHSetRequiresKey(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	err := s.HSet(ctx, "arm:404", "count", "1")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for HSet on missing key, got %v", err)
	}
	if ok, _ := s.Has(ctx, "arm:404"); ok {
		t.Errorf("HSet must not create the key")
	}

	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "0"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	if err := s.HSet(ctx, "arm:1", "count", "17"); err != nil {
		t.Fatalf("HSet failed: %v", err)
	}
	expectField(t, s, "arm:1", "count", "17")
}

func testCounters(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if _, err := s.HIncrBy(ctx, "arm:404", "count", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for HIncrBy on missing key, got %v", err)
	}
	if _, err := s.HIncrByFloat(ctx, "arm:404", "reward", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for HIncrByFloat on missing key, got %v", err)
	}
	if ok, _ := s.Has(ctx, "arm:404"); ok {
		t.Errorf("Counters must not create the key")
	}

	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "10", "reward": "1.5", "name": "x"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}

	for i, expected := range []int64{11, 12, 13} {
		v, err := s.HIncrBy(ctx, "arm:1", "count", 1)
		if err != nil || v != expected {
			t.Errorf("Increment %d: expected %d, got %d (err=%v)", i, expected, v, err)
		}
	}
	if v, err := s.HIncrBy(ctx, "arm:1", "count", -20); err != nil || v != -7 {
		t.Errorf("Expected -7, got %d (err=%v)", v, err)
	}

	f, err := s.HIncrByFloat(ctx, "arm:1", "reward", 0.25)
	if err != nil || f != 1.75 {
		t.Errorf("Expected 1.75, got %f (err=%v)", f, err)
	}

	raw, _, _ := s.HGet(ctx, "arm:1", "reward")
	if parsed, err := strconv.ParseFloat(raw, 64); err != nil || parsed != 1.75 {
		t.Errorf("Expected stored reward 1.75, got %q", raw)
	}

	if v, err := s.HIncrBy(ctx, "arm:1", "fresh", 3); err != nil || v != 3 {
		t.Errorf("Expected missing field to count as 0, got %d (err=%v)", v, err)
	}
}

func testConcurrentHIncrBy(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.HSetIfUnset(ctx, "arm:hot", map[string]string{"count": "5"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := s.HIncrBy(ctx, "arm:hot", "count", 2); err != nil {
					t.Errorf("HIncrBy failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	expectField(t, s, "arm:hot", "count", strconv.Itoa(5+workers*perWorker*2))
}

func testHGetAll(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	fields, err := s.HGetAll(ctx, "arm:404")
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("Expected no fields for missing key, got %v", fields)
	}

	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "1", "name": "a"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	fields, err = s.HGetAll(ctx, "arm:1")
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if len(fields) != 2 || fields["count"] != "1" || fields["name"] != "a" {
		t.Errorf("Unexpected fields: %v", fields)
	}
}

func testHGetMulti(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("arm:%d", i)
		if err := s.HSetIfUnset(ctx, key, map[string]string{"count": strconv.Itoa(i * i)}); err != nil {
			t.Fatalf("HSetIfUnset failed: %v", err)
		}
	}

	refs := []store.FieldRef{
		{Key: "arm:7", Field: "count"},
		{Key: "arm:2", Field: "count"},
		{Key: "arm:7", Field: "count"},
		{Key: "arm:404", Field: "count"},
		{Key: "arm:3", Field: "missing"},
		{Key: "arm:0", Field: "count"},
	}
	values, err := s.HGetMulti(ctx, refs)
	if err != nil {
		t.Fatalf("HGetMulti failed: %v", err)
	}
	if len(values) != len(refs) {
		t.Fatalf("Expected %d values, got %d", len(refs), len(values))
	}

	expected := []store.FieldValue{
		{Value: "49", Found: true},
		{Value: "4", Found: true},
		{Value: "49", Found: true},
		{},
		{},
		{Value: "0", Found: true},
	}
	for i := range expected {
		if values[i] != expected[i] {
			t.Errorf("Value %d: expected %+v, got %+v", i, expected[i], values[i])
		}
	}

	empty, err := s.HGetMulti(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty result for no refs, got %v (err=%v)", empty, err)
	}
}

func testSets(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	for _, m := range []string{"1", "2", "3", "2"} {
		if err := s.SAdd(ctx, "bandit", m); err != nil {
			t.Fatalf("SAdd failed: %v", err)
		}
	}

	if n, err := s.SCard(ctx, "bandit"); err != nil || n != 3 {
		t.Errorf("Expected 3 members, got %d (err=%v)", n, err)
	}
	if ok, err := s.SIsMember(ctx, "bandit", "2"); err != nil || !ok {
		t.Errorf("Expected 2 to be a member (err=%v)", err)
	}

	if err := s.SRem(ctx, "bandit", "2"); err != nil {
		t.Fatalf("SRem failed: %v", err)
	}
	if err := s.SRem(ctx, "bandit", "2"); err != nil {
		t.Errorf("Removing an absent member must not fail, got %v", err)
	}

	members, err := s.SMembers(ctx, "bandit")
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	sort.Strings(members)
	if fmt.Sprint(members) != "[1 3]" {
		t.Errorf("Expected members [1 3], got %v", members)
	}

	if n, err := s.SCard(ctx, "empty"); err != nil || n != 0 {
		t.Errorf("Expected 0 members for missing set, got %d (err=%v)", n, err)
	}
	if members, err := s.SMembers(ctx, "empty"); err != nil || len(members) != 0 {
		t.Errorf("Expected no members for missing set, got %v (err=%v)", members, err)
	}
}

func testDeleteHas(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Delete(ctx, "arm:404"); err != nil {
		t.Errorf("Deleting a missing key must not fail, got %v", err)
	}

	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "3"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	if ok, err := s.Has(ctx, "arm:1"); err != nil || !ok {
		t.Errorf("Expected arm:1 to exist (err=%v)", err)
	}

	if err := s.Delete(ctx, "arm:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := s.Has(ctx, "arm:1"); ok {
		t.Errorf("Expected arm:1 to be deleted")
	}

	// recreating starts from scratch
	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"count": "0"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	expectField(t, s, "arm:1", "count", "0")
}

func testErrorCodes(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.HSetIfUnset(ctx, "arm:1", map[string]string{"name": "x"}); err != nil {
		t.Fatalf("HSetIfUnset failed: %v", err)
	}
	if err := s.SAdd(ctx, "bandit", "1"); err != nil {
		t.Fatalf("SAdd failed: %v", err)
	}

	_, err := s.HIncrBy(ctx, "arm:1", "name", 1)
	expectCode(t, err, store.RetCNotNumber)

	_, err = s.HIncrByFloat(ctx, "arm:1", "name", 1)
	expectCode(t, err, store.RetCNotNumber)

	err = s.SAdd(ctx, "arm:1", "m")
	expectCode(t, err, store.RetCWrongType)

	_, err = s.HIncrBy(ctx, "bandit", "count", 1)
	expectCode(t, err, store.RetCWrongType)

	_, _, err = s.HGet(ctx, "bandit", "count")
	expectCode(t, err, store.RetCWrongType)

	err = s.HSet(ctx, "arm:404", "name", "x")
	expectCode(t, err, store.RetCNotFound)
}
