package bandit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/store"
)

func TestArmDefaults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		arm, err := NewArm(ctx, conn, testSchema, "test:1", nil)
		if err != nil {
			t.Fatalf("NewArm failed: %v", err)
		}
		if arm.ID() != "1" || arm.Key() != "test:1" {
			t.Errorf("Unexpected identity %q / %q", arm.ID(), arm.Key())
		}

		for _, f := range testSchema.Fields() {
			v, err := arm.Get(ctx, f.Name)
			if err != nil {
				t.Fatalf("Get(%s) failed: %v", f.Name, err)
			}
			if v != f.Default {
				t.Errorf("Field %s: expected default %v, got %v", f.Name, f.Default, v)
			}
		}

		if id, _ := arm.Get(ctx, IDField); id != "1" {
			t.Errorf("Expected id 1, got %v", id)
		}
	})
}

func TestArmOverridesAndIdempotence(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		arm, err := NewArm(ctx, conn, testSchema, "test:1", Fields{"count": 5, "label": "blue"})
		if err != nil {
			t.Fatalf("NewArm failed: %v", err)
		}
		if _, err := arm.Increment(ctx, "count", 1); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}

		// constructing again must neither reset nor override present values
		again, err := NewArm(ctx, conn, testSchema, "test:1", Fields{"count": 100})
		if err != nil {
			t.Fatalf("NewArm failed: %v", err)
		}
		if n, _ := again.Int(ctx, "count"); n != 6 {
			t.Errorf("Expected count 6, got %d", n)
		}
		if l, _ := again.String(ctx, "label"); l != "blue" {
			t.Errorf("Expected label blue, got %q", l)
		}
	})
}

func TestArmSetGetAcrossInstances(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		a1, _ := NewArm(ctx, conn, testSchema, "test:x", nil)
		a2, err := BindArm(conn, testSchema, "test:x")
		if err != nil {
			t.Fatalf("BindArm failed: %v", err)
		}

		if err := a1.Set(ctx, "label", "green"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := a1.Set(ctx, "active", false); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := a1.Set(ctx, "reward", 3); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		if l, _ := a2.String(ctx, "label"); l != "green" {
			t.Errorf("Expected green, got %q", l)
		}
		if b, _ := a2.Bool(ctx, "active"); b {
			t.Error("Expected active to be false")
		}
		if r, _ := a2.Float(ctx, "reward"); r != 3 {
			t.Errorf("Expected reward 3, got %v", r)
		}

		if _, err := a1.Increment(ctx, "count", 1); err != nil {
			t.Fatal(err)
		}
		c1, _ := a1.Int(ctx, "count")
		c2, _ := a2.Int(ctx, "count")
		if c1 != 1 || c1 != c2 {
			t.Errorf("Expected both instances to read 1, got %d and %d", c1, c2)
		}
	})
}

func TestArmConcurrentIncrement(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		if _, err := NewArm(ctx, conn, testSchema, "test:hot", Fields{"count": 10}); err != nil {
			t.Fatal(err)
		}

		const workers, perWorker = 16, 25
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(delta int64) {
				defer wg.Done()
				// every worker binds its own instance
				arm, err := BindArm(conn, testSchema, "test:hot")
				if err != nil {
					errs <- err
					return
				}
				for i := 0; i < perWorker; i++ {
					if _, err := arm.Increment(ctx, "count", delta); err != nil {
						errs <- err
						return
					}
					if _, err := arm.IncrementFloat(ctx, "reward", 0.5); err != nil {
						errs <- err
						return
					}
				}
			}(int64(w + 1))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent increment failed: %v", err)
		}

		// sum of 1..16 per round
		want := int64(10 + perWorker*workers*(workers+1)/2)
		arm, _ := BindArm(conn, testSchema, "test:hot")
		if n, _ := arm.Int(ctx, "count"); n != want {
			t.Errorf("Expected count %d, got %d", want, n)
		}
		if r, _ := arm.Float(ctx, "reward"); r != 0.5+0.5*workers*perWorker {
			t.Errorf("Expected reward %v, got %v", 0.5+0.5*workers*perWorker, r)
		}
	})
}

func TestArmSnapshot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		arm, _ := NewArm(ctx, conn, testSchema, "test:snap", Fields{"count": 2})

		snap, err := arm.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}

		names := []string{IDField, "count", "reward", "label", "active"}
		if len(snap) != len(names) {
			t.Fatalf("Expected %d fields, got %d", len(names), len(snap))
		}
		for i, name := range names {
			if snap[i].Name != name {
				t.Errorf("Position %d: expected %s, got %s", i, name, snap[i].Name)
			}
			if name == IDField {
				continue
			}
			v, _ := arm.Get(ctx, name)
			if snap[i].Value != v {
				t.Errorf("Field %s: snapshot %v, get %v", name, snap[i].Value, v)
			}
		}

		data, err := json.Marshal(snap)
		if err != nil {
			t.Fatal(err)
		}
		want := `{"id":"snap","count":2,"reward":0.5,"label":"none","active":true}`
		if string(data) != want {
			t.Errorf("Expected %s, got %s", want, data)
		}

		if v, ok := snap.Get("count"); !ok || v != int64(2) {
			t.Errorf("Expected count 2, got %v", v)
		}
		if len(snap.Map()) != len(names) {
			t.Errorf("Expected map with %d entries", len(names))
		}
	})
}

func TestArmErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		arm, _ := NewArm(ctx, conn, testSchema, "test:err", nil)

		t.Run("UnknownField", func(t *testing.T) {
			_, err := arm.Get(ctx, "missing")
			var ufe *UnknownFieldError
			if !errors.As(err, &ufe) || ufe.Field != "missing" || !errors.Is(err, ErrUnknownField) {
				t.Errorf("Expected UnknownFieldError, got %v", err)
			}
			if err := arm.Set(ctx, "missing", 1); !errors.Is(err, ErrUnknownField) {
				t.Errorf("Expected UnknownFieldError, got %v", err)
			}
			if _, err := arm.Increment(ctx, "missing", 1); !errors.Is(err, ErrUnknownField) {
				t.Errorf("Expected UnknownFieldError, got %v", err)
			}
			if _, err := NewArm(ctx, conn, testSchema, "test:err2", Fields{"missing": 1}); !errors.Is(err, ErrUnknownField) {
				t.Errorf("Expected UnknownFieldError, got %v", err)
			}
		})

		t.Run("NotNumeric", func(t *testing.T) {
			if _, err := arm.Increment(ctx, "label", 1); !errors.Is(err, ErrNotNumeric) {
				t.Errorf("Expected ErrNotNumeric, got %v", err)
			}
			if _, err := arm.Increment(ctx, "reward", 1); !errors.Is(err, ErrNotNumeric) {
				t.Errorf("Expected ErrNotNumeric, got %v", err)
			}
			if _, err := arm.IncrementFloat(ctx, "count", 1); !errors.Is(err, ErrNotNumeric) {
				t.Errorf("Expected ErrNotNumeric, got %v", err)
			}
		})

		t.Run("InvalidValue", func(t *testing.T) {
			if err := arm.Set(ctx, "count", "seven"); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("Expected ErrInvalidValue, got %v", err)
			}
			if _, err := arm.Bool(ctx, "count"); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("Expected ErrInvalidValue, got %v", err)
			}
		})

		t.Run("InvalidKey", func(t *testing.T) {
			if _, err := BindArm(conn, testSchema, "test:"); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Expected ErrInvalidKey, got %v", err)
			}
		})

		t.Run("DeletedUnderneath", func(t *testing.T) {
			if err := conn.Delete(ctx, arm.Key()); err != nil {
				t.Fatal(err)
			}
			if _, err := arm.Get(ctx, "count"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get: expected NotFoundError, got %v", err)
			}
			if err := arm.Set(ctx, "count", 1); !errors.Is(err, ErrNotFound) {
				t.Errorf("Set: expected NotFoundError, got %v", err)
			}
			if _, err := arm.Increment(ctx, "count", 1); !errors.Is(err, ErrNotFound) {
				t.Errorf("Increment: expected NotFoundError, got %v", err)
			}
			if _, err := arm.Snapshot(ctx); !errors.Is(err, ErrNotFound) {
				t.Errorf("Snapshot: expected NotFoundError, got %v", err)
			}
			// no write must have recreated the record
			if ok, _ := conn.Has(ctx, arm.Key()); ok {
				t.Error("Expected record to stay deleted")
			}
		})
	})
}
