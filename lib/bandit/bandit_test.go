package bandit

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/alicebob/miniredis/v2"
)

var countSchema = MustSchema("count-arm", Int("count", 0))

func newBandit(t *testing.T, conn store.IStore, prefix string) *Bandit {
	t.Helper()
	b, err := New(conn, prefix, countSchema)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func sortedIDs(t *testing.T, b *Bandit) []string {
	t.Helper()
	ids, err := b.ArmIDs(context.Background())
	if err != nil {
		t.Fatalf("ArmIDs failed: %v", err)
	}
	slices.Sort(ids)
	return ids
}

func TestMembership(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		b := newBandit(t, conn, "bandit:members")

		for _, id := range []string{"1", "2", "3"} {
			if _, err := b.AddArm(ctx, id, nil); err != nil {
				t.Fatalf("AddArm(%s) failed: %v", id, err)
			}
		}
		if n, _ := b.Count(ctx); n != 3 {
			t.Errorf("Expected 3 arms, got %d", n)
		}

		if err := b.RemoveArm(ctx, "2"); err != nil {
			t.Fatalf("RemoveArm failed: %v", err)
		}
		if ids := sortedIDs(t, b); !slices.Equal(ids, []string{"1", "3"}) {
			t.Errorf("Expected [1 3], got %v", ids)
		}
		if n, _ := b.Count(ctx); n != 2 {
			t.Errorf("Expected 2 arms, got %d", n)
		}

		// the record is gone as well
		if ok, _ := conn.Has(ctx, b.ArmKey("2")); ok {
			t.Error("Expected the record of arm 2 to be deleted")
		}

		// removing twice is fine
		if err := b.RemoveArm(ctx, "2"); err != nil {
			t.Errorf("Second RemoveArm failed: %v", err)
		}

		arms, err := b.Arms(ctx)
		if err != nil {
			t.Fatalf("Arms failed: %v", err)
		}
		if len(arms) != 2 {
			t.Fatalf("Expected 2 arms, got %d", len(arms))
		}
		for _, arm := range arms {
			if n, err := arm.Int(ctx, "count"); err != nil || n != 0 {
				t.Errorf("Arm %s: expected count 0, got %d (%v)", arm.ID(), n, err)
			}
		}
	})
}

func TestIncrementScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		b := newBandit(t, conn, "bandit:incr")

		arm, err := b.AddArm(ctx, "1", nil)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 3; i++ {
			if _, err := arm.Increment(ctx, "count", 1); err != nil {
				t.Fatal(err)
			}
		}

		same, err := b.Arm(ctx, "1")
		if err != nil {
			t.Fatalf("Arm failed: %v", err)
		}
		if n, _ := same.Int(ctx, "count"); n != 3 {
			t.Errorf("Expected count 3, got %d", n)
		}
	})
}

func TestAddArmIdempotentAndReAdd(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		b := newBandit(t, conn, "bandit:readd")

		arm, _ := b.AddArm(ctx, "a", Fields{"count": 4})
		_, _ = arm.Increment(ctx, "count", 1)

		again, err := b.AddArm(ctx, "a", Fields{"count": 0})
		if err != nil {
			t.Fatal(err)
		}
		if n, _ := again.Int(ctx, "count"); n != 5 {
			t.Errorf("Expected AddArm to keep count 5, got %d", n)
		}
		if n, _ := b.Count(ctx); n != 1 {
			t.Errorf("Expected 1 arm, got %d", n)
		}

		if err := b.RemoveArm(ctx, "a"); err != nil {
			t.Fatal(err)
		}
		fresh, _ := b.AddArm(ctx, "a", nil)
		if n, _ := fresh.Int(ctx, "count"); n != 0 {
			t.Errorf("Expected a re-added arm to start at the default, got %d", n)
		}
	})
}

func TestArmNotMember(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		b := newBandit(t, conn, "bandit:missing")

		_, err := b.Arm(ctx, "ghost")
		var nfe *NotFoundError
		if !errors.As(err, &nfe) || nfe.ID != "ghost" {
			t.Errorf("Expected NotFoundError for ghost, got %v", err)
		}

		if _, err := b.AddArm(ctx, "a:b", nil); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey, got %v", err)
		}
		if _, err := b.AddArm(ctx, "", nil); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey, got %v", err)
		}
	})
}

func TestGetFieldFromArms(t *testing.T) {
	forEachBackend(t, func(t *testing.T, conn store.IStore) {
		ctx := context.Background()
		b := newBandit(t, conn, "bandit:batch")

		ids := make([]string, 100)
		for i := range ids {
			ids[i] = strconv.Itoa(i)
			if _, err := b.AddArm(ctx, ids[i], Fields{"count": i * 10}); err != nil {
				t.Fatal(err)
			}
		}

		check := func(name string, query []string) {
			t.Run(name, func(t *testing.T) {
				values, err := b.GetFieldFromArms(ctx, query, "count")
				if err != nil {
					t.Fatalf("GetFieldFromArms failed: %v", err)
				}
				if len(values) != len(query) {
					t.Fatalf("Expected %d values, got %d", len(query), len(values))
				}
				for i, id := range query {
					n, _ := strconv.Atoi(id)
					if values[i] != int64(n*10) {
						t.Errorf("Position %d (arm %s): expected %d, got %v", i, id, n*10, values[i])
					}
				}
			})
		}

		check("All", ids)
		check("Slice", ids[10:20])

		var stepped []string
		for i := 0; i < len(ids); i += 2 {
			stepped = append(stepped, ids[i])
		}
		check("EveryOther", stepped)

		reversed := slices.Clone(ids)
		slices.Reverse(reversed)
		check("Reversed", reversed)
		check("Duplicates", []string{"7", "7", "3", "7"})
		check("Empty", nil)

		t.Run("IDField", func(t *testing.T) {
			values, err := b.GetFieldFromArms(ctx, []string{"3", "1"}, IDField)
			if err != nil || values[0] != "3" || values[1] != "1" {
				t.Errorf("Expected ids, got %v (%v)", values, err)
			}
		})

		t.Run("UnknownField", func(t *testing.T) {
			if _, err := b.GetFieldFromArms(ctx, ids, "reward"); !errors.Is(err, ErrUnknownField) {
				t.Errorf("Expected UnknownFieldError, got %v", err)
			}
		})

		t.Run("MissingArm", func(t *testing.T) {
			_, err := b.GetFieldFromArms(ctx, []string{"1", "missing", "2"}, "count")
			var nfe *NotFoundError
			if !errors.As(err, &nfe) || nfe.ID != "missing" {
				t.Errorf("Expected NotFoundError naming the arm, got %v", err)
			}
		})

		t.Run("RecordWithoutMembership", func(t *testing.T) {
			if _, err := NewArm(ctx, conn, countSchema, b.ArmKey("loose"), Fields{"count": 7}); err != nil {
				t.Fatalf("NewArm failed: %v", err)
			}
			if ok, err := b.Has(ctx, "loose"); err != nil || ok {
				t.Fatalf("Expected loose not to be a member, got %v (err=%v)", ok, err)
			}
			values, err := b.GetFieldFromArms(ctx, []string{"loose"}, "count")
			if err != nil || len(values) != 1 || values[0] != int64(7) {
				t.Errorf("Expected the record to be read without membership, got %v (err=%v)", values, err)
			}
		})
	})
}

func TestBanditRef(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conn, url := newStore(t)

			b, err := New(conn, "bandit:ref", countSchema, WithStoreURL(url))
			if err != nil {
				t.Fatal(err)
			}
			for i, id := range []string{"x", "y"} {
				_, _ = b.AddArm(ctx, id, Fields{"count": i + 1})
			}

			data, err := json.Marshal(b.Ref())
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			var ref BanditRef
			if err := json.Unmarshal(data, &ref); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if ref.Prefix != "bandit:ref" || ref.StoreURL != url || ref.Schema.Name != countSchema.Name() {
				t.Errorf("Unexpected ref: %+v", ref)
			}

			// in-process: attach the existing connection
			attached, err := Attach(conn, ref)
			if err != nil {
				t.Fatalf("Attach failed: %v", err)
			}
			compareCounts(t, b, attached)

			// other process: dial a new connection from the url
			if url == "" {
				return
			}
			dialed, dialedConn, err := ref.Dial(ctx)
			if err != nil {
				t.Fatalf("Dial failed: %v", err)
			}
			defer dialedConn.Close()
			compareCounts(t, b, dialed)
		})
	}
}

func compareCounts(t *testing.T, want, got *Bandit) {
	t.Helper()
	ctx := context.Background()
	ids := []string{"x", "y"}
	a, err := want.GetFieldFromArms(ctx, ids, "count")
	if err != nil {
		t.Fatal(err)
	}
	b, err := got.GetFieldFromArms(ctx, ids, "count")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a, b) {
		t.Errorf("Expected %v, got %v", a, b)
	}
}

func TestSchemaRefResolve(t *testing.T) {
	// a process that never registered the schema rebuilds it from the reference
	ref := SchemaRef{Name: "resolve-test", Fields: []FieldDef{{Name: "pulls", Kind: KindInt, Default: float64(0)}}}
	s, err := ref.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if f, ok := s.Field("pulls"); !ok || f.Default != int64(0) {
		t.Errorf("Unexpected field %+v", f)
	}

	// now registered, a name only reference resolves as well
	if _, err := (SchemaRef{Name: "resolve-test"}).Resolve(); err != nil {
		t.Errorf("Expected registered schema, got %v", err)
	}

	conflict := SchemaRef{Name: "resolve-test", Fields: []FieldDef{Float("pulls", 0)}}
	if _, err := conflict.Resolve(); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("Expected ErrUnknownSchema, got %v", err)
	}
	if _, err := (SchemaRef{Name: "resolve-missing"}).Resolve(); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("Expected ErrUnknownSchema, got %v", err)
	}
}

func TestArmRef(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr() + "/0"

	ref := ArmRef{StoreURL: url, Key: "arms:1", Schema: refOf(countSchema)}
	arm, armConn, err := ref.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer armConn.Close()

	if _, err := NewArm(context.Background(), armConn, countSchema, arm.Key(), nil); err != nil {
		t.Fatal(err)
	}
	if got := arm.Ref(url); got.Key != ref.Key || got.StoreURL != url {
		t.Errorf("Unexpected ref %+v", got)
	}

	if _, _, err := (ArmRef{Key: "arms:1", Schema: refOf(countSchema)}).Dial(context.Background()); err == nil {
		t.Error("Expected error for a reference without url")
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	ref := BanditRef{StoreURL: "redis://" + mr.Addr() + "/0", Prefix: "bandit:down", Schema: refOf(countSchema)}
	b, conn, err := ref.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	mr.Close()

	_, err = b.Count(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	var se *store.Error
	if !errors.As(err, &se) || se.Code != store.RetCUnavailable {
		t.Errorf("Expected the store error to be reachable, got %v", err)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownField) {
		t.Error("Unavailable store must not look like a missing arm or field")
	}

	if _, _, err := ref.Dial(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable from Dial, got %v", err)
	}
}

func TestClosedLevelDBStore(t *testing.T) {
	ctx := context.Background()
	ref := BanditRef{StoreURL: "leveldb://" + t.TempDir(), Prefix: "bandit:closed", Schema: refOf(countSchema)}
	b, conn, err := ref.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	arm, err := b.AddArm(ctx, "1", nil)
	if err != nil {
		t.Fatalf("AddArm failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := arm.Get(ctx, "count"); !errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrStoreUnavailable from Get, got %v", err)
	}
	if _, err := b.Has(ctx, "1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable from Has, got %v", err)
	}
	if err := b.RemoveArm(ctx, "1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected RemoveArm to report the failure, got %v", err)
	}
}
