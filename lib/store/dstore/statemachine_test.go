package dstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/db"
	"github.com/ValentinKolb/dBandit/lib/db/engines/maple"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newTestMachine() sm.IConcurrentStateMachine {
	return CreateStateMachineFactory(func() db.KVDB {
		return maple.NewMapleDB(nil)
	})(1, 1)
}

func update(t *testing.T, fsm sm.IConcurrentStateMachine, cmds ...internal.Command) []sm.Result {
	t.Helper()
	entries := make([]sm.Entry, len(cmds))
	for i := range cmds {
		entries[i] = sm.Entry{Index: uint64(i + 1), Cmd: cmds[i].Serialize()}
	}
	out, err := fsm.Update(entries)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	results := make([]sm.Result, len(out))
	for i := range out {
		results[i] = out[i].Result
	}
	return results
}

func TestStateMachineCommands(t *testing.T) {
	fsm := newTestMachine()
	defer fsm.Close()

	incr := internal.Command{Type: internal.CommandTHIncrBy, Key: "b:1", Field: "count"}
	incr.SetIntDelta(5)

	results := update(t, fsm,
		internal.Command{Type: internal.CommandTHSetIfUnset, Key: "b:1", Fields: map[string]string{"count": "1"}},
		incr,
		internal.Command{Type: internal.CommandTHSet, Key: "missing", Field: "f", Value: "v"},
		internal.Command{Type: internal.CommandTSAdd, Key: "b", Field: "1"},
	)

	if results[0].Value != uint64(store.RetCSuccess) {
		t.Errorf("Expected HSetIfUnset to succeed, got code %d (%s)", results[0].Value, results[0].Data)
	}
	if results[1].Value != uint64(store.RetCSuccess) || int64(binary.BigEndian.Uint64(results[1].Data)) != 6 {
		t.Errorf("Expected HIncrBy to return 6, got code %d data %v", results[1].Value, results[1].Data)
	}
	if results[2].Value != uint64(store.RetCNotFound) {
		t.Errorf("Expected HSet on missing key to fail with RetCNotFound, got %d", results[2].Value)
	}
	if results[3].Value != uint64(store.RetCSuccess) {
		t.Errorf("Expected SAdd to succeed, got %d", results[3].Value)
	}

	// empty and corrupt commands must not panic
	out, err := fsm.Update([]sm.Entry{{Index: 10}, {Index: 11, Cmd: []byte{1, 2}}})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if out[0].Result.Value != uint64(store.RetCInvalidOperation) || out[1].Result.Value != uint64(store.RetCInternalError) {
		t.Errorf("Unexpected results for broken commands: %v, %v", out[0].Result, out[1].Result)
	}
}

func TestStateMachineQueries(t *testing.T) {
	fsm := newTestMachine()
	defer fsm.Close()

	update(t, fsm,
		internal.Command{Type: internal.CommandTHSetIfUnset, Key: "b:1", Fields: map[string]string{"count": "1"}},
		internal.Command{Type: internal.CommandTHSetIfUnset, Key: "b:2", Fields: map[string]string{"count": "2"}},
		internal.Command{Type: internal.CommandTSAdd, Key: "b", Field: "1"},
		internal.Command{Type: internal.CommandTSAdd, Key: "b", Field: "2"},
	)

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTHGetMulti, Refs: []store.FieldRef{
		{Key: "b:2", Field: "count"}, {Key: "b:1", Field: "count"}, {Key: "b:3", Field: "count"},
	}})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	values := res.([]store.FieldValue)
	if len(values) != 3 || values[0].Value != "2" || values[1].Value != "1" || values[2].Found {
		t.Errorf("Unexpected batch result: %v", values)
	}

	card, err := fsm.Lookup(internal.Query{Type: internal.QueryTSCard, Key: "b"})
	if err != nil || card.(int64) != 2 {
		t.Errorf("Expected cardinality 2, got %v (err=%v)", card, err)
	}

	_, err = fsm.Lookup(internal.Query{Type: internal.QueryTSCard, Key: "b:1"})
	if !errors.Is(err, store.ErrWrongType) {
		t.Errorf("Expected wrong type error, got %v", err)
	}

	if _, err := fsm.Lookup("garbage"); err == nil {
		t.Errorf("Expected error for invalid query type")
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	fsm := newTestMachine()
	defer fsm.Close()

	update(t, fsm,
		internal.Command{Type: internal.CommandTHSetIfUnset, Key: "b:1", Fields: map[string]string{"count": "7"}},
		internal.Command{Type: internal.CommandTSAdd, Key: "b", Field: "1"},
	)

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	restored := newTestMachine()
	defer restored.Close()
	if err := restored.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	res, err := restored.Lookup(internal.Query{Type: internal.QueryTHGet, Key: "b:1", Field: "count"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if r := res.(internal.QueryResult); !r.Ok || r.Value != "7" {
		t.Errorf("Expected count 7 after recovery, got %+v", r)
	}
}
