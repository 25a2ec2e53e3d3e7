package util

import (
	"bytes"
	"reflect"
	"sort"
	"testing"

	"github.com/ValentinKolb/dBandit/lib/db"
)

func TestSnapshotRoundTrip(t *testing.T) {
	entries := []SnapshotEntry{
		{Key: "bandit:1", Kind: db.KindHash, Fields: map[string]string{"count": "3", "reward": "1.5"}},
		{Key: "bandit:2", Kind: db.KindHash, Fields: map[string]string{}},
		{Key: "bandit", Kind: db.KindSet, Members: []string{"1", "2"}},
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, entries); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	var got []SnapshotEntry
	err := ReadSnapshot(&buf, func(e SnapshotEntry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}
	for i := range entries {
		if got[i].Key != entries[i].Key || got[i].Kind != entries[i].Kind {
			t.Errorf("Entry %d: expected %s/%s, got %s/%s", i, entries[i].Key, entries[i].Kind, got[i].Key, got[i].Kind)
		}
		if entries[i].Kind == db.KindHash && !reflect.DeepEqual(got[i].Fields, entries[i].Fields) {
			t.Errorf("Entry %d: expected fields %v, got %v", i, entries[i].Fields, got[i].Fields)
		}
		if entries[i].Kind == db.KindSet {
			sort.Strings(got[i].Members)
			if !reflect.DeepEqual(got[i].Members, entries[i].Members) {
				t.Errorf("Entry %d: expected members %v, got %v", i, entries[i].Members, got[i].Members)
			}
		}
	}
}

func TestSnapshotRejectsGarbage(t *testing.T) {
	err := ReadSnapshot(bytes.NewReader([]byte("NOTASNAPSHOT")), func(SnapshotEntry) error { return nil })
	if err == nil {
		t.Errorf("Expected an error for an invalid magic number")
	}

	err = ReadSnapshot(bytes.NewReader(nil), func(SnapshotEntry) error { return nil })
	if err == nil {
		t.Errorf("Expected an error for an empty reader")
	}
}

func TestHashStringSeeded(t *testing.T) {
	if HashString("arm", 1) == HashString("arm", 2) {
		t.Errorf("Expected different hashes for different seeds")
	}
	if HashString("arm", 7) != HashString("arm", 7) {
		t.Errorf("Expected identical hashes for identical input")
	}
	for i := 0; i < 100; i++ {
		if s := Stripe(UintKey(i*7919), 8); s < 0 || s >= 8 {
			t.Fatalf("Stripe out of range: %d", s)
		}
	}
}

func TestDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if even.DistributionQuality != 1 {
		t.Errorf("Expected quality 1 for an even distribution, got %f", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{40, 0, 0, 0})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("Expected a skewed distribution to score lower, got %f", skewed.DistributionQuality)
	}

	if (NewStats(nil) != Stats{}) {
		t.Errorf("Expected zero stats for no values")
	}
}
