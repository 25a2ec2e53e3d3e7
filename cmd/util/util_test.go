package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/spf13/viper"
)

func TestParseShards(t *testing.T) {
	shards, err := ParseShards("100=lstore, 200=pstore,300=dstore")
	if err != nil {
		t.Fatalf("ParseShards failed: %v", err)
	}
	want := []common.ServerShard{
		{ShardID: 100, Type: common.ShardTypeLocalIStore},
		{ShardID: 200, Type: common.ShardTypePersistentIStore},
		{ShardID: 300, Type: common.ShardTypeRemoteIStore},
	}
	if len(shards) != len(want) {
		t.Fatalf("Expected %d shards, got %d", len(want), len(shards))
	}
	for i := range want {
		if shards[i] != want[i] {
			t.Errorf("Shard %d: expected %+v, got %+v", i, want[i], shards[i])
		}
	}

	for _, invalid := range []string{"", "100", "x=lstore", "100=lockmgr", "1=lstore,1=pstore"} {
		if _, err := ParseShards(invalid); err == nil {
			t.Errorf("Expected error for %q", invalid)
		}
	}
}

func TestGetStoreURL(t *testing.T) {
	t.Cleanup(viper.Reset)

	tests := []struct {
		name      string
		settings  map[string]any
		want      string
		wantError bool
	}{
		{
			name:     "ExplicitStore",
			settings: map[string]any{"store": "redis://localhost:6379/0"},
			want:     "redis://localhost:6379/0",
		},
		{
			name: "TCP",
			settings: map[string]any{
				"transport": "tcp", "serializer": "binary", "shard": 100, "timeout": 5,
				"transport-endpoints": "a:1,b:2", "transport-retries": 3, "transport-conn-per-endpoint": 2,
			},
			want: "dbandit+tcp://a:1/100?conns=2&endpoint=b%3A2&retries=3&serializer=binary&timeout=5",
		},
		{
			name: "Unix",
			settings: map[string]any{
				"transport": "unix", "serializer": "json", "shard": 7, "timeout": 1,
				"transport-endpoints": "/tmp/d.sock", "transport-retries": 1, "transport-conn-per-endpoint": 1,
			},
			want: "dbandit+unix:///tmp/d.sock?conns=1&retries=1&serializer=json&shard=7&timeout=1",
		},
		{
			name:      "BadTransport",
			settings:  map[string]any{"transport": "carrier-pigeon", "transport-endpoints": "x"},
			wantError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			for k, v := range tt.settings {
				viper.Set(k, v)
			}
			got, err := GetStoreURL()
			if tt.wantError {
				if err == nil {
					t.Errorf("Expected error, got %s", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestWrapString(t *testing.T) {
	got := WrapString("one two three four five six seven eight nine ten eleven twelve thirteen")
	for _, line := range strings.Split(got, "\n") {
		if len(line) > Wrap {
			t.Errorf("Line exceeds %d characters: %q", Wrap, line)
		}
	}
}

