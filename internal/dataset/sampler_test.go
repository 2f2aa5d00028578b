package dataset

import (
	"context"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuildRoundRobinOrderDeterministic(t *testing.T) {
	roots := map[string][]string{
		"/rootA": {"/rootA/shard-000000.tar", "/rootA/shard-000002.tar"},
		"/rootB": {"/rootB/shard-000001.tar"},
	}
	order1 := buildRoundRobinOrder(roots, rand.New(rand.NewSource(7)))
	order2 := buildRoundRobinOrder(roots, rand.New(rand.NewSource(7)))

	if !reflect.DeepEqual(order1, order2) {
		t.Fatalf("round robin order not deterministic: %v vs %v", order1, order2)
	}
	if len(order1) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(order1))
	}
	if order1[0].root == order1[1].root {
		t.Fatalf("expected alternating roots, got %v", order1)
	}
}

func TestReadShardsReadsEverySampleOnceInStableOrder(t *testing.T) {
	temp := t.TempDir()
	rootA := filepath.Join(temp, "rootA")
	rootB := filepath.Join(temp, "rootB")
	mustShard(t, filepath.Join(rootA, "shard-000000.tar"), []shardEntry{{"a0", 0}, {"a1", 1}})
	mustShard(t, filepath.Join(rootA, "shard-000002.tar"), []shardEntry{{"a2", 2}})
	mustShard(t, filepath.Join(rootB, "shard-000001.tar"), []shardEntry{{"b0", 3}, {"b1", 4}})

	roots, err := DiscoverByRoot([]string{rootA, rootB})
	if err != nil {
		t.Fatalf("DiscoverByRoot: %v", err)
	}
	opts := ShardOptions{Roots: roots, Seed: 123, NumWorkers: 3}

	run1, err := ReadShards(context.Background(), opts)
	if err != nil {
		t.Fatalf("ReadShards: %v", err)
	}
	run2, err := ReadShards(context.Background(), opts)
	if err != nil {
		t.Fatalf("ReadShards: %v", err)
	}
	if run1.Len() != 5 {
		t.Fatalf("expected 5 samples, got %d", run1.Len())
	}
	if !reflect.DeepEqual(run1.Labels, run2.Labels) {
		t.Fatalf("sample order not deterministic: %v vs %v", run1.Labels, run2.Labels)
	}
	seen := make(map[int]bool)
	for _, l := range run1.Labels {
		if seen[l] {
			t.Fatalf("label %d read twice", l)
		}
		seen[l] = true
	}
}

func TestReadShardsPropagatesShardError(t *testing.T) {
	temp := t.TempDir()
	root := filepath.Join(temp, "root")
	mustShard(t, filepath.Join(root, "shard-000000.tar"), []shardEntry{{"ok", 1}})
	mustShard(t, filepath.Join(root, "shard-000001.tar"), []shardEntry{{"bad", 42}})

	roots, err := DiscoverByRoot([]string{root})
	if err != nil {
		t.Fatalf("DiscoverByRoot: %v", err)
	}
	if _, err := ReadShards(context.Background(), ShardOptions{Roots: roots, NumWorkers: 2}); err == nil {
		t.Fatal("expected error from invalid shard")
	}
}
