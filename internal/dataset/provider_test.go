package dataset

import (
	"context"
	"errors"
	"io/fs"
	"math/rand"
	"testing"
)

func TestIDXProviderReadsExportedSplit(t *testing.T) {
	dir := t.TempDir()
	want := Split{
		Train: Synthesize(30, rand.New(rand.NewSource(1))),
		Test:  Synthesize(10, rand.New(rand.NewSource(2))),
	}
	if err := Export(dir, want); err != nil {
		t.Fatalf("Export: %v", err)
	}

	got, err := IDXProvider{Dir: dir}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Train.Len() != 30 || got.Test.Len() != 10 {
		t.Fatalf("unexpected sizes %d/%d", got.Train.Len(), got.Test.Len())
	}
	if got.Train.Rows != Rows || got.Train.Cols != Cols || got.Train.Channels != Channels {
		t.Fatalf("unexpected geometry %dx%dx%d", got.Train.Rows, got.Train.Cols, got.Train.Channels)
	}
	for i := range want.Test.Labels {
		if got.Test.Labels[i] != want.Test.Labels[i] {
			t.Fatalf("label %d: got %d want %d", i, got.Test.Labels[i], want.Test.Labels[i])
		}
	}
}

func TestIDXProviderMissingFiles(t *testing.T) {
	_, err := IDXProvider{Dir: t.TempDir()}.Load(context.Background())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestShardProviderLoadsBothSplits(t *testing.T) {
	dir := t.TempDir()
	mustShard(t, dir+"/train/shard-000000.tar", []shardEntry{{"t0", 1}, {"t1", 2}})
	mustShard(t, dir+"/test/shard-000000.tar", []shardEntry{{"v0", 5}})

	split, err := ShardProvider{
		TrainRoots: []string{dir + "/train"},
		TestRoots:  []string{dir + "/test"},
		NumWorkers: 2,
	}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := split.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if split.Train.Len() != 2 || split.Test.Len() != 1 {
		t.Fatalf("unexpected sizes %d/%d", split.Train.Len(), split.Test.Len())
	}
}
