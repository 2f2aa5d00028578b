package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"digitforge/internal/config"
	"digitforge/internal/dataset"
	"digitforge/internal/trainer"
)

func TestRunValidatesAfterOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.yaml")
	body := "source: shards\nsynthetic_train: 20\nsynthetic_test: 10\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(dir, "mnist")
	code := run(cfgPath, config.Overrides{Source: config.SourceSynthetic}, out)
	if code != trainer.ExitOK {
		t.Fatalf("exit code %d", code)
	}
	split, err := dataset.IDXProvider{Dir: out}.Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if split.Train.Len() != 20 || split.Test.Len() != 10 {
		t.Fatalf("unexpected sizes %d/%d", split.Train.Len(), split.Test.Len())
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(cfgPath, []byte("source: shards\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code := run(cfgPath, config.Overrides{}, ""); code != trainer.ExitLoadFailed {
		t.Fatalf("exit code %d want %d", code, trainer.ExitLoadFailed)
	}
}
