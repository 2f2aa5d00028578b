package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadPreservesPredictions(t *testing.T) {
	ts := synthetic(t, 12, 5)
	m, err := Build(DigitCNN(), DefaultCompileOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := m.Fit(context.Background(), ts.TrainX, ts.TrainY, FitOptions{BatchSize: 4, Epochs: 1}); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "saved_model")
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, name := range []string{"model.json", "conv2d.kernel.npy", "dense_1.bias.npy"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RunID() != m.RunID() || len(loaded.History()) != 1 {
		t.Fatalf("metadata not restored: run=%s history=%d", loaded.RunID(), len(loaded.History()))
	}
	want, err := m.Predict(context.Background(), ts.TestX, 2)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	got, err := loaded.Predict(context.Background(), ts.TestX, 2)
	if err != nil {
		t.Fatalf("Predict loaded: %v", err)
	}
	if !equalInts(want, got) {
		t.Fatalf("predictions differ after reload: %v vs %v", want, got)
	}
}

func TestSaveToUnwritableTarget(t *testing.T) {
	m, err := Build(DigitCNN(), DefaultCompileOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.Save(filepath.Join(blocker, "saved_model")); err == nil {
		t.Fatal("expected error saving beneath a regular file")
	}
}
