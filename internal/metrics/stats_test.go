package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(32, 1.2, 8, 20*time.Millisecond)
	w.Record(16, 0.6, 12, 10*time.Millisecond)
	snap := w.Snapshot()
	if math.Abs(snap.SamplesPerSec-1600) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.SamplesPerSec)
	}
	if math.Abs(snap.AvgStepMS-15) > 1e-9 {
		t.Fatalf("unexpected step time %.2f", snap.AvgStepMS)
	}
	if math.Abs(snap.Loss-1.0) > 1e-9 {
		t.Fatalf("expected sample-weighted loss 1.0, got %.4f", snap.Loss)
	}
	if math.Abs(snap.Accuracy-20.0/48.0) > 1e-9 {
		t.Fatalf("unexpected accuracy %.4f", snap.Accuracy)
	}
	if w.samples != 0 || w.steps != 0 {
		t.Fatalf("window was not reset")
	}
}

func TestEmptyWindowSnapshot(t *testing.T) {
	var w Window
	if snap := w.Snapshot(); snap != (Snapshot{}) {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}
