package metrics

import "time"

// Window accumulates per-batch training stats between snapshots.
type Window struct {
	samples int
	correct int
	lossSum float64
	compute time.Duration
	steps   int
}

// Record adds one optimizer step: its sample count, mean loss, number of
// correct predictions and wall time.
func (w *Window) Record(batchSize int, loss float64, correct int, computeTime time.Duration) {
	w.samples += batchSize
	w.correct += correct
	w.lossSum += loss * float64(batchSize)
	w.compute += computeTime
	w.steps++
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps}
	if w.compute > 0 {
		snap.SamplesPerSec = float64(w.samples) / w.compute.Seconds()
	}
	if w.steps > 0 {
		snap.AvgStepMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}
	if w.samples > 0 {
		snap.Loss = w.lossSum / float64(w.samples)
		snap.Accuracy = float64(w.correct) / float64(w.samples)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Steps         int
	SamplesPerSec float64
	AvgStepMS     float64
	Loss          float64
	Accuracy      float64
}
