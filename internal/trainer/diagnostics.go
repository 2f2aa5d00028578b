package trainer

import (
	"time"

	"k8s.io/klog/v2"

	"digitforge/internal/dataset"
	"digitforge/internal/metrics"
	"digitforge/internal/model"
)

// Diagnostics receives human-readable progress of a run. It observes only;
// nothing it does affects control flow.
type Diagnostics interface {
	DatasetLoaded(split dataset.Split)
	ModelBuilt(m *model.Model)
	Batch(epoch, batch int, snap metrics.Snapshot)
	Epoch(e model.EpochLog)
	Trained(h model.History)
	Saved(target string)
	Failed(stage string, err error)
}

// KlogDiagnostics reports through klog. Batch progress is logged at V(1).
type KlogDiagnostics struct{}

func (KlogDiagnostics) DatasetLoaded(split dataset.Split) {
	klog.Infof("Training images: %d", len(split.Train.Images))
	klog.Infof("Training labels: %d", len(split.Train.Labels))
	klog.Infof("Testing images: %d", len(split.Test.Images))
	klog.Infof("Testing labels: %d", len(split.Test.Labels))
}

func (KlogDiagnostics) ModelBuilt(m *model.Model) {
	klog.Infof("model run=%s compiled optimizer=%s loss=%s\n%s",
		m.RunID(), m.CompileOptions().Optimizer, m.CompileOptions().Loss, m.Architecture().Summary())
}

func (KlogDiagnostics) Batch(epoch, batch int, snap metrics.Snapshot) {
	klog.V(1).Infof("epoch=%d batch=%d samples_per_sec=%.1f step_ms=%.2f loss=%.4f acc=%.4f",
		epoch, batch, snap.SamplesPerSec, snap.AvgStepMS, snap.Loss, snap.Accuracy)
}

func (KlogDiagnostics) Epoch(e model.EpochLog) {
	klog.Infof("epoch=%d loss=%.4f acc=%.4f val_loss=%.4f val_acc=%.4f took=%s",
		e.Epoch, e.Loss, e.Accuracy, e.ValLoss, e.ValAccuracy, e.Duration.Round(time.Millisecond))
}

func (KlogDiagnostics) Trained(h model.History) {
	klog.Infof("Model trained successfully after %d epochs.", len(h))
}

func (KlogDiagnostics) Saved(target string) {
	klog.Infof("Model saved successfully to %s.", target)
}

func (KlogDiagnostics) Failed(stage string, err error) {
	klog.Errorf("Failed to %s: %+v", stage, err)
}
