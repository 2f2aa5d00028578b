package model

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrNonFinite reports a NaN or infinite training loss.
var ErrNonFinite = errors.New("non-finite loss")

// FitOptions controls a training run.
type FitOptions struct {
	BatchSize int
	Epochs    int
	// Validation data evaluated after every epoch; both nil disables it.
	ValX, ValY *tensor.Dense
	// Shuffle the training order each epoch, seeded from the compile seed.
	Shuffle    bool
	OnBatchEnd func(BatchLog)
	OnEpochEnd func(EpochLog)
}

// BatchLog describes one optimizer step.
type BatchLog struct {
	Epoch   int
	Batch   int
	Size    int
	Loss    float64
	Correct int
	Elapsed time.Duration
}

// EpochLog summarises one full pass over the training data.
type EpochLog struct {
	Epoch       int           `json:"epoch"`
	Loss        float64       `json:"loss"`
	Accuracy    float64       `json:"accuracy"`
	ValLoss     float64       `json:"val_loss,omitempty"`
	ValAccuracy float64       `json:"val_accuracy,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// History is the per-epoch record of training.
type History []EpochLog

// Fit trains the model on x (N, H, W, C) and integer labels y (N). Every
// epoch visits each sample exactly once; the last batch may be short and is
// padded inside the graph without affecting the loss. Fit returns on the
// first error, including context cancellation between batches.
func (m *Model) Fit(ctx context.Context, x, y *tensor.Dense, opts FitOptions) (History, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.Epochs <= 0 {
		return nil, errors.Errorf("epochs must be > 0 (got %d)", opts.Epochs)
	}
	xs, labels, err := m.inputs(x, y)
	if err != nil {
		return nil, errors.Wrap(err, "training data")
	}
	var valX []float32
	var valLabels []int
	if opts.ValX != nil || opts.ValY != nil {
		if valX, valLabels, err = m.inputs(opts.ValX, opts.ValY); err != nil {
			return nil, errors.Wrap(err, "validation data")
		}
	}

	batch := min(opts.BatchSize, len(labels))
	net, err := newNetwork(m, batch, true)
	if err != nil {
		return nil, errors.Wrap(err, "build training graph")
	}
	var evalNet *network
	if valX != nil {
		if evalNet, err = newNetwork(m, min(opts.BatchSize, len(valLabels)), false); err != nil {
			return nil, errors.Wrap(err, "build validation graph")
		}
	}
	solver := G.NewAdamSolver(G.WithLearnRate(m.opts.LearningRate))
	rng := rand.New(rand.NewSource(m.opts.Seed))
	in := m.arch.Input

	order := make([]int, len(labels))
	for i := range order {
		order[i] = i
	}

	var history History
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		start := time.Now()
		if opts.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		var lossSum float64
		var correct int
		for b, lo := 0, 0; lo < len(order); b, lo = b+1, lo+batch {
			if err := ctx.Err(); err != nil {
				return history, errors.Wrapf(err, "epoch %d", epoch)
			}
			stepStart := time.Now()
			idx := order[lo:min(lo+batch, len(order))]
			net.load(xs, labels, idx, in.Height, in.Width, in.Channels)
			loss, hits, err := net.run(labels, idx)
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d batch %d", epoch, b)
			}
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return history, errors.Wrapf(ErrNonFinite, "epoch %d batch %d", epoch, b)
			}
			if err := solver.Step(G.NodesToValueGrads(net.learnables)); err != nil {
				return history, errors.Wrapf(err, "optimizer step epoch %d batch %d", epoch, b)
			}
			lossSum += loss * float64(len(idx))
			correct += hits
			if opts.OnBatchEnd != nil {
				opts.OnBatchEnd(BatchLog{Epoch: epoch, Batch: b, Size: len(idx), Loss: loss, Correct: hits, Elapsed: time.Since(stepStart)})
			}
		}

		entry := EpochLog{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(order)),
			Accuracy: float64(correct) / float64(len(order)),
		}
		if valX != nil {
			if entry.ValLoss, entry.ValAccuracy, err = m.evaluate(ctx, evalNet, valX, valLabels); err != nil {
				return history, errors.Wrapf(err, "validation epoch %d", epoch)
			}
		}
		entry.Duration = time.Since(start)
		history = append(history, entry)
		m.history = append(m.history, entry)
		if opts.OnEpochEnd != nil {
			opts.OnEpochEnd(entry)
		}
	}
	return history, nil
}

// Evaluate returns the mean loss and accuracy of the model on x and y.
func (m *Model) Evaluate(ctx context.Context, x, y *tensor.Dense, batchSize int) (loss, accuracy float64, err error) {
	xs, labels, err := m.inputs(x, y)
	if err != nil {
		return 0, 0, err
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	net, err := newNetwork(m, min(batchSize, len(labels)), false)
	if err != nil {
		return 0, 0, errors.Wrap(err, "build inference graph")
	}
	return m.evaluate(ctx, net, xs, labels)
}

func (m *Model) evaluate(ctx context.Context, net *network, xs []float32, labels []int) (float64, float64, error) {
	in := m.arch.Input
	var lossSum float64
	var correct int
	idx := make([]int, 0, net.batch)
	for lo := 0; lo < len(labels); lo += net.batch {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		idx = idx[:0]
		for i := lo; i < min(lo+net.batch, len(labels)); i++ {
			idx = append(idx, i)
		}
		net.load(xs, labels, idx, in.Height, in.Width, in.Channels)
		loss, hits, err := net.run(labels, idx)
		if err != nil {
			return 0, 0, err
		}
		lossSum += loss * float64(len(idx))
		correct += hits
	}
	n := float64(len(labels))
	return lossSum / n, float64(correct) / n, nil
}

// Predict returns the most probable class of every image in x (N, H, W, C).
func (m *Model) Predict(ctx context.Context, x *tensor.Dense, batchSize int) ([]int, error) {
	xs, count, err := m.images(x)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	net, err := newNetwork(m, min(batchSize, count), false)
	if err != nil {
		return nil, errors.Wrap(err, "build inference graph")
	}
	in := m.arch.Input
	labels := make([]int, count)
	out := make([]int, 0, count)
	idx := make([]int, 0, net.batch)
	for lo := 0; lo < count; lo += net.batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx = idx[:0]
		for i := lo; i < min(lo+net.batch, count); i++ {
			idx = append(idx, i)
		}
		net.load(xs, labels, idx, in.Height, in.Width, in.Channels)
		if _, _, err := net.run(labels, idx); err != nil {
			return nil, err
		}
		preds, err := net.predictions(len(idx))
		if err != nil {
			return nil, err
		}
		out = append(out, preds...)
	}
	return out, nil
}

func (m *Model) images(x *tensor.Dense) ([]float32, int, error) {
	if x == nil {
		return nil, 0, errors.New("images tensor is nil")
	}
	in := m.arch.Input
	s := x.Shape()
	if len(s) != 4 || s[1] != in.Height || s[2] != in.Width || s[3] != in.Channels {
		return nil, 0, errors.Errorf("images shape %v does not match input (N, %d, %d, %d)", s, in.Height, in.Width, in.Channels)
	}
	if s[0] == 0 {
		return nil, 0, errors.New("no images")
	}
	data, ok := x.Data().([]float32)
	if !ok {
		return nil, 0, errors.Errorf("images must be float32, got %v", x.Dtype())
	}
	return data, s[0], nil
}

func (m *Model) inputs(x, y *tensor.Dense) ([]float32, []int, error) {
	xs, count, err := m.images(x)
	if err != nil {
		return nil, nil, err
	}
	if y == nil {
		return nil, nil, errors.New("labels tensor is nil")
	}
	if y.Dims() != 1 || y.Shape()[0] != count {
		return nil, nil, errors.Errorf("labels shape %v does not match %d images", y.Shape(), count)
	}
	raw, ok := y.Data().([]float32)
	if !ok {
		return nil, nil, errors.Errorf("labels must be float32, got %v", y.Dtype())
	}
	classes := m.arch.Classes()
	labels := make([]int, count)
	for i, v := range raw {
		l := int(v)
		if float32(l) != v || l < 0 || l >= classes {
			return nil, nil, errors.Errorf("label %d is %v, want an integer in [0, %d)", i, v, classes)
		}
		labels[i] = l
	}
	return xs, labels, nil
}
