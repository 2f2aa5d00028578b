// Package model defines the digit classifier and trains it on a gorgonia
// expression graph. A Model owns its weights as dense tensors; graphs are
// rebuilt around those tensors for training and inference.
package model

import (
	"math"
	"math/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Compile settings supported by the graph builder.
const (
	OptimizerAdam                 = "adam"
	LossSparseCategoricalCrossent = "sparse_categorical_crossentropy"
	MetricAccuracy                = "accuracy"
)

// CompileOptions selects the optimizer, loss and metrics of a model.
type CompileOptions struct {
	Optimizer    string   `json:"optimizer"`
	Loss         string   `json:"loss"`
	Metrics      []string `json:"metrics"`
	LearningRate float64  `json:"learning_rate"`
	Seed         int64    `json:"seed"`
}

// DefaultCompileOptions mirrors the reference run: Adam with a 0.001 step,
// sparse categorical cross-entropy and accuracy.
func DefaultCompileOptions() CompileOptions {
	return CompileOptions{
		Optimizer:    OptimizerAdam,
		Loss:         LossSparseCategoricalCrossent,
		Metrics:      []string{MetricAccuracy},
		LearningRate: 0.001,
		Seed:         42,
	}
}

func (o CompileOptions) validate() error {
	if o.Optimizer != OptimizerAdam {
		return errors.Errorf("unsupported optimizer %q", o.Optimizer)
	}
	if o.Loss != LossSparseCategoricalCrossent {
		return errors.Errorf("unsupported loss %q", o.Loss)
	}
	for _, m := range o.Metrics {
		if m != MetricAccuracy {
			return errors.Errorf("unsupported metric %q", m)
		}
	}
	if o.LearningRate <= 0 {
		return errors.Errorf("learning rate must be > 0 (got %g)", o.LearningRate)
	}
	return nil
}

// Param is a named trainable tensor. Kernels of convolutions are stored as
// (filters, channels, kh, kw); dense kernels as (in, units); biases are
// broadcastable rows.
type Param struct {
	Name  string
	Value *tensor.Dense
}

// Model is a compiled classifier with its weights.
type Model struct {
	arch    Architecture
	opts    CompileOptions
	params  []Param
	runID   string
	history History
}

// Build resolves arch, validates opts and initialises the weights from
// opts.Seed: Glorot-uniform kernels and zero biases.
func Build(arch Architecture, opts CompileOptions) (*Model, error) {
	resolved, err := arch.Resolve()
	if err != nil {
		return nil, errors.Wrap(err, "build model")
	}
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "compile model")
	}
	m := &Model{
		arch:  resolved,
		opts:  opts,
		runID: uuid.NewString(),
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	channels := resolved.Input.Channels
	var flat int
	for _, l := range resolved.Layers {
		switch l.Kind {
		case Conv2D:
			fanIn := channels * l.Kernel[0] * l.Kernel[1]
			fanOut := l.Filters * l.Kernel[0] * l.Kernel[1]
			m.params = append(m.params,
				Param{Name: l.Name + "/kernel", Value: glorotUniform(rng, fanIn, fanOut, l.Filters, channels, l.Kernel[0], l.Kernel[1])},
				Param{Name: l.Name + "/bias", Value: zeros(1, l.Filters, 1, 1)},
			)
			channels = l.Filters
		case Dense:
			m.params = append(m.params,
				Param{Name: l.Name + "/kernel", Value: glorotUniform(rng, flat, l.Units, flat, l.Units)},
				Param{Name: l.Name + "/bias", Value: zeros(1, l.Units)},
			)
		}
		flat = product(l.OutputShape)
	}
	return m, nil
}

// Layers returns the resolved layer specs in order.
func (m *Model) Layers() []LayerSpec {
	out := make([]LayerSpec, len(m.arch.Layers))
	copy(out, m.arch.Layers)
	return out
}

// Architecture returns the resolved architecture.
func (m *Model) Architecture() Architecture { return m.arch }

// CompileOptions returns the options the model was built with.
func (m *Model) CompileOptions() CompileOptions { return m.opts }

// Params returns the trainable tensors in graph order.
func (m *Model) Params() []Param { return m.params }

// RunID identifies the process run that built the model.
func (m *Model) RunID() string { return m.runID }

// History returns the epoch logs of every Fit call so far.
func (m *Model) History() History { return m.history }

func glorotUniform(rng *rand.Rand, fanIn, fanOut int, shape ...int) *tensor.Dense {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	backing := make([]float32, product(shape))
	for i := range backing {
		backing[i] = float32((rng.Float64()*2 - 1) * limit)
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}

func zeros(shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(make([]float32, product(shape))))
}
