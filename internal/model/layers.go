package model

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// LayerKind identifies the operation a layer performs.
type LayerKind string

const (
	Conv2D       LayerKind = "conv2d"
	MaxPooling2D LayerKind = "max_pooling2d"
	Flatten      LayerKind = "flatten"
	Dense        LayerKind = "dense"
)

// Activations understood by the graph builder.
const (
	ActivationNone    = ""
	ActivationReLU    = "relu"
	ActivationSoftmax = "softmax"
)

// LayerSpec declares one layer. OutputShape and Params are filled in by
// Architecture.Resolve and exclude the batch dimension.
type LayerSpec struct {
	Kind       LayerKind `json:"kind"`
	Name       string    `json:"name"`
	Filters    int       `json:"filters,omitempty"`
	Units      int       `json:"units,omitempty"`
	Kernel     [2]int    `json:"kernel,omitempty"`
	Pool       [2]int    `json:"pool,omitempty"`
	Activation string    `json:"activation,omitempty"`

	OutputShape []int `json:"output_shape,omitempty"`
	Params      int   `json:"params,omitempty"`
}

// InputShape is the per-sample geometry (height, width, channels).
type InputShape struct {
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// Architecture is an ordered, sequential stack of layers.
type Architecture struct {
	Input  InputShape  `json:"input"`
	Layers []LayerSpec `json:"layers"`
}

// DigitCNN returns the fixed digit classifier: a 3x3 convolution with 32
// filters, 2x2 max pooling, flatten, a 128 unit hidden layer and a 10-way
// softmax.
func DigitCNN() Architecture {
	return Architecture{
		Input: InputShape{Height: 28, Width: 28, Channels: 1},
		Layers: []LayerSpec{
			{Kind: Conv2D, Name: "conv2d", Filters: 32, Kernel: [2]int{3, 3}, Activation: ActivationReLU},
			{Kind: MaxPooling2D, Name: "max_pooling2d", Pool: [2]int{2, 2}},
			{Kind: Flatten, Name: "flatten"},
			{Kind: Dense, Name: "dense", Units: 128, Activation: ActivationReLU},
			{Kind: Dense, Name: "dense_1", Units: 10, Activation: ActivationSoftmax},
		},
	}
}

// Resolve returns a copy of a with output shapes and parameter counts
// computed, or an error if the layers do not chain.
func (a Architecture) Resolve() (Architecture, error) {
	in := a.Input
	if in.Height <= 0 || in.Width <= 0 || in.Channels <= 0 {
		return Architecture{}, errors.Errorf("invalid input shape %dx%dx%d", in.Height, in.Width, in.Channels)
	}
	if len(a.Layers) == 0 {
		return Architecture{}, errors.New("architecture has no layers")
	}
	out := Architecture{Input: in, Layers: make([]LayerSpec, len(a.Layers))}
	shape := []int{in.Height, in.Width, in.Channels}
	for i, l := range a.Layers {
		switch l.Activation {
		case ActivationNone, ActivationReLU, ActivationSoftmax:
		default:
			return Architecture{}, errors.Errorf("layer %s: unknown activation %q", l.Name, l.Activation)
		}
		switch l.Kind {
		case Conv2D:
			if len(shape) != 3 {
				return Architecture{}, errors.Errorf("layer %s: conv2d needs a 3-D input, got %v", l.Name, shape)
			}
			kh, kw := l.Kernel[0], l.Kernel[1]
			if l.Filters <= 0 || kh <= 0 || kw <= 0 || kh > shape[0] || kw > shape[1] {
				return Architecture{}, errors.Errorf("layer %s: invalid conv2d filters=%d kernel=%v for input %v", l.Name, l.Filters, l.Kernel, shape)
			}
			l.Params = l.Filters*shape[2]*kh*kw + l.Filters
			shape = []int{shape[0] - kh + 1, shape[1] - kw + 1, l.Filters}
		case MaxPooling2D:
			if len(shape) != 3 {
				return Architecture{}, errors.Errorf("layer %s: max_pooling2d needs a 3-D input, got %v", l.Name, shape)
			}
			ph, pw := l.Pool[0], l.Pool[1]
			if ph <= 0 || pw <= 0 || ph > shape[0] || pw > shape[1] {
				return Architecture{}, errors.Errorf("layer %s: invalid pool %v for input %v", l.Name, l.Pool, shape)
			}
			shape = []int{shape[0] / ph, shape[1] / pw, shape[2]}
		case Flatten:
			shape = []int{product(shape)}
		case Dense:
			if len(shape) != 1 {
				return Architecture{}, errors.Errorf("layer %s: dense needs a flat input, got %v", l.Name, shape)
			}
			if l.Units <= 0 {
				return Architecture{}, errors.Errorf("layer %s: units must be > 0", l.Name)
			}
			l.Params = shape[0]*l.Units + l.Units
			shape = []int{l.Units}
		default:
			return Architecture{}, errors.Errorf("layer %s: unknown kind %q", l.Name, l.Kind)
		}
		l.OutputShape = append([]int(nil), shape...)
		out.Layers[i] = l
	}
	last := out.Layers[len(out.Layers)-1]
	if last.Kind != Dense || last.Activation != ActivationSoftmax {
		return Architecture{}, errors.Errorf("last layer %s must be a softmax dense layer", last.Name)
	}
	return out, nil
}

// Classes is the width of the output layer.
func (a Architecture) Classes() int {
	if len(a.Layers) == 0 {
		return 0
	}
	return a.Layers[len(a.Layers)-1].Units
}

// Summary renders a layer table in the style of a Keras model summary.
func (a Architecture) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-16s %-14s %10s\n", "Layer", "Type", "Output shape", "Params")
	total := 0
	for _, l := range a.Layers {
		fmt.Fprintf(&b, "%-16s %-16s %-14s %10d\n", l.Name, l.Kind, fmt.Sprint(l.OutputShape), l.Params)
		total += l.Params
	}
	fmt.Fprintf(&b, "Total params: %d", total)
	return b.String()
}

func product(shape []int) int {
	p := 1
	for _, d := range shape {
		p *= d
	}
	return p
}
