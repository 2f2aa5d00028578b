// Package tensorize converts sample batches into the dense tensors consumed
// by the model: a 4-D NHWC image batch and a 1-D label vector.
package tensorize

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"

	"digitforge/internal/dataset"
)

// ErrShape reports a batch whose geometry differs from the expected input.
var ErrShape = errors.New("tensorize: input shape mismatch")

// Shape is the per-image geometry the adapter expects.
type Shape struct {
	Rows, Cols, Channels int
}

// DigitShape is the 28x28x1 geometry of the digit datasets.
var DigitShape = Shape{Rows: dataset.Rows, Cols: dataset.Cols, Channels: dataset.Channels}

// Tensors holds both splits in tensor form.
type Tensors struct {
	TrainX, TrainY *tensor.Dense
	TestX, TestY   *tensor.Dense
}

// Images returns a float32 tensor of shape (N, rows, cols, channels) holding
// the raw pixel values of b.
func Images(b dataset.SampleBatch, want Shape) (*tensor.Dense, error) {
	if b.Rows != want.Rows || b.Cols != want.Cols || b.Channels != want.Channels {
		return nil, fmt.Errorf("%w: batch %dx%dx%d, want %dx%dx%d", ErrShape,
			b.Rows, b.Cols, b.Channels, want.Rows, want.Cols, want.Channels)
	}
	size := want.Rows * want.Cols * want.Channels
	backing := make([]float32, len(b.Images)*size)
	for i, img := range b.Images {
		if len(img) != size {
			return nil, fmt.Errorf("%w: image %d has %d values, want %d", ErrShape, i, len(img), size)
		}
		row := backing[i*size : (i+1)*size]
		for j, p := range img {
			row[j] = float32(p)
		}
	}
	return tensor.New(
		tensor.WithShape(len(b.Images), want.Rows, want.Cols, want.Channels),
		tensor.WithBacking(backing),
	), nil
}

// Labels returns a float32 tensor of shape (N) holding the class indices of b.
func Labels(b dataset.SampleBatch) (*tensor.Dense, error) {
	if len(b.Labels) != len(b.Images) {
		return nil, fmt.Errorf("%w: %d labels for %d images", ErrShape, len(b.Labels), len(b.Images))
	}
	backing := make([]float32, len(b.Labels))
	for i, l := range b.Labels {
		backing[i] = float32(l)
	}
	return tensor.New(tensor.WithShape(len(backing)), tensor.WithBacking(backing)), nil
}

// Split converts both batches of s.
func Split(s dataset.Split, want Shape) (Tensors, error) {
	var out Tensors
	var err error
	if out.TrainX, err = Images(s.Train, want); err != nil {
		return Tensors{}, fmt.Errorf("train images: %w", err)
	}
	if out.TrainY, err = Labels(s.Train); err != nil {
		return Tensors{}, fmt.Errorf("train labels: %w", err)
	}
	if out.TestX, err = Images(s.Test, want); err != nil {
		return Tensors{}, fmt.Errorf("test images: %w", err)
	}
	if out.TestY, err = Labels(s.Test); err != nil {
		return Tensors{}, fmt.Errorf("test labels: %w", err)
	}
	return out, nil
}
