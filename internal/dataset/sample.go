package dataset

import (
	"errors"
	"fmt"
)

// Image geometry of the digit datasets.
const (
	Rows       = 28
	Cols       = 28
	Channels   = 1
	NumClasses = 10
)

var (
	// ErrEmpty reports a required collection with no entries.
	ErrEmpty = errors.New("dataset: empty collection")
	// ErrCountMismatch reports images and labels of different lengths.
	ErrCountMismatch = errors.New("dataset: image and label counts differ")
	// ErrShape reports an image whose size disagrees with the batch geometry.
	ErrShape = errors.New("dataset: image shape mismatch")
	// ErrLabel reports a class index outside [0, NumClasses).
	ErrLabel = errors.New("dataset: label out of range")
)

// SampleBatch pairs row-major grayscale images with class labels.
type SampleBatch struct {
	Images   [][]byte
	Labels   []int
	Rows     int
	Cols     int
	Channels int
}

// Len returns the number of images.
func (b SampleBatch) Len() int { return len(b.Images) }

// ImageSize is the pixel count of a single image.
func (b SampleBatch) ImageSize() int { return b.Rows * b.Cols * b.Channels }

// Validate checks that the batch is non-empty, paired 1:1 and uniformly shaped.
func (b SampleBatch) Validate(name string) error {
	if len(b.Images) == 0 {
		return fmt.Errorf("%s images: %w", name, ErrEmpty)
	}
	if len(b.Labels) == 0 {
		return fmt.Errorf("%s labels: %w", name, ErrEmpty)
	}
	if len(b.Images) != len(b.Labels) {
		return fmt.Errorf("%s: %w (%d images, %d labels)", name, ErrCountMismatch, len(b.Images), len(b.Labels))
	}
	size := b.ImageSize()
	if size <= 0 {
		return fmt.Errorf("%s: %w (geometry %dx%dx%d)", name, ErrShape, b.Rows, b.Cols, b.Channels)
	}
	for i, img := range b.Images {
		if len(img) != size {
			return fmt.Errorf("%s image %d: %w (%d bytes, want %d)", name, i, ErrShape, len(img), size)
		}
	}
	for i, label := range b.Labels {
		if label < 0 || label >= NumClasses {
			return fmt.Errorf("%s label %d: %w (%d)", name, i, ErrLabel, label)
		}
	}
	return nil
}

// Split holds the training and evaluation batches of a run.
type Split struct {
	Train SampleBatch
	Test  SampleBatch
}

// Validate checks both batches and that they share one geometry.
func (s Split) Validate() error {
	if err := s.Train.Validate("train"); err != nil {
		return err
	}
	if err := s.Test.Validate("test"); err != nil {
		return err
	}
	if s.Train.Rows != s.Test.Rows || s.Train.Cols != s.Test.Cols || s.Train.Channels != s.Test.Channels {
		return fmt.Errorf("%w: train %dx%dx%d, test %dx%dx%d", ErrShape,
			s.Train.Rows, s.Train.Cols, s.Train.Channels,
			s.Test.Rows, s.Test.Cols, s.Test.Channels)
	}
	return nil
}

func newBatch(capacity int) SampleBatch {
	return SampleBatch{
		Images:   make([][]byte, 0, capacity),
		Labels:   make([]int, 0, capacity),
		Rows:     Rows,
		Cols:     Cols,
		Channels: Channels,
	}
}
