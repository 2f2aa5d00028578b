package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
)

// Provider supplies the training and evaluation splits of a run.
type Provider interface {
	Load(ctx context.Context) (Split, error)
}

// IDXProvider reads the four MNIST IDX files from Dir.
type IDXProvider struct {
	Dir           string
	VerifyDigests bool
}

// Load implements Provider.
func (p IDXProvider) Load(ctx context.Context) (Split, error) {
	files, err := LocateIDX(p.Dir)
	if err != nil {
		return Split{}, err
	}
	if p.VerifyDigests {
		if err := VerifyDigests(files); err != nil {
			return Split{}, err
		}
	}
	train, err := loadIDXPair(ctx, files.TrainImages, files.TrainLabels)
	if err != nil {
		return Split{}, err
	}
	test, err := loadIDXPair(ctx, files.TestImages, files.TestLabels)
	if err != nil {
		return Split{}, err
	}
	return Split{Train: train, Test: test}, nil
}

func loadIDXPair(ctx context.Context, imagesPath, labelsPath string) (SampleBatch, error) {
	if err := ctx.Err(); err != nil {
		return SampleBatch{}, err
	}
	batch, err := loadImageFile(imagesPath)
	if err != nil {
		return SampleBatch{}, err
	}
	labels, err := loadLabelFile(labelsPath)
	if err != nil {
		return SampleBatch{}, err
	}
	batch.Labels = labels
	return batch, nil
}

// SyntheticProvider renders digit images with the bundled generator.
// Train and test draw from independent streams derived from Seed.
type SyntheticProvider struct {
	Train int
	Test  int
	Seed  int64
}

// Load implements Provider.
func (p SyntheticProvider) Load(ctx context.Context) (Split, error) {
	if err := ctx.Err(); err != nil {
		return Split{}, err
	}
	train := Synthesize(p.Train, rand.New(rand.NewSource(p.Seed)))
	test := Synthesize(p.Test, rand.New(rand.NewSource(p.Seed^0x5eed)))
	return Split{Train: train, Test: test}, nil
}

// ShardProvider reads WebDataset tar shards discovered under the train and
// test roots.
type ShardProvider struct {
	TrainRoots []string
	TestRoots  []string
	NumWorkers int
	Seed       int64
}

// Load implements Provider.
func (p ShardProvider) Load(ctx context.Context) (Split, error) {
	train, err := p.read(ctx, p.TrainRoots)
	if err != nil {
		return Split{}, fmt.Errorf("train shards: %w", err)
	}
	test, err := p.read(ctx, p.TestRoots)
	if err != nil {
		return Split{}, fmt.Errorf("test shards: %w", err)
	}
	return Split{Train: train, Test: test}, nil
}

func (p ShardProvider) read(ctx context.Context, roots []string) (SampleBatch, error) {
	byRoot, err := DiscoverByRoot(roots)
	if err != nil {
		return SampleBatch{}, err
	}
	return ReadShards(ctx, ShardOptions{Roots: byRoot, Seed: p.Seed, NumWorkers: p.NumWorkers})
}

// Export writes split as the four IDX files under dir.
func Export(dir string, split Split) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	writes := []struct {
		name  string
		write func(w io.Writer) error
	}{
		{TrainImagesFile, func(w io.Writer) error {
			return WriteImages(w, split.Train.Images, split.Train.Rows, split.Train.Cols)
		}},
		{TrainLabelsFile, func(w io.Writer) error { return WriteLabels(w, split.Train.Labels) }},
		{TestImagesFile, func(w io.Writer) error {
			return WriteImages(w, split.Test.Images, split.Test.Rows, split.Test.Cols)
		}},
		{TestLabelsFile, func(w io.Writer) error { return WriteLabels(w, split.Test.Labels) }},
	}
	for _, w := range writes {
		path := filepath.Join(dir, w.name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		bw := bufio.NewWriter(f)
		err = w.write(bw)
		if err == nil {
			err = bw.Flush()
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
