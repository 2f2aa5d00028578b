package dataset

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sample is one decoded digit from a WebDataset shard.
type Sample struct {
	Key    string
	Pixels []byte
	Label  int
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("webdataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamShard streams paired samples from the shard at path. Images are
// decoded and resampled to Rows x Cols grayscale inside the stream goroutine.
// The error channel receives at most one value and is closed after out.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)
		if err := streamShard(ctx, path, pendingCap, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func streamShard(ctx context.Context, path string, pendingCap int, out chan<- Sample) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(bufio.NewReader(f))
	pending := make(map[string]*pendingPair)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", path, err)
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(hdr.Name)
		ext := strings.ToLower(filepath.Ext(name))
		key := strings.TrimSuffix(name, ext)

		switch ext {
		case ".jpg", ".jpeg", ".png":
			data, err := io.ReadAll(tr)
			if err != nil {
				return fmt.Errorf("read image %s: %w", name, err)
			}
			pixels, err := decodeGray(data)
			if err != nil {
				return fmt.Errorf("decode image %s: %w", name, err)
			}
			pairFor(pending, key).pixels = pixels
		case ".cls":
			payload, err := io.ReadAll(tr)
			if err != nil {
				return fmt.Errorf("read label %s: %w", name, err)
			}
			label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
			if err != nil {
				return fmt.Errorf("parse label %s: %w", name, err)
			}
			if label < 0 || label >= NumClasses {
				return fmt.Errorf("label %s: %w (%d)", name, ErrLabel, label)
			}
			pairFor(pending, key).label = &label
		default:
			continue
		}

		if len(pending) > pendingCap {
			return ErrPendingOverflow
		}

		if pair := pending[key]; pair.ready() {
			delete(pending, key)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- Sample{Key: key, Pixels: pair.pixels, Label: *pair.label}:
			}
		}
	}

	if len(pending) > 0 {
		return fmt.Errorf("%s: %d samples incomplete", path, len(pending))
	}
	return nil
}

type pendingPair struct {
	pixels []byte
	label  *int
}

func pairFor(pending map[string]*pendingPair, key string) *pendingPair {
	pair := pending[key]
	if pair == nil {
		pair = &pendingPair{}
		pending[key] = pair
	}
	return pair
}

func (p *pendingPair) ready() bool {
	return p != nil && p.pixels != nil && p.label != nil
}

// decodeGray decodes a PNG or JPEG and box-samples it to Rows x Cols luminance.
func decodeGray(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("empty image")
	}
	pixels := make([]byte, Rows*Cols)
	for gy := 0; gy < Rows; gy++ {
		y0 := bounds.Min.Y + gy*height/Rows
		y1 := max(bounds.Min.Y+(gy+1)*height/Rows, y0+1)
		for gx := 0; gx < Cols; gx++ {
			x0 := bounds.Min.X + gx*width/Cols
			x1 := max(bounds.Min.X+(gx+1)*width/Cols, x0+1)
			var sum, n uint64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					sum += (uint64(r) + uint64(g) + uint64(b)) / 3
					n++
				}
			}
			pixels[gy*Cols+gx] = byte((sum / n) >> 8)
		}
	}
	return pixels, nil
}
