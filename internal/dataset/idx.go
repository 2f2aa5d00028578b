package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// IDX magic numbers: two zero bytes, the 0x08 (unsigned byte) type code and
// the number of dimensions.
const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// Header counts are untrusted: slices grow as payload arrives instead of
// being sized from the header.
const (
	maxImagePixels = 1 << 20
	preallocLimit  = 1 << 16
	labelChunk     = 4096
)

// ErrFormat reports a malformed IDX stream.
var ErrFormat = errors.New("idx: malformed file")

// ReadImages decodes an idx3-ubyte stream into row-major images.
func ReadImages(r io.Reader) (images [][]byte, rows, cols int, err error) {
	var hdr [4]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: image header: %v", ErrFormat, err)
	}
	if hdr[0] != imageMagic {
		return nil, 0, 0, fmt.Errorf("%w: image magic 0x%08x", ErrFormat, hdr[0])
	}
	count, nrows, ncols := uint64(hdr[1]), uint64(hdr[2]), uint64(hdr[3])
	if nrows == 0 || ncols == 0 || nrows*ncols > maxImagePixels {
		return nil, 0, 0, fmt.Errorf("%w: image dimensions %dx%d", ErrFormat, nrows, ncols)
	}
	size := int(nrows * ncols)
	images = make([][]byte, 0, min(count, preallocLimit))
	for i := uint64(0); i < count; i++ {
		img := make([]byte, size)
		if _, err := io.ReadFull(r, img); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: image %d of %d: %v", ErrFormat, i, count, err)
		}
		images = append(images, img)
	}
	return images, int(nrows), int(ncols), nil
}

// ReadLabels decodes an idx1-ubyte stream into class indices.
func ReadLabels(r io.Reader) ([]int, error) {
	var hdr [2]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: label header: %v", ErrFormat, err)
	}
	if hdr[0] != labelMagic {
		return nil, fmt.Errorf("%w: label magic 0x%08x", ErrFormat, hdr[0])
	}
	count := uint64(hdr[1])
	labels := make([]int, 0, min(count, preallocLimit))
	chunk := make([]byte, labelChunk)
	for remaining := count; remaining > 0; {
		buf := chunk[:min(remaining, labelChunk)]
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: label payload at %d of %d: %v", ErrFormat, len(labels), count, err)
		}
		for _, v := range buf {
			labels = append(labels, int(v))
		}
		remaining -= uint64(len(buf))
	}
	return labels, nil
}

// WriteImages encodes images of rows x cols pixels as idx3-ubyte.
func WriteImages(w io.Writer, images [][]byte, rows, cols int) error {
	hdr := [4]uint32{imageMagic, uint32(len(images)), uint32(rows), uint32(cols)}
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	for i, img := range images {
		if len(img) != rows*cols {
			return fmt.Errorf("image %d: %w", i, ErrShape)
		}
		if _, err := w.Write(img); err != nil {
			return err
		}
	}
	return nil
}

// WriteLabels encodes labels as idx1-ubyte.
func WriteLabels(w io.Writer, labels []int) error {
	hdr := [2]uint32{labelMagic, uint32(len(labels))}
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	raw := make([]byte, len(labels))
	for i, l := range labels {
		if l < 0 || l > 255 {
			return fmt.Errorf("label %d: %w (%d)", i, ErrLabel, l)
		}
		raw[i] = byte(l)
	}
	_, err := w.Write(raw)
	return err
}

// openIDX opens path, transparently decompressing .gz files.
func openIDX(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return struct {
			io.Reader
			io.Closer
		}{bufio.NewReader(f), f}, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func loadImageFile(path string) (SampleBatch, error) {
	rc, err := openIDX(path)
	if err != nil {
		return SampleBatch{}, err
	}
	defer rc.Close()
	images, rows, cols, err := ReadImages(rc)
	if err != nil {
		return SampleBatch{}, fmt.Errorf("%s: %w", path, err)
	}
	return SampleBatch{Images: images, Rows: rows, Cols: cols, Channels: 1}, nil
}

func loadLabelFile(path string) ([]int, error) {
	rc, err := openIDX(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	labels, err := ReadLabels(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}
