package dataset

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadImagesHeaderAndLayout(t *testing.T) {
	buf := &bytes.Buffer{}
	images := [][]byte{{0, 1, 2, 3, 4, 5}, {6, 7, 8, 9, 10, 11}}
	if err := WriteImages(buf, images, 2, 3); err != nil {
		t.Fatalf("WriteImages: %v", err)
	}
	raw := buf.Bytes()
	if !bytes.Equal(raw[:4], []byte{0, 0, 8, 3}) {
		t.Fatalf("unexpected magic % x", raw[:4])
	}
	if len(raw) != 16+12 {
		t.Fatalf("unexpected encoded length %d", len(raw))
	}

	got, rows, cols, err := ReadImages(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadImages: %v", err)
	}
	if rows != 2 || cols != 3 || len(got) != 2 {
		t.Fatalf("got %d images of %dx%d", len(got), rows, cols)
	}
	if got[1][0] != 6 || got[1][5] != 11 {
		t.Fatalf("row-major layout broken: %v", got[1])
	}
}

func TestReadImagesRejectsLabelFile(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteLabels(buf, []int{1}); err != nil {
		t.Fatalf("WriteLabels: %v", err)
	}
	if _, _, _, err := ReadImages(buf); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestReadLabelsTruncated(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteLabels(buf, []int{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteLabels: %v", err)
	}
	short := buf.Bytes()[:buf.Len()-2]
	if _, err := ReadLabels(bytes.NewReader(short)); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestLoadGzipLabelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), TestLabelsFile+".gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := gzip.NewWriter(f)
	if err := WriteLabels(zw, []int{7, 0, 9}); err != nil {
		t.Fatalf("WriteLabels: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	f.Close()

	labels, err := loadLabelFile(path)
	if err != nil {
		t.Fatalf("loadLabelFile: %v", err)
	}
	if len(labels) != 3 || labels[0] != 7 || labels[2] != 9 {
		t.Fatalf("unexpected labels %v", labels)
	}
}

func idxHeader(words ...uint32) []byte {
	buf := &bytes.Buffer{}
	for _, w := range words {
		buf.Write([]byte{byte(w >> 24), byte(w >> 16), byte(w >> 8), byte(w)})
	}
	return buf.Bytes()
}

func TestReadImagesRejectsOversizedDimensions(t *testing.T) {
	raw := idxHeader(imageMagic, 0xFFFFFFFF, 0xFFFFFFFF, 1)
	if _, _, _, err := ReadImages(bytes.NewReader(raw)); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestReadImagesTruncatedLargeCount(t *testing.T) {
	raw := append(idxHeader(imageMagic, 0xFFFFFFFF, 28, 28), make([]byte, 28*28+10)...)
	if _, _, _, err := ReadImages(bytes.NewReader(raw)); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestReadLabelsTruncatedLargeCount(t *testing.T) {
	raw := append(idxHeader(labelMagic, 0xFFFFFFFF), 1, 2, 3)
	if _, err := ReadLabels(bytes.NewReader(raw)); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestReadLabelsSpansChunks(t *testing.T) {
	labels := make([]int, labelChunk+7)
	for i := range labels {
		labels[i] = i % NumClasses
	}
	buf := &bytes.Buffer{}
	if err := WriteLabels(buf, labels); err != nil {
		t.Fatalf("WriteLabels: %v", err)
	}
	got, err := ReadLabels(buf)
	if err != nil {
		t.Fatalf("ReadLabels: %v", err)
	}
	if len(got) != len(labels) || got[labelChunk+6] != labels[labelChunk+6] {
		t.Fatalf("got %d labels, want %d", len(got), len(labels))
	}
}
