package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
)

func TestStreamShardPairsEntries(t *testing.T) {
	dir := t.TempDir()
	shard := filepath.Join(dir, "shard-000000.tar")
	mustShard(t, shard, []shardEntry{{"000001", 3}, {"000002", 7}})

	samplesCh, errCh := StreamShard(context.Background(), shard, 4)

	var samples []Sample
	for sample := range samplesCh {
		samples = append(samples, sample)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("StreamShard returned error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Key < samples[j].Key })
	if samples[0].Label != 3 || samples[1].Label != 7 {
		t.Fatalf("unexpected labels %d %d", samples[0].Label, samples[1].Label)
	}
	if len(samples[0].Pixels) != Rows*Cols {
		t.Fatalf("expected %d pixels, got %d", Rows*Cols, len(samples[0].Pixels))
	}
}

func TestStreamShardRejectsOutOfRangeLabel(t *testing.T) {
	dir := t.TempDir()
	shard := filepath.Join(dir, "shard-000000.tar")
	mustShard(t, shard, []shardEntry{{"a", 12}})

	samplesCh, errCh := StreamShard(context.Background(), shard, 4)
	for range samplesCh {
	}
	if err := <-errCh; err == nil {
		t.Fatal("expected label error")
	}
}

func TestDecodeGrayResamples(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 56, 56))
	for y := 0; y < 56; y++ {
		for x := 28; x < 56; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	pixels, err := decodeGray(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeGray: %v", err)
	}
	if pixels[0] != 0 || pixels[Cols-1] != 255 {
		t.Fatalf("unexpected edge pixels %d %d", pixels[0], pixels[Cols-1])
	}
}

type shardEntry struct {
	key   string
	label int
}

func mustShard(t *testing.T, path string, entries []shardEntry) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, e := range entries {
		addTarPayload(t, tw, e.key+".png", digitPNG(t, e.label))
		addTarPayload(t, tw, e.key+".cls", []byte(strconv.Itoa(e.label)))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
}

func digitPNG(t *testing.T, shade int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, Cols, Rows))
	for i := range img.Pix {
		img.Pix[i] = uint8(shade * 10)
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func addTarPayload(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("write data: %v", err)
	}
}
