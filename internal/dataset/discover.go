package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Canonical MNIST file names.
const (
	TrainImagesFile = "train-images-idx3-ubyte"
	TrainLabelsFile = "train-labels-idx1-ubyte"
	TestImagesFile  = "t10k-images-idx3-ubyte"
	TestLabelsFile  = "t10k-labels-idx1-ubyte"
)

// sha256 of the published gzip archives.
var archiveDigests = map[string]string{
	TrainImagesFile + ".gz": "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
	TrainLabelsFile + ".gz": "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c",
	TestImagesFile + ".gz":  "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6",
	TestLabelsFile + ".gz":  "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6",
}

// ErrDigest reports an archive whose checksum differs from the published one.
var ErrDigest = errors.New("dataset: archive digest mismatch")

// IDXFiles holds the resolved paths of the four MNIST files.
type IDXFiles struct {
	TrainImages string
	TrainLabels string
	TestImages  string
	TestLabels  string
}

func (f IDXFiles) all() []string {
	return []string{f.TrainImages, f.TrainLabels, f.TestImages, f.TestLabels}
}

// LocateIDX resolves the four files under dir, accepting a .gz sibling when the
// raw file is absent. Every missing file is reported.
func LocateIDX(dir string) (IDXFiles, error) {
	var missing []string
	resolve := func(name string) string {
		for _, candidate := range []string{name, name + ".gz"} {
			path := filepath.Join(dir, candidate)
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				return path
			}
		}
		missing = append(missing, filepath.Join(dir, name))
		return ""
	}
	files := IDXFiles{
		TrainImages: resolve(TrainImagesFile),
		TrainLabels: resolve(TrainLabelsFile),
		TestImages:  resolve(TestImagesFile),
		TestLabels:  resolve(TestLabelsFile),
	}
	if len(missing) > 0 {
		return files, fmt.Errorf("locate idx files: %w: %v", fs.ErrNotExist, missing)
	}
	return files, nil
}

// VerifyDigests checks every gzip archive in files against the published
// checksums. Uncompressed files have no reference digest and are skipped.
func VerifyDigests(files IDXFiles) error {
	for _, path := range files.all() {
		want, ok := archiveDigests[filepath.Base(path)]
		if !ok {
			continue
		}
		got, err := fileDigest(path)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("%w: %s", ErrDigest, path)
		}
	}
	return nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var shardRegexp = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)

// DiscoverShards returns paths to shard TAR files beneath root.
func DiscoverShards(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shardRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover shards: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}

// DiscoverByRoot scans each root independently.
func DiscoverByRoot(roots []string) (map[string][]string, error) {
	result := make(map[string][]string, len(roots))
	for _, root := range roots {
		shards, err := DiscoverShards(root)
		if err != nil {
			return nil, err
		}
		result[root] = shards
	}
	return result, nil
}
