package model

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	manifestFile   = "model.json"
	manifestFormat = "digitforge/gorgonia-npy"
)

type manifest struct {
	Format       string         `json:"format"`
	RunID        string         `json:"run_id"`
	Architecture Architecture   `json:"architecture"`
	Compile      CompileOptions `json:"compile"`
	Weights      []weightEntry  `json:"weights"`
	History      History        `json:"history,omitempty"`
}

type weightEntry struct {
	Name  string `json:"name"`
	File  string `json:"file"`
	Shape []int  `json:"shape"`
}

// Save writes the model to dir: model.json with the topology, compile
// options and training history, plus one NumPy .npy file per weight tensor.
// dir is created if needed.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	man := manifest{
		Format:       manifestFormat,
		RunID:        m.runID,
		Architecture: m.arch,
		Compile:      m.opts,
		History:      m.history,
	}
	for _, p := range m.params {
		entry := weightEntry{
			Name:  p.Name,
			File:  strings.ReplaceAll(p.Name, "/", ".") + ".npy",
			Shape: append([]int(nil), p.Value.Shape()...),
		}
		if err := writeNpy(filepath.Join(dir, entry.File), p.Value); err != nil {
			return errors.Wrapf(err, "save weight %s", p.Name)
		}
		man.Weights = append(man.Weights, entry)
	}
	raw, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), raw, 0o644); err != nil {
		return errors.Wrap(err, "write manifest")
	}
	return nil
}

// Load reads a model written by Save.
func Load(dir string) (*Model, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	var man manifest
	if err := json.Unmarshal(raw, &man); err != nil {
		return nil, errors.Wrap(err, "decode manifest")
	}
	if man.Format != manifestFormat {
		return nil, errors.Errorf("unsupported model format %q", man.Format)
	}
	m, err := Build(man.Architecture, man.Compile)
	if err != nil {
		return nil, err
	}
	if len(man.Weights) != len(m.params) {
		return nil, errors.Errorf("manifest lists %d weights, architecture needs %d", len(man.Weights), len(m.params))
	}
	for i, entry := range man.Weights {
		want := m.params[i]
		if entry.Name != want.Name {
			return nil, errors.Errorf("weight %d is %s, want %s", i, entry.Name, want.Name)
		}
		t, err := readNpy(filepath.Join(dir, entry.File))
		if err != nil {
			return nil, errors.Wrapf(err, "load weight %s", entry.Name)
		}
		if !t.Shape().Eq(want.Value.Shape()) {
			return nil, errors.Errorf("weight %s has shape %v, want %v", entry.Name, t.Shape(), want.Value.Shape())
		}
		m.params[i].Value = t
	}
	m.runID = man.RunID
	m.history = man.History
	return m, nil
}

func writeNpy(path string, t *tensor.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	err = t.WriteNpy(w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func readNpy(path string) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t := new(tensor.Dense)
	if err := t.ReadNpy(bufio.NewReader(f)); err != nil {
		return nil, err
	}
	if t.Dtype() != tensor.Float32 {
		return nil, errors.Errorf("%s holds %v, want float32", path, t.Dtype())
	}
	return t, nil
}
