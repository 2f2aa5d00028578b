package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dataset sources understood by the pipeline.
const (
	SourceIDX       = "idx"
	SourceSynthetic = "synthetic"
	SourceShards    = "shards"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Source         string  `yaml:"source"`
	DataDir        string  `yaml:"data_dir"`
	VerifyDigests  bool    `yaml:"verify_digests"`
	SyntheticTrain int     `yaml:"synthetic_train"`
	SyntheticTest  int     `yaml:"synthetic_test"`
	TrainShards    string  `yaml:"train_shards"`
	TestShards     string  `yaml:"test_shards"`
	NumWorkers     int     `yaml:"num_workers"`
	Epochs         int     `yaml:"epochs"`
	BatchSize      int     `yaml:"batch_size"`
	LearningRate   float64 `yaml:"learning_rate"`
	Seed           int64   `yaml:"seed"`
	SaveTarget     string  `yaml:"save_target"`
	LogEvery       int     `yaml:"log_every"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Source     string
	DataDir    string
	Epochs     int
	BatchSize  int
	NumWorkers int
	// Seed is applied when non-nil so that 0 can be requested.
	Seed       *int64
	SaveTarget string
	LogEvery   int
}

// Default returns the configuration of the reference run: MNIST IDX files
// under ./data/mnist, 5 epochs of batch 32, saved to ./saved_model.
func Default() *Config {
	return &Config{
		Source:         SourceIDX,
		DataDir:        "./data/mnist",
		SyntheticTrain: 8000,
		SyntheticTest:  2000,
		Epochs:         5,
		BatchSize:      32,
		LearningRate:   0.001,
		Seed:           42,
		SaveTarget:     "file://./saved_model",
		LogEvery:       50,
	}
}

// Load reads a Config from YAML on top of Default. It does not validate, so
// that CLI overrides can be applied first.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

func parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	return cfg, nil
}

// TrainShardRoots splits TrainShards on commas.
func (c *Config) TrainShardRoots() []string { return splitRoots(c.TrainShards) }

// TestShardRoots splits TestShards on commas.
func (c *Config) TestShardRoots() []string { return splitRoots(c.TestShards) }

func splitRoots(s string) []string {
	var roots []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, r)
		}
	}
	return roots
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Source != "" {
		c.Source = strings.ToLower(o.Source)
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.SaveTarget != "" {
		c.SaveTarget = o.SaveTarget
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.Source {
	case SourceIDX:
		if c.DataDir == "" {
			return errors.New("data_dir must be set for the idx source")
		}
	case SourceSynthetic:
		if c.SyntheticTrain <= 0 || c.SyntheticTest <= 0 {
			return fmt.Errorf("synthetic_train and synthetic_test must be > 0 (got %d, %d)", c.SyntheticTrain, c.SyntheticTest)
		}
	case SourceShards:
		if len(c.TrainShardRoots()) == 0 || len(c.TestShardRoots()) == 0 {
			return errors.New("both train_shards and test_shards must be provided for the shards source")
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.NumWorkers < 0 {
		return fmt.Errorf("num_workers must be >= 0 (got %d)", c.NumWorkers)
	}
	if c.SaveTarget == "" {
		return errors.New("save_target must be set")
	}
	if c.LogEvery <= 0 {
		return fmt.Errorf("log_every must be > 0 (got %d)", c.LogEvery)
	}
	return nil
}
