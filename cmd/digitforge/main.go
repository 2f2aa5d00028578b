package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/klauspost/cpuid/v2"
	"k8s.io/klog/v2"

	"digitforge/internal/config"
	"digitforge/internal/dataset"
	"digitforge/internal/export"
	"digitforge/internal/model"
	"digitforge/internal/trainer"
)

const defaultConfigPath = "configs/default.yaml"

func main() {
	klog.InitFlags(nil)
	cfgPath := flag.String("config", "", "Path to YAML config (default "+defaultConfigPath+" when present)")
	source := flag.String("source", "", "Dataset source: idx, synthetic or shards")
	dataDir := flag.String("data-dir", "", "Directory holding the MNIST IDX files")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	numWorkers := flag.Int("num-workers", 0, "Number of shard reader workers")
	seed := flag.Int64("seed", 0, "PRNG seed")
	saveTarget := flag.String("save", "", "Save target, e.g. file://./saved_model")
	logEvery := flag.Int("log-every", 0, "Log throughput every N batches (at -v=1)")
	writeSynthetic := flag.String("write-synthetic", "", "Write a synthetic dataset as IDX files to this directory and exit")

	flag.Parse()

	var seedOverride *int64
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedOverride = seed
		}
	})

	os.Exit(run(*cfgPath, config.Overrides{
		Source:     *source,
		DataDir:    *dataDir,
		Epochs:     *epochs,
		BatchSize:  *batchSize,
		NumWorkers: *numWorkers,
		Seed:       seedOverride,
		SaveTarget: *saveTarget,
		LogEvery:   *logEvery,
	}, *writeSynthetic))
}

func run(cfgPath string, overrides config.Overrides, writeSynthetic string) int {
	defer klog.Flush()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		klog.Errorf("failed to load config: %v", err)
		return trainer.ExitCode(fmt.Errorf("%w: %v", trainer.ErrConfig, err))
	}
	cfg.ApplyOverrides(overrides)
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = max(1, cpuid.CPU.PhysicalCores)
	}
	if err := cfg.Validate(); err != nil {
		klog.Errorf("invalid config: %v", err)
		return trainer.ExitCode(fmt.Errorf("%w: %v", trainer.ErrConfig, err))
	}
	klog.Infof("cpu=%q cores=%d threads=%d workers=%d", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cfg.NumWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if writeSynthetic != "" {
		split, err := dataset.SyntheticProvider{Train: cfg.SyntheticTrain, Test: cfg.SyntheticTest, Seed: cfg.Seed}.Load(ctx)
		if err == nil {
			err = dataset.Export(writeSynthetic, split)
		}
		if err != nil {
			klog.Errorf("failed to write synthetic dataset: %v", err)
			return trainer.ExitLoadFailed
		}
		klog.Infof("wrote %d training and %d testing samples to %s", split.Train.Len(), split.Test.Len(), writeSynthetic)
		return trainer.ExitOK
	}

	sink, err := export.ParseTarget(cfg.SaveTarget)
	if err != nil {
		klog.Errorf("invalid save target: %v", err)
		return trainer.ExitCode(fmt.Errorf("%w: %v", trainer.ErrConfig, err))
	}

	compile := model.DefaultCompileOptions()
	compile.LearningRate = cfg.LearningRate
	compile.Seed = cfg.Seed

	klog.Infof("source=%s epochs=%d batch=%d target=%s", cfg.Source, cfg.Epochs, cfg.BatchSize, sink)
	res, err := trainer.Run(ctx, trainer.Pipeline{
		Provider:     provider(cfg),
		Architecture: model.DigitCNN(),
		Compile:      compile,
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		Sink:         sink,
		LogEvery:     cfg.LogEvery,
		Diagnostics:  trainer.KlogDiagnostics{},
	})
	klog.V(1).Infof("run finished in state %s via %v", res.State, res.Trail)
	return trainer.ExitCode(err)
}

// loadConfig reads path, or the default config file when path is empty. A
// missing default file falls back to the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(defaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func provider(cfg *config.Config) dataset.Provider {
	switch cfg.Source {
	case config.SourceSynthetic:
		return dataset.SyntheticProvider{Train: cfg.SyntheticTrain, Test: cfg.SyntheticTest, Seed: cfg.Seed}
	case config.SourceShards:
		return dataset.ShardProvider{
			TrainRoots: cfg.TrainShardRoots(),
			TestRoots:  cfg.TestShardRoots(),
			NumWorkers: cfg.NumWorkers,
			Seed:       cfg.Seed,
		}
	default:
		return dataset.IDXProvider{Dir: cfg.DataDir, VerifyDigests: cfg.VerifyDigests}
	}
}
