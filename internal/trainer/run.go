package trainer

import (
	"context"
	"errors"
	"fmt"

	"digitforge/internal/dataset"
	"digitforge/internal/export"
	"digitforge/internal/metrics"
	"digitforge/internal/model"
	"digitforge/internal/tensorize"
)

// Pipeline wires the stages of one training run.
type Pipeline struct {
	Provider     dataset.Provider
	Architecture model.Architecture
	Compile      model.CompileOptions
	Epochs       int
	BatchSize    int
	Sink         export.Sink
	// LogEvery batches a throughput line is sent to Diagnostics.
	LogEvery    int
	Diagnostics Diagnostics
}

// Result describes how far a run got.
type Result struct {
	State   State
	Trail   []State
	History model.History
}

// Run loads the data, trains the model and saves it, strictly in that order.
// A load failure returns a *LoadError before any tensor or model work, a
// training failure returns a *TrainError without attempting a save, and a
// save failure returns a *SaveError after training has been reported.
func Run(ctx context.Context, p Pipeline) (Result, error) {
	if p.Provider == nil || p.Sink == nil {
		return Result{State: NotStarted, Trail: []State{NotStarted}}, errors.Join(ErrConfig, errors.New("pipeline needs a provider and a sink"))
	}
	if p.Epochs <= 0 || p.BatchSize <= 0 {
		return Result{State: NotStarted, Trail: []State{NotStarted}}, errors.Join(ErrConfig, errors.New("epochs and batch size must be > 0"))
	}
	diag := p.Diagnostics
	if diag == nil {
		diag = KlogDiagnostics{}
	}
	if p.LogEvery <= 0 {
		p.LogEvery = 50
	}
	sm := NewMachine()
	result := func() Result { return Result{State: sm.Current(), Trail: sm.Trail()} }

	split, err := p.Provider.Load(ctx)
	if err == nil {
		err = split.Validate()
	}
	if err == nil {
		err = checkGeometry(split, p.Architecture.Input)
	}
	if err != nil {
		err = &LoadError{Err: err}
		diag.Failed("load data", err)
		return result(), err
	}
	diag.DatasetLoaded(split)

	if err := sm.Transition(NotStarted, Training); err != nil {
		return result(), err
	}
	m, history, err := train(ctx, p, split, diag)
	if err != nil {
		err = &TrainError{Err: err}
		if terr := sm.Transition(Training, Failed); terr != nil {
			return result(), errors.Join(err, terr)
		}
		diag.Failed("train the model", err)
		res := result()
		res.History = history
		return res, err
	}
	if err := sm.Transition(Training, Succeeded); err != nil {
		return result(), err
	}
	diag.Trained(history)

	if err := sm.Transition(Succeeded, Saving); err != nil {
		return result(), err
	}
	if err := p.Sink.Save(ctx, m); err != nil {
		err = &SaveError{Target: p.Sink.String(), Err: err}
		if terr := sm.Transition(Saving, SaveFailed); terr != nil {
			return result(), errors.Join(err, terr)
		}
		diag.Failed("save the model", err)
		res := result()
		res.History = history
		return res, err
	}
	if err := sm.Transition(Saving, SaveSucceeded); err != nil {
		return result(), err
	}
	diag.Saved(p.Sink.String())

	res := result()
	res.History = history
	return res, nil
}

func train(ctx context.Context, p Pipeline, split dataset.Split, diag Diagnostics) (*model.Model, model.History, error) {
	in := p.Architecture.Input
	ts, err := tensorize.Split(split, tensorize.Shape{Rows: in.Height, Cols: in.Width, Channels: in.Channels})
	if err != nil {
		return nil, nil, err
	}
	m, err := model.Build(p.Architecture, p.Compile)
	if err != nil {
		return nil, nil, err
	}
	diag.ModelBuilt(m)

	var window metrics.Window
	history, err := m.Fit(ctx, ts.TrainX, ts.TrainY, model.FitOptions{
		BatchSize: p.BatchSize,
		Epochs:    p.Epochs,
		ValX:      ts.TestX,
		ValY:      ts.TestY,
		Shuffle:   true,
		OnBatchEnd: func(b model.BatchLog) {
			window.Record(b.Size, b.Loss, b.Correct, b.Elapsed)
			if (b.Batch+1)%p.LogEvery == 0 {
				diag.Batch(b.Epoch, b.Batch+1, window.Snapshot())
			}
		},
		OnEpochEnd: func(e model.EpochLog) {
			window.Snapshot()
			diag.Epoch(e)
		},
	})
	if err != nil {
		return nil, history, err
	}
	return m, history, nil
}

func checkGeometry(split dataset.Split, in model.InputShape) error {
	b := split.Train
	if b.Rows != in.Height || b.Cols != in.Width || b.Channels != in.Channels {
		return fmt.Errorf("%w: samples are %dx%dx%d, model expects %dx%dx%d", dataset.ErrShape,
			b.Rows, b.Cols, b.Channels, in.Height, in.Width, in.Channels)
	}
	return nil
}
