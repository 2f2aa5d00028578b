package trainer

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitLoadFailed  = 1
	ExitTrainFailed = 2
	ExitSaveFailed  = 3
)

// ErrConfig marks an invalid configuration, reported before any data work.
var ErrConfig = errors.New("invalid configuration")

// LoadError is returned when the dataset cannot be loaded or fails
// validation. Nothing downstream of the provider has run.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load dataset: %v", e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// TrainError is returned when tensor conversion, model construction or the
// fit loop fails. No save was attempted.
type TrainError struct {
	Err error
}

func (e *TrainError) Error() string { return fmt.Sprintf("train model: %v", e.Err) }
func (e *TrainError) Unwrap() error { return e.Err }

// SaveError is returned when a successfully trained model could not be
// persisted.
type SaveError struct {
	Target string
	Err    error
}

func (e *SaveError) Error() string { return fmt.Sprintf("save model to %s: %v", e.Target, e.Err) }
func (e *SaveError) Unwrap() error { return e.Err }

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	var (
		loadErr  *LoadError
		trainErr *TrainError
		saveErr  *SaveError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig), errors.As(err, &loadErr):
		return ExitLoadFailed
	case errors.As(err, &trainErr):
		return ExitTrainFailed
	case errors.As(err, &saveErr):
		return ExitSaveFailed
	default:
		return ExitTrainFailed
	}
}
