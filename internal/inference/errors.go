package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrInferenceFailed matches every *InferenceExecutionError.
	ErrInferenceFailed = errors.New("inference failed")
	// ErrWarmupFailed matches every *WarmupFailure.
	ErrWarmupFailed = errors.New("warm-up failed")
)

// Stage names the step of a call that failed.
type Stage string

const (
	StageBuild   Stage = "build"
	StageBind    Stage = "bind"
	StageExecute Stage = "execute"
	StageOutput  Stage = "output"
)

// InferenceExecutionError is returned for every failed Run. Its message is
// generic. The engine error is available through Cause and is not reachable
// with errors.Unwrap.
type InferenceExecutionError struct {
	Stage      Stage
	InputName  string
	OutputName string
	cause      error
}

func (e *InferenceExecutionError) Error() string {
	return ErrInferenceFailed.Error()
}

func (e *InferenceExecutionError) Cause() error {
	return e.cause
}

func (e *InferenceExecutionError) Is(target error) bool {
	return target == ErrInferenceFailed
}

// WarmupFailure describes a warm-up that did not complete. It is reported,
// never returned.
type WarmupFailure struct {
	Dims  []int64
	Stage Stage
	Err   error
}

func (e *WarmupFailure) Error() string {
	return fmt.Sprintf("warm-up %v failed at %s: %v", e.Dims, e.Stage, e.Err)
}

func (e *WarmupFailure) Unwrap() error {
	return e.Err
}

func (e *WarmupFailure) Is(target error) bool {
	return target == ErrWarmupFailed
}
