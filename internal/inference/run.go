package inference

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/example/go-ort-harness/internal/onnx"
)

type Result struct {
	Output  *onnx.Tensor
	Elapsed time.Duration
}

// ElapsedMS returns the call latency in whole milliseconds.
func (r Result) ElapsedMS() int64 {
	return r.Elapsed.Milliseconds()
}

// Run binds input to the session's first declared input, executes it once and
// returns the first declared output. Elapsed covers only the session call.
// Every failure is logged with its cause and returned as
// *InferenceExecutionError.
func (r *Runner) Run(ctx context.Context, s onnx.Session, input *onnx.Tensor) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "inference.run")
	defer span.End()

	res, elapsed, execErr := r.run(ctx, s, input)
	span.SetAttributes(attribute.Int64("inference.elapsed_ms", elapsed.Milliseconds()))

	if execErr != nil {
		r.logger.ErrorContext(ctx, "inference failed",
			"stage", execErr.Stage,
			"input", execErr.InputName,
			"output", execErr.OutputName,
			"error", execErr.cause,
		)
		span.RecordError(execErr.cause)
		span.SetStatus(codes.Error, string(execErr.Stage))
		r.observer.ObserveInference(elapsed, execErr)
		return Result{}, execErr
	}

	span.SetAttributes(attribute.Int64Slice("inference.output_shape", res.Output.Shape()))
	r.observer.ObserveInference(elapsed, nil)
	return res, nil
}

func (r *Runner) run(ctx context.Context, s onnx.Session, input *onnx.Tensor) (Result, time.Duration, *InferenceExecutionError) {
	execErr := &InferenceExecutionError{}
	fail := func(stage Stage, cause error) *InferenceExecutionError {
		execErr.Stage = stage
		execErr.cause = cause
		return execErr
	}

	inputs, outputs := s.InputNames(), s.OutputNames()
	if len(inputs) == 0 {
		return Result{}, 0, fail(StageBind, errors.New("session declares no inputs"))
	}
	execErr.InputName = inputs[0]
	if len(outputs) == 0 {
		return Result{}, 0, fail(StageBind, errors.New("session declares no outputs"))
	}
	execErr.OutputName = outputs[0]
	if input == nil {
		return Result{}, 0, fail(StageBind, errors.New("input tensor is nil"))
	}

	feeds := map[string]*onnx.Tensor{execErr.InputName: input}

	start := r.now()
	results, err := s.Run(ctx, feeds)
	elapsed := r.since(start)
	if err != nil {
		return Result{}, elapsed, fail(StageExecute, err)
	}

	out, ok := results[execErr.OutputName]
	if !ok || out == nil {
		return Result{}, elapsed, fail(StageOutput, errors.New("primary output missing from results"))
	}

	return Result{Output: out, Elapsed: elapsed}, elapsed, nil
}
