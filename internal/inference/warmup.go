package inference

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/example/go-ort-harness/internal/onnx"
)

type WarmupReport struct {
	Dims []int64 `json:"dims"`
	// Size is the number of elements in the warm-up buffer.
	Size    int            `json:"size"`
	Elapsed time.Duration  `json:"elapsed"`
	Failure *WarmupFailure `json:"-"`
}

func (w WarmupReport) OK() bool {
	return w.Failure == nil
}

// RandomTensor returns a float32 tensor of shape dims whose elements are drawn
// independently and uniformly from [-1, 1).
func RandomTensor(rng *rand.Rand, dims []int64) (*onnx.Tensor, error) {
	size, err := onnx.ElementCount(dims)
	if err != nil {
		return nil, err
	}

	data := make([]float32, size)
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return onnx.NewTensor(data, dims)
}

// RandomTensor draws from the Runner's source. Safe for concurrent use.
func (r *Runner) RandomTensor(dims []int64) (*onnx.Tensor, error) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return RandomTensor(r.rng, dims)
}

// Warmup runs the session once on random input of shape dims and discards the
// output. Failures are logged and reported, never returned, and leave the
// session usable.
func (r *Runner) Warmup(ctx context.Context, s onnx.Session, dims []int64) WarmupReport {
	ctx, span := r.tracer.Start(ctx, "inference.warmup")
	defer span.End()

	report := r.warmup(ctx, s, dims)
	span.SetAttributes(
		attribute.Int("warmup.size", report.Size),
		attribute.Int64("warmup.elapsed_ms", report.Elapsed.Milliseconds()),
	)
	r.finishWarmup(ctx, report)
	if report.Failure != nil {
		span.RecordError(report.Failure)
		span.SetStatus(codes.Error, string(report.Failure.Stage))
	}

	return report
}

func (r *Runner) warmup(ctx context.Context, s onnx.Session, dims []int64) WarmupReport {
	report := WarmupReport{Dims: append([]int64(nil), dims...)}
	fail := func(stage Stage, err error) WarmupReport {
		report.Failure = &WarmupFailure{Dims: report.Dims, Stage: stage, Err: err}
		return report
	}

	if len(dims) == 0 {
		return fail(StageBuild, errors.New("dims are empty"))
	}
	input, err := r.RandomTensor(dims)
	if err != nil {
		return fail(StageBuild, err)
	}
	report.Size = input.Len()

	inputs := s.InputNames()
	if len(inputs) == 0 {
		return fail(StageBind, errors.New("session declares no inputs"))
	}

	start := r.now()
	_, err = s.Run(ctx, map[string]*onnx.Tensor{inputs[0]: input})
	report.Elapsed = r.since(start)
	if err != nil {
		return fail(StageExecute, err)
	}

	return report
}

// ReportWarmupFailure records a warm-up that could not be attempted, such as
// one whose dims failed to parse.
func (r *Runner) ReportWarmupFailure(ctx context.Context, dims []int64, err error) WarmupReport {
	report := WarmupReport{
		Dims:    dims,
		Failure: &WarmupFailure{Dims: dims, Stage: StageBuild, Err: err},
	}
	r.finishWarmup(ctx, report)
	return report
}

func (r *Runner) finishWarmup(ctx context.Context, report WarmupReport) {
	if report.Failure != nil {
		r.logger.WarnContext(ctx, "warm-up failed",
			"dims", report.Dims,
			"stage", report.Failure.Stage,
			"error", report.Failure.Err,
		)
		r.observer.ObserveWarmup(report.Elapsed, report.Failure)
		return
	}

	r.logger.InfoContext(ctx, "warm-up complete",
		"dims", report.Dims,
		"size", report.Size,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	r.observer.ObserveWarmup(report.Elapsed, nil)
}
