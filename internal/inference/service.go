package inference

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/example/go-ort-harness/internal/config"
	"github.com/example/go-ort-harness/internal/onnx"
)

var ErrServiceClosed = errors.New("inference service is closed")

// ModelInfo describes the session a Service serves.
type ModelInfo struct {
	ModelPath string        `json:"model_path"`
	Backend   string        `json:"backend"`
	Inputs    []string      `json:"inputs"`
	Outputs   []string      `json:"outputs"`
	Warmup    *WarmupReport `json:"warmup,omitempty"`
}

// Service owns one session and serializes every call on it. The fields
// above mu are fixed after NewService returns.
type Service struct {
	runner    *Runner
	provider  onnx.ProviderConfig
	modelPath string
	inputs    []string
	outputs   []string
	warmup    *WarmupReport

	mu      sync.Mutex
	session onnx.Session
}

// NewService loads cfg.Paths.ModelPath, creates a session for the configured
// backend and, when enabled, warms it up. A failed warm-up does not fail
// construction.
func NewService(ctx context.Context, cfg config.Config, factory *onnx.SessionFactory, runner *Runner) (*Service, error) {
	provider, err := onnx.ProviderConfigFor(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("select backend: %w", err)
	}

	session, err := factory.LoadSession(cfg.Paths.ModelPath, provider)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		runner:    runner,
		provider:  provider,
		modelPath: cfg.Paths.ModelPath,
		inputs:    session.InputNames(),
		outputs:   session.OutputNames(),
		session:   session,
	}

	if cfg.Warmup.Enabled {
		var report WarmupReport
		dims, err := config.ParseDims(cfg.Warmup.Dims)
		if err != nil {
			report = runner.ReportWarmupFailure(ctx, nil, fmt.Errorf("parse warm-up dims %q: %w", cfg.Warmup.Dims, err))
		} else {
			report = runner.Warmup(ctx, session, dims)
		}
		svc.warmup = &report
	}

	return svc, nil
}

func (s *Service) Infer(ctx context.Context, input *onnx.Tensor) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Result{}, ErrServiceClosed
	}
	return s.runner.Run(ctx, s.session, input)
}

// RandomInput returns a uniform [-1, 1) tensor of shape dims.
func (s *Service) RandomInput(dims []int64) (*onnx.Tensor, error) {
	return s.runner.RandomTensor(dims)
}

// Info describes the loaded model. It does not wait for a running Infer.
func (s *Service) Info() ModelInfo {
	return ModelInfo{
		ModelPath: s.modelPath,
		Backend:   s.provider.String(),
		Inputs:    slices.Clone(s.inputs),
		Outputs:   slices.Clone(s.outputs),
		Warmup:    s.warmup,
	}
}

// Close releases the session. Later calls to Infer return ErrServiceClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}
