package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/go-ort-harness/internal/config"
	"github.com/example/go-ort-harness/internal/inference"
	"github.com/example/go-ort-harness/internal/onnx"
)

// openService builds the runtime, session and warm-up for cfg. The returned
// closer releases the session and then the runtime.
func openService(ctx context.Context, cfg config.Config, opts ...inference.Option) (*inference.Service, func() error, error) {
	rt, err := onnx.NewRuntime(cfg.Runtime)
	if err != nil {
		return nil, nil, err
	}
	env := onnx.NewEnvironment(rt, onnx.EnvironmentOptions{})

	logger := slog.Default()
	factory := onnx.NewSessionFactory(env, onnx.WithFactoryLogger(logger))
	runner := inference.NewRunner(append([]inference.Option{inference.WithLogger(logger)}, opts...)...)

	svc, err := inference.NewService(ctx, cfg, factory, runner)
	if err != nil {
		return nil, nil, errors.Join(err, env.Shutdown())
	}

	closer := func() error {
		return errors.Join(svc.Close(), env.Shutdown())
	}
	return svc, closer, nil
}
