package onnx

import (
	"errors"
	"fmt"

	"github.com/example/go-ort-harness/internal/config"
)

// NewRuntime returns the runtime binding named by cfg.Engine.
func NewRuntime(cfg config.RuntimeConfig) (Runtime, error) {
	engine, err := config.NormalizeEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}

	if engine == config.EnginePurego {
		return newPuregoRuntime(cfg), nil
	}
	return newORTRuntime(cfg), nil
}

// InspectModel starts the runtime named by cfg, reads model's signature and
// shuts the runtime down again.
func InspectModel(cfg config.RuntimeConfig, model []byte) (ModelInfo, error) {
	if len(model) == 0 {
		return ModelInfo{}, errors.New("model is empty")
	}

	rt, err := NewRuntime(cfg)
	if err != nil {
		return ModelInfo{}, err
	}
	return inspectWith(NewEnvironment(rt, EnvironmentOptions{}), model)
}

func inspectWith(env *Environment, model []byte) (info ModelInfo, err error) {
	if _, err := env.Init(); err != nil {
		return ModelInfo{}, fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if shutdownErr := env.Shutdown(); shutdownErr != nil && err == nil {
			err = fmt.Errorf("shutdown runtime: %w", shutdownErr)
		}
	}()

	return env.Runtime().Inspect(model)
}
