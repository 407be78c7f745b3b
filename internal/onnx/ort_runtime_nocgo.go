//go:build !cgo

package onnx

import (
	"errors"

	"github.com/example/go-ort-harness/internal/config"
)

var errNoCgo = errors.New("engine ort requires a cgo build; use --engine purego")

type ortRuntime struct{}

func newORTRuntime(config.RuntimeConfig) Runtime {
	return ortRuntime{}
}

func (ortRuntime) Initialize() (RuntimeInfo, error) {
	return RuntimeInfo{}, errNoCgo
}

func (ortRuntime) NewSession(_ []byte, provider ProviderConfig) (Session, error) {
	return nil, newInitError(InitBackendUnavailable, provider.Backend, errNoCgo)
}

func (ortRuntime) Inspect([]byte) (ModelInfo, error) {
	return ModelInfo{}, errNoCgo
}

func (ortRuntime) Shutdown() error {
	return nil
}
