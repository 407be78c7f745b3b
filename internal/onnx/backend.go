package onnx

import (
	"fmt"
	"maps"

	"github.com/example/go-ort-harness/internal/config"
)

type Backend string

const (
	BackendCPU Backend = config.BackendCPU
	BackendGPU Backend = config.BackendGPU
)

// ProviderConfig selects the execution provider a session is created with.
// Exactly one backend applies per session.
type ProviderConfig struct {
	Backend Backend
	// Accelerator names the GPU execution provider (cuda or coreml). Ignored
	// for the CPU backend.
	Accelerator string
	DeviceID    int
	// Options are passed through to the GPU provider verbatim.
	Options map[string]string
}

func CPUConfig() ProviderConfig {
	return ProviderConfig{Backend: BackendCPU}
}

func GPUConfig() ProviderConfig {
	return ProviderConfig{Backend: BackendGPU, Accelerator: config.AcceleratorCUDA}
}

// ProviderConfigFor builds the provider selection described by the runtime
// configuration.
func ProviderConfigFor(cfg config.RuntimeConfig) (ProviderConfig, error) {
	backend, err := config.NormalizeBackend(cfg.Backend)
	if err != nil {
		return ProviderConfig{}, err
	}
	if backend == config.BackendCPU {
		return CPUConfig(), nil
	}

	acc, err := config.NormalizeAccelerator(cfg.GPUAccelerator)
	if err != nil {
		return ProviderConfig{}, err
	}
	p := GPUConfig()
	p.Accelerator = acc
	p.DeviceID = cfg.GPUDeviceID
	return p, nil
}

func (p ProviderConfig) Validate() error {
	switch p.Backend {
	case BackendCPU:
		return nil
	case BackendGPU:
		if _, err := config.NormalizeAccelerator(p.Accelerator); err != nil {
			return err
		}
		if p.DeviceID < 0 {
			return fmt.Errorf("gpu device id %d is negative", p.DeviceID)
		}
		return nil
	default:
		return fmt.Errorf("unknown backend %q", p.Backend)
	}
}

func (p ProviderConfig) String() string {
	if p.Backend == BackendGPU {
		acc := p.Accelerator
		if acc == "" {
			acc = config.AcceleratorCUDA
		}
		return fmt.Sprintf("gpu/%s:%d", acc, p.DeviceID)
	}
	return string(p.Backend)
}

func (p ProviderConfig) clone() ProviderConfig {
	p.Options = maps.Clone(p.Options)
	return p
}
