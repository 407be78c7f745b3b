package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	BackendCPU = "cpu"
	BackendGPU = "gpu"
)

// EngineORT uses the cgo bindings; EnginePurego loads the shared library
// without cgo and supports only the CPU backend.
const (
	EngineORT    = "ort"
	EnginePurego = "purego"
)

const (
	AcceleratorCUDA   = "cuda"
	AcceleratorCoreML = "coreml"
)

// NormalizeBackend maps user input onto BackendCPU or BackendGPU. The names
// of the browser execution providers are accepted as aliases.
func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendCPU
	}
	switch backend {
	case BackendCPU, BackendGPU:
		return backend, nil
	case "wasm":
		return BackendCPU, nil
	case "webgl", "cuda":
		return BackendGPU, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s)",
			raw,
			BackendCPU,
			BackendGPU,
		)
	}
}

func NormalizeAccelerator(raw string) (string, error) {
	acc := strings.ToLower(strings.TrimSpace(raw))
	if acc == "" {
		acc = AcceleratorCUDA
	}
	switch acc {
	case AcceleratorCUDA, AcceleratorCoreML:
		return acc, nil
	default:
		return "", fmt.Errorf("invalid gpu accelerator %q (expected %s|%s)", raw, AcceleratorCUDA, AcceleratorCoreML)
	}
}

func NormalizeEngine(raw string) (string, error) {
	engine := strings.ToLower(strings.TrimSpace(raw))
	switch engine {
	case "", EngineORT:
		return EngineORT, nil
	case EnginePurego:
		return EnginePurego, nil
	default:
		return "", fmt.Errorf("invalid engine %q (expected %s|%s)", raw, EngineORT, EnginePurego)
	}
}

// ParseDims parses a comma separated shape. Dimensions must be >= 0; zero is
// accepted and yields an empty tensor downstream.
func ParseDims(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, fmt.Errorf("dims are empty")
	}

	parts := strings.Split(raw, ",")
	dims := make([]int64, 0, len(parts))
	for i, p := range parts {
		d, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dims[%d]=%q: %w", i, p, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("dims[%d]=%d is negative", i, d)
		}
		dims = append(dims, d)
	}
	return dims, nil
}
