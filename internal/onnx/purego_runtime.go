package onnx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"

	"github.com/example/go-ort-harness/internal/config"
)

const defaultAPIVersion = 23

// puregoRuntime loads the ONNX Runtime shared library without cgo. GPU
// providers are appended by name only, so device ids and provider options
// need the ort engine.
type puregoRuntime struct {
	cfg config.RuntimeConfig

	mu      sync.Mutex
	runtime *ort.Runtime
	env     *ort.Env
}

func newPuregoRuntime(cfg config.RuntimeConfig) Runtime {
	return &puregoRuntime{cfg: cfg}
}

func (r *puregoRuntime) Initialize() (RuntimeInfo, error) {
	info, err := DetectRuntime(r.cfg)
	if err != nil {
		return info, err
	}

	runtime, env, err := openPurego(info.LibraryPath, apiVersion(r.cfg))
	if err != nil {
		return info, err
	}

	r.mu.Lock()
	r.runtime, r.env = runtime, env
	r.mu.Unlock()

	return info, nil
}

func (r *puregoRuntime) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.env != nil {
		r.env.Close()
		r.env = nil
	}

	if r.runtime != nil {
		err := r.runtime.Close()
		r.runtime = nil
		return err
	}

	return nil
}

func (r *puregoRuntime) NewSession(model []byte, provider ProviderConfig) (Session, error) {
	options, err := puregoSessionOptions(r.cfg, provider)
	if err != nil {
		return nil, newInitError(InitBackendUnavailable, provider.Backend, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runtime == nil {
		return nil, newInitError(InitEnvironment, provider.Backend, errors.New("runtime is not initialized"))
	}

	session, err := r.runtime.NewSessionFromReader(r.env, bytes.NewReader(model), options)
	if err != nil {
		return nil, newInitError(classifyPuregoSessionError(err), provider.Backend, err)
	}

	return &puregoSession{
		runtime:     r.runtime,
		session:     session,
		inputNames:  session.InputNames(),
		outputNames: session.OutputNames(),
	}, nil
}

// Inspect reports input and output names. The library exposes no element
// types or shapes, so those stay empty.
func (r *puregoRuntime) Inspect(model []byte) (ModelInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runtime == nil {
		return ModelInfo{}, errors.New("runtime is not initialized")
	}

	session, err := r.runtime.NewSessionFromReader(r.env, bytes.NewReader(model), nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("read model signature: %w", err)
	}
	defer session.Close()

	return ModelInfo{
		Inputs:  namedNodes(session.InputNames()),
		Outputs: namedNodes(session.OutputNames()),
	}, nil
}

func namedNodes(names []string) []NodeInfo {
	nodes := make([]NodeInfo, 0, len(names))
	for _, n := range names {
		nodes = append(nodes, NodeInfo{Name: n})
	}
	return nodes
}

func puregoSessionOptions(cfg config.RuntimeConfig, provider ProviderConfig) (*ort.SessionOptions, error) {
	options := &ort.SessionOptions{IntraOpNumThreads: cfg.Threads}
	if provider.Backend != BackendGPU {
		return options, nil
	}

	if provider.DeviceID != 0 || len(provider.Options) > 0 {
		return nil, fmt.Errorf("engine %s cannot pass a device id or provider options", config.EnginePurego)
	}

	switch provider.Accelerator {
	case "", config.AcceleratorCUDA:
		options.ExecutionProviders = []string{"CUDAExecutionProvider"}
	case config.AcceleratorCoreML:
		options.ExecutionProviders = []string{"CoreMLExecutionProvider"}
	default:
		return nil, fmt.Errorf("unsupported gpu accelerator %q", provider.Accelerator)
	}
	return options, nil
}

// classifyPuregoSessionError separates provider setup failures from models
// the runtime refuses to load.
func classifyPuregoSessionError(err error) InitErrorKind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "execution provider"):
		return InitBackendUnavailable
	case strings.Contains(msg, "session options"), strings.Contains(msg, "num threads"):
		return InitRuntime
	case strings.Contains(msg, "failed to create session"), strings.Contains(msg, "model data"):
		return InitInvalidModel
	default:
		return InitRuntime
	}
}

type puregoSession struct {
	mu          sync.Mutex
	runtime     *ort.Runtime
	session     *ort.Session
	inputNames  []string
	outputNames []string
}

func (s *puregoSession) InputNames() []string {
	return append([]string(nil), s.inputNames...)
}

func (s *puregoSession) OutputNames() []string {
	return append([]string(nil), s.outputNames...)
}

func (s *puregoSession) Run(ctx context.Context, feeds map[string]*Tensor) (map[string]*Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	inputs := make(map[string]*ort.Value, len(feeds))
	defer closePuregoValues(inputs)
	for name, t := range feeds {
		v, err := tensorToPurego(s.runtime, t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		inputs[name] = v
	}

	outputs, err := s.session.Run(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	defer closePuregoValues(outputs)

	results := make(map[string]*Tensor, len(outputs))
	for name, v := range outputs {
		t, err := tensorFromPurego(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		results[name] = t
	}

	return results, nil
}

// Close releases the session. Safe to call multiple times.
func (s *puregoSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	return nil
}

// ProbeLibrary checks that the configured shared library can be opened and
// an environment created, then releases both.
func ProbeLibrary(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	info, err := DetectRuntime(cfg)
	if err != nil {
		return info, err
	}

	runtime, env, err := openPurego(info.LibraryPath, apiVersion(cfg))
	if err != nil {
		return info, err
	}
	env.Close()
	if err := runtime.Close(); err != nil {
		return info, fmt.Errorf("close ort runtime: %w", err)
	}

	return info, nil
}

func openPurego(libraryPath string, api uint32) (*ort.Runtime, *ort.Env, error) {
	runtime, err := ort.NewRuntime(libraryPath, api)
	if err != nil {
		return nil, nil, fmt.Errorf("ort runtime: %w", err)
	}

	env, err := runtime.NewEnv("ortharness", ort.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()
		return nil, nil, fmt.Errorf("ort env: %w", err)
	}

	return runtime, env, nil
}

func apiVersion(cfg config.RuntimeConfig) uint32 {
	if cfg.ORTAPIVersion <= 0 {
		return defaultAPIVersion
	}
	return uint32(cfg.ORTAPIVersion)
}

func tensorToPurego(runtime *ort.Runtime, t *Tensor) (*ort.Value, error) {
	switch t.DType() {
	case DTypeFloat32:
		data, err := ExtractFloat32(t)
		if err != nil {
			return nil, err
		}
		return ort.NewTensorValue(runtime, data, t.Shape())
	case DTypeInt64:
		data, err := ExtractInt64(t)
		if err != nil {
			return nil, err
		}
		return ort.NewTensorValue(runtime, data, t.Shape())
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %s", t.DType())
	}
}

func tensorFromPurego(v *ort.Value) (*Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("get element type: %w", err)
	}

	switch elemType {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}
		return NewTensor(data, shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}
		return NewTensor(data, shape)
	default:
		return nil, fmt.Errorf("unsupported ORT element type %d", elemType)
	}
}

func closePuregoValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
