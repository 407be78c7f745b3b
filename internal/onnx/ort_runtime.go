//go:build cgo

package onnx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/example/go-ort-harness/internal/config"
)

// ortRuntime drives ONNX Runtime through the cgo bindings. It is the only
// engine that can attach GPU execution providers.
type ortRuntime struct {
	cfg config.RuntimeConfig
}

func newORTRuntime(cfg config.RuntimeConfig) Runtime {
	return &ortRuntime{cfg: cfg}
}

func (r *ortRuntime) Initialize() (RuntimeInfo, error) {
	info, err := DetectRuntime(r.cfg)
	if err != nil {
		return info, err
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(info.LibraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return info, fmt.Errorf("initialize ONNX Runtime environment: %w", err)
		}
	}

	return info, nil
}

func (r *ortRuntime) Shutdown() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

func (r *ortRuntime) NewSession(model []byte, provider ProviderConfig) (Session, error) {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, newInitError(InitInvalidModel, provider.Backend, fmt.Errorf("read model signature: %w", err))
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		inputNames = append(inputNames, in.Name)
	}
	outputNames := make([]string, 0, len(outputs))
	for _, out := range outputs {
		outputNames = append(outputNames, out.Name)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, newInitError(InitRuntime, provider.Backend, fmt.Errorf("create session options: %w", err))
	}
	defer options.Destroy()

	if err := r.applyThreading(options); err != nil {
		return nil, newInitError(InitRuntime, provider.Backend, err)
	}
	if err := appendProvider(options, provider); err != nil {
		return nil, newInitError(InitBackendUnavailable, provider.Backend, err)
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(model, inputNames, outputNames, options)
	if err != nil {
		return nil, newInitError(InitRuntime, provider.Backend, fmt.Errorf("create session: %w", err))
	}

	return &ortSession{
		session:     session,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Inspect reads the model signature and metadata through temporary
// runtime sessions.
func (r *ortRuntime) Inspect(model []byte) (ModelInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("read model signature: %w", err)
	}

	meta, err := ort.GetModelMetadataWithONNXData(model)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("read model metadata: %w", err)
	}
	defer func() { _ = meta.Destroy() }()

	info := ModelInfo{
		Inputs:  ortNodeInfos(inputs),
		Outputs: ortNodeInfos(outputs),
	}
	if info.Producer, err = meta.GetProducerName(); err != nil {
		return ModelInfo{}, fmt.Errorf("read producer name: %w", err)
	}
	if info.Version, err = meta.GetVersion(); err != nil {
		return ModelInfo{}, fmt.Errorf("read model version: %w", err)
	}
	return info, nil
}

func ortNodeInfos(infos []ort.InputOutputInfo) []NodeInfo {
	nodes := make([]NodeInfo, 0, len(infos))
	for _, in := range infos {
		nodes = append(nodes, NodeInfo{
			Name:  in.Name,
			DType: elementTypeName(in.DataType),
			Shape: []int64(in.Dimensions),
		})
	}
	return nodes
}

func elementTypeName(t ort.TensorElementDataType) string {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return "float32"
	case ort.TensorElementDataTypeDouble:
		return "float64"
	default:
		return strings.ToLower(strings.TrimPrefix(t.String(), "ONNX_TENSOR_ELEMENT_DATA_TYPE_"))
	}
}

func (r *ortRuntime) applyThreading(options *ort.SessionOptions) error {
	if r.cfg.Threads > 0 {
		if err := options.SetIntraOpNumThreads(r.cfg.Threads); err != nil {
			return fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	if r.cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(r.cfg.InterOpThreads); err != nil {
			return fmt.Errorf("set inter-op threads: %w", err)
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fmt.Errorf("set graph optimization level: %w", err)
	}
	return nil
}

func appendProvider(options *ort.SessionOptions, provider ProviderConfig) error {
	if provider.Backend != BackendGPU {
		return nil
	}

	switch provider.Accelerator {
	case config.AcceleratorCoreML:
		return options.AppendExecutionProviderCoreML(0)
	case "", config.AcceleratorCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("create CUDA provider options: %w", err)
		}
		defer cuda.Destroy()

		settings := map[string]string{"device_id": strconv.Itoa(provider.DeviceID)}
		for k, v := range provider.Options {
			settings[k] = v
		}
		if err := cuda.Update(settings); err != nil {
			return fmt.Errorf("update CUDA provider options: %w", err)
		}
		return options.AppendExecutionProviderCUDA(cuda)
	default:
		return fmt.Errorf("unsupported gpu accelerator %q", provider.Accelerator)
	}
}

type ortSession struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

func (s *ortSession) InputNames() []string {
	return append([]string(nil), s.inputNames...)
}

func (s *ortSession) OutputNames() []string {
	return append([]string(nil), s.outputNames...)
}

// Run feeds every declared input and returns every declared output. The
// cgo call cannot be interrupted, so ctx is only checked before it starts.
func (s *ortSession) Run(ctx context.Context, feeds map[string]*Tensor) (map[string]*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	for name := range feeds {
		if !slices.Contains(s.inputNames, name) {
			return nil, fmt.Errorf("unknown input %q", name)
		}
	}

	inputs := make([]ort.Value, len(s.inputNames))
	defer destroyValues(inputs)
	for i, name := range s.inputNames {
		t, ok := feeds[name]
		if !ok {
			return nil, fmt.Errorf("missing input tensor %q", name)
		}
		v, err := tensorToORT(t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		inputs[i] = v
	}

	outputs := make([]ort.Value, len(s.outputNames))
	defer destroyValues(outputs)
	if err := s.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	results := make(map[string]*Tensor, len(outputs))
	for i, v := range outputs {
		t, err := ortToTensor(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", s.outputNames[i], err)
		}
		results[s.outputNames[i]] = t
	}

	return results, nil
}

// Close releases the native session. Safe to call multiple times.
func (s *ortSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

func tensorToORT(t *Tensor) (ort.Value, error) {
	shape := ort.NewShape(t.Shape()...)
	switch t.DType() {
	case DTypeFloat32:
		data, err := ExtractFloat32(t)
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(shape, data)
	case DTypeInt64:
		data, err := ExtractInt64(t)
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(shape, data)
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %s", t.DType())
	}
}

func ortToTensor(v ort.Value) (*Tensor, error) {
	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		return NewTensor(tv.GetData(), []int64(tv.GetShape()))
	case *ort.Tensor[int64]:
		return NewTensor(tv.GetData(), []int64(tv.GetShape()))
	case nil:
		return nil, errors.New("runtime returned no value")
	default:
		return nil, fmt.Errorf("unsupported output value %T", v)
	}
}

func destroyValues(vals []ort.Value) {
	for _, v := range vals {
		if v != nil {
			_ = v.Destroy()
		}
	}
}
