// Package doctor provides environment preflight checks for ortharness.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/example/go-ort-harness/internal/config"
	"github.com/example/go-ort-harness/internal/onnx"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// MinORTMinor is the oldest ONNX Runtime 1.x release the bindings accept.
const MinORTMinor = 17

// ProbeFunc locates and loads the ONNX Runtime shared library.
type ProbeFunc func() (onnx.RuntimeInfo, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ProbeLibrary loads the runtime library (onnx.ProbeLibrary in production).
	ProbeLibrary ProbeFunc
	// SkipLibrary skips the library check.
	SkipLibrary bool
	// ModelPath is the serialized model to verify. Empty skips the check.
	ModelPath string
	// ReadModel reports the graph signature the runtime sees for the model
	// bytes (onnx.InspectModel in production). Nil skips the graph check.
	ReadModel func([]byte) (onnx.ModelInfo, error)
	Runtime   config.RuntimeConfig
	Warmup    config.WarmupConfig
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- onnxruntime library ----------------------------------------------
	switch {
	case cfg.SkipLibrary:
		fmt.Fprintf(w, "%s onnxruntime library: skipped\n", PassMark)
	case cfg.ProbeLibrary == nil:
		res.fail("onnxruntime library: no probe configured")
		fmt.Fprintf(w, "%s onnxruntime library: no probe configured\n", FailMark)
	default:
		info, err := cfg.ProbeLibrary()
		if err != nil {
			res.fail(fmt.Sprintf("onnxruntime library: %v", err))
			fmt.Fprintf(w, "%s onnxruntime library: not loadable (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s onnxruntime library: %s\n", PassMark, info.LibraryPath)
			checkVersion(&res, w, info.Version)
		}
	}

	// ---- runtime selection ------------------------------------------------
	if engine, err := config.NormalizeEngine(cfg.Runtime.Engine); err != nil {
		res.fail(fmt.Sprintf("engine: %v", err))
		fmt.Fprintf(w, "%s engine: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s engine: %s\n", PassMark, engine)
	}

	if provider, err := onnx.ProviderConfigFor(cfg.Runtime); err != nil {
		res.fail(fmt.Sprintf("backend: %v", err))
		fmt.Fprintf(w, "%s backend: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s backend: %s\n", PassMark, provider)
	}

	// ---- model file -------------------------------------------------------
	if cfg.ModelPath != "" {
		checkModel(&res, w, cfg)
	}

	// ---- warm-up dims -----------------------------------------------------
	if !cfg.Warmup.Enabled {
		fmt.Fprintf(w, "%s warm-up: disabled\n", PassMark)
	} else if dims, err := config.ParseDims(cfg.Warmup.Dims); err != nil {
		res.fail(fmt.Sprintf("warm-up dims %q: %v", cfg.Warmup.Dims, err))
		fmt.Fprintf(w, "%s warm-up dims %q: %v\n", FailMark, cfg.Warmup.Dims, err)
	} else {
		fmt.Fprintf(w, "%s warm-up dims: %v\n", PassMark, dims)
	}

	return res
}

func checkVersion(res *Result, w io.Writer, ver string) {
	// DetectRuntime reports "unknown" when neither config nor file name
	// carries a version.
	if ver == "" || ver == "unknown" {
		fmt.Fprintf(w, "%s onnxruntime version: unknown\n", PassMark)
		return
	}
	if err := checkORTVersion(ver); err != nil {
		res.fail(fmt.Sprintf("onnxruntime version: %v", err))
		fmt.Fprintf(w, "%s onnxruntime version %s: %v\n", FailMark, ver, err)
		return
	}
	fmt.Fprintf(w, "%s onnxruntime version: %s\n", PassMark, ver)
}

func checkModel(res *Result, w io.Writer, cfg Config) {
	data, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		res.fail(fmt.Sprintf("model file %q: %v", cfg.ModelPath, err))
		fmt.Fprintf(w, "%s model file %s: not found\n", FailMark, cfg.ModelPath)
		return
	}
	if len(data) == 0 {
		res.fail(fmt.Sprintf("model file %q: empty", cfg.ModelPath))
		fmt.Fprintf(w, "%s model file %s: empty\n", FailMark, cfg.ModelPath)
		return
	}
	fmt.Fprintf(w, "%s model file: %s (%d bytes)\n", PassMark, cfg.ModelPath, len(data))

	if cfg.ReadModel == nil {
		fmt.Fprintf(w, "%s model graph: not checked without a runtime\n", PassMark)
		return
	}
	info, err := cfg.ReadModel(data)
	if err != nil {
		res.fail(fmt.Sprintf("model graph: %v", err))
		fmt.Fprintf(w, "%s model graph: %v\n", FailMark, err)
		return
	}
	if len(info.Inputs) == 0 || len(info.Outputs) == 0 {
		res.fail("model graph: needs at least one input and one output")
		fmt.Fprintf(w, "%s model graph: %d inputs, %d outputs\n", FailMark, len(info.Inputs), len(info.Outputs))
		return
	}
	fmt.Fprintf(w, "%s model graph: inputs %v, outputs %v\n", PassMark, info.InputNames(), info.OutputNames())
}

// checkORTVersion returns an error unless ver is 1.x with x >= MinORTMinor.
// ver is expected to be a string like "1.22.0".
func checkORTVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 1 {
		return fmt.Errorf("requires onnxruntime 1.x, got %d", major)
	}
	if minor < MinORTMinor {
		return fmt.Errorf("requires onnxruntime >=1.%d, got 1.%d", MinORTMinor, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(strings.TrimPrefix(ver, "v"), ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
