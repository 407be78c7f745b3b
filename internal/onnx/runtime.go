package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/example/go-ort-harness/internal/config"
)

type RuntimeInfo struct {
	LibraryPath string
	Version     string
	Initialized bool
}

// Runtime is the native inference engine behind the harness. Initialize is
// called at most once per Environment; NewSession may be called many times.
type Runtime interface {
	Initialize() (RuntimeInfo, error)
	NewSession(model []byte, provider ProviderConfig) (Session, error)
	// Inspect reports the graph signature the runtime sees for model.
	Inspect(model []byte) (ModelInfo, error)
	Shutdown() error
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

// EnvironmentOptions holds process-wide runtime settings applied before the
// runtime is initialized.
type EnvironmentOptions struct {
	// Configure runs once, before Runtime.Initialize. nil means no settings.
	Configure func() error
}

// Environment guards one-time initialization of a Runtime. Init is safe for
// concurrent use and memoizes both success and failure.
type Environment struct {
	rt   Runtime
	opts EnvironmentOptions

	once        sync.Once
	info        RuntimeInfo
	err         error
	initialized atomic.Bool
	shutdown    atomic.Bool
}

func NewEnvironment(rt Runtime, opts EnvironmentOptions) *Environment {
	return &Environment{rt: rt, opts: opts}
}

func (e *Environment) Runtime() Runtime {
	return e.rt
}

func (e *Environment) Init() (RuntimeInfo, error) {
	e.once.Do(func() {
		if e.rt == nil {
			e.err = errors.New("no runtime configured")
			return
		}
		if e.opts.Configure != nil {
			if err := e.opts.Configure(); err != nil {
				e.err = fmt.Errorf("configure runtime environment: %w", err)
				return
			}
		}

		info, err := e.rt.Initialize()
		if err != nil {
			e.err = err
			return
		}

		e.info = info
		e.info.Initialized = true
		e.initialized.Store(true)
	})

	if e.err != nil {
		return RuntimeInfo{}, e.err
	}

	return e.info, nil
}

// Shutdown releases the runtime. It is a no-op when Init never succeeded and
// only the first call reaches the runtime.
func (e *Environment) Shutdown() error {
	if !e.initialized.Load() {
		return nil
	}

	if e.shutdown.Swap(true) {
		return nil
	}

	return e.rt.Shutdown()
}

func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	path := cfg.ORTLibraryPath
	if path == "" {
		path = os.Getenv("ORTHARNESS_ORT_LIB")
	}

	if path == "" {
		path = os.Getenv("ORT_LIBRARY_PATH")
	}

	if path == "" {
		candidates := []string{
			"/usr/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"C:/onnxruntime/lib/onnxruntime.dll",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return RuntimeInfo{LibraryPath: "not found", Version: "unknown"}, errors.New("unable to detect ONNX Runtime library path")
	}

	if _, err := os.Stat(path); err != nil {
		return RuntimeInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("onnx runtime library path check failed: %w", err)
	}

	version := cfg.ORTVersion
	if version == "" {
		version = os.Getenv("ORT_VERSION")
	}

	if version == "" {
		version = inferVersionFromPath(path)
	}

	if version == "" {
		version = "unknown"
	}

	return RuntimeInfo{LibraryPath: path, Version: version}, nil
}

func inferVersionFromPath(path string) string {
	name := filepath.Base(path)
	if m := versionPattern.FindStringSubmatch(name); len(m) == 2 {
		return m[1]
	}

	return ""
}
