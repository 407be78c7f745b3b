package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults.
func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	return &fakeBinder{fs: fs}
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.ModelPath != "models/model.onnx" {
		t.Errorf("ModelPath = %q; want %q", cfg.Paths.ModelPath, "models/model.onnx")
	}

	if cfg.Runtime.Backend != "cpu" {
		t.Errorf("Runtime.Backend = %q; want cpu", cfg.Runtime.Backend)
	}

	if cfg.Runtime.GPUAccelerator != "cuda" {
		t.Errorf("Runtime.GPUAccelerator = %q; want cuda", cfg.Runtime.GPUAccelerator)
	}

	if cfg.Runtime.Threads != 4 {
		t.Errorf("Runtime.Threads = %d; want 4", cfg.Runtime.Threads)
	}

	if cfg.Runtime.ORTAPIVersion != 23 {
		t.Errorf("Runtime.ORTAPIVersion = %d; want 23", cfg.Runtime.ORTAPIVersion)
	}

	if !cfg.Warmup.Enabled {
		t.Error("Warmup.Enabled = false; want true")
	}

	if cfg.Warmup.Dims != "1,3,224,224" {
		t.Errorf("Warmup.Dims = %q; want %q", cfg.Warmup.Dims, "1,3,224,224")
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":8080")
	}

	if cfg.Server.MaxBodyBytes != 64<<20 {
		t.Errorf("Server.MaxBodyBytes = %d; want %d", cfg.Server.MaxBodyBytes, 64<<20)
	}

	if !cfg.Telemetry.Metrics || cfg.Telemetry.Tracing {
		t.Errorf("Telemetry = %+v; want metrics on, tracing off", cfg.Telemetry)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}
}

// --- NormalizeBackend ---

func TestNormalizeBackend(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"cpu lowercase", "cpu", "cpu", false},
		{"gpu uppercase", "GPU", "gpu", false},
		{"wasm alias", "wasm", "cpu", false},
		{"webgl alias", "webgl", "gpu", false},
		{"cuda alias with spaces", "  cuda ", "gpu", false},
		{"empty defaults to cpu", "", "cpu", false},
		{"whitespace defaults to cpu", "   ", "cpu", false},
		{"invalid value", "tpu", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBackend(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeBackend(%q) = %q, nil; want error", tt.input, got)
				}

				return
			}

			if err != nil {
				t.Errorf("NormalizeBackend(%q) unexpected error: %v", tt.input, err)
				return
			}

			if got != tt.want {
				t.Errorf("NormalizeBackend(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeAccelerator(t *testing.T) {
	if got, err := NormalizeAccelerator(""); err != nil || got != AcceleratorCUDA {
		t.Errorf("NormalizeAccelerator(\"\") = %q, %v; want cuda", got, err)
	}

	if got, err := NormalizeAccelerator("CoreML"); err != nil || got != AcceleratorCoreML {
		t.Errorf("NormalizeAccelerator(CoreML) = %q, %v; want coreml", got, err)
	}

	if _, err := NormalizeAccelerator("rocm"); err == nil {
		t.Error("NormalizeAccelerator(rocm) = nil error; want error")
	}
}

func TestNormalizeEngine(t *testing.T) {
	for raw, want := range map[string]string{"": EngineORT, "ORT": EngineORT, " purego ": EnginePurego} {
		got, err := NormalizeEngine(raw)
		if err != nil || got != want {
			t.Errorf("NormalizeEngine(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}

	if _, err := NormalizeEngine("tflite"); err == nil {
		t.Error("NormalizeEngine(tflite) = nil error; want error")
	}
}

// --- ParseDims ---

func TestParseDims(t *testing.T) {
	tests := []struct {
		input   string
		want    []int64
		wantErr bool
	}{
		{"1,3,224,224", []int64{1, 3, 224, 224}, false},
		{" 1, 4 ", []int64{1, 4}, false},
		{"[2,2]", []int64{2, 2}, false},
		{"1,0,3", []int64{1, 0, 3}, false},
		{"", nil, true},
		{"1,-2", nil, true},
		{"1,x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDims(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDims(%q) = %v, nil; want error", tt.input, got)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseDims(%q) unexpected error: %v", tt.input, err)
			}

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDims(%q) = %v; want %v", tt.input, got, tt.want)
			}
		})
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	checks := []struct {
		flag string
		want string
	}{
		{"model", "models/model.onnx"},
		{"backend", "cpu"},
		{"warmup-dims", "1,3,224,224"},
		{"listen-addr", ":8080"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}

	for name := range flagKeys {
		if fs.Lookup(name) == nil {
			t.Errorf("flagKeys entry %q has no registered flag", name)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	// Empty env values are treated as unset by viper.
	t.Setenv("ORT_LIBRARY_PATH", "")
	t.Setenv("ORTHARNESS_ORT_LIB", "")

	defaults := DefaultConfig()
	binder := newFlagBinder(defaults)

	cfg, err := Load(LoadOptions{
		Cmd:      binder,
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(cfg, defaults) {
		t.Errorf("Load() = %+v; want %+v", cfg, defaults)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	err := fs.Parse([]string{
		"--backend=gpu",
		"--threads=8",
		"--warmup=false",
		"--warmup-dims=1,4",
		"--log-level=debug",
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg, err := Load(LoadOptions{
		Cmd:      &fakeBinder{fs: fs},
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.Backend != "gpu" {
		t.Errorf("Runtime.Backend = %q; want %q", cfg.Runtime.Backend, "gpu")
	}

	if cfg.Runtime.Threads != 8 {
		t.Errorf("Runtime.Threads = %d; want 8", cfg.Runtime.Threads)
	}

	if cfg.Warmup.Enabled {
		t.Error("Warmup.Enabled = true; want false")
	}

	if cfg.Warmup.Dims != "1,4" {
		t.Errorf("Warmup.Dims = %q; want %q", cfg.Warmup.Dims, "1,4")
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ORTHARNESS_LOG_LEVEL", "warn")
	t.Setenv("ORTHARNESS_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("ORTHARNESS_RUNTIME_THREADS", "2")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":9999")
	}

	if cfg.Runtime.Threads != 2 {
		t.Errorf("Runtime.Threads = %d; want 2", cfg.Runtime.Threads)
	}
}

func TestLoad_ORTLibraryEnvFallback(t *testing.T) {
	t.Setenv("ORT_LIBRARY_PATH", "/opt/ort/libonnxruntime.so")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.ORTLibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Errorf("Runtime.ORTLibraryPath = %q; want env value", cfg.Runtime.ORTLibraryPath)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "ortharness.yaml")

	content := `
log_level: error
runtime:
  backend: gpu
  gpu_device_id: 1
warmup:
  dims: "1,16"
server:
  listen_addr: ":7777"
`

	err := os.WriteFile(cfgFile, []byte(content), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}

	if cfg.Runtime.Backend != "gpu" || cfg.Runtime.GPUDeviceID != 1 {
		t.Errorf("Runtime = %+v; want backend gpu on device 1", cfg.Runtime)
	}

	if cfg.Warmup.Dims != "1,16" {
		t.Errorf("Warmup.Dims = %q; want %q", cfg.Warmup.Dims, "1,16")
	}

	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":7777")
	}

	if cfg.Runtime.Threads != defaults.Runtime.Threads {
		t.Errorf("Runtime.Threads = %d; want default %d", cfg.Runtime.Threads, defaults.Runtime.Threads)
	}
}

func TestLoad_FlagBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "ortharness.yaml")

	if err := os.WriteFile(cfgFile, []byte("runtime:\n  backend: gpu\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()
	binder := newFlagBinder(defaults)
	if err := binder.fs.Parse([]string{"--backend=cpu"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: binder, ConfigFile: cfgFile, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.Backend != "cpu" {
		t.Errorf("Runtime.Backend = %q; want cpu", cfg.Runtime.Backend)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bad.yaml")
	// Write invalid YAML
	err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/ortharness.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_NilCmd(t *testing.T) {
	cfg, err := Load(LoadOptions{
		Cmd:      nil,
		Defaults: DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.ModelPath != "models/model.onnx" {
		t.Errorf("ModelPath = %q; want default", cfg.Paths.ModelPath)
	}
}
