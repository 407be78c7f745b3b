package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Warmup    WarmupConfig    `mapstructure:"warmup"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	LogLevel  string          `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath string `mapstructure:"model_path"`
}

type RuntimeConfig struct {
	Engine         string `mapstructure:"engine"`
	Backend        string `mapstructure:"backend"`
	GPUAccelerator string `mapstructure:"gpu_accelerator"`
	GPUDeviceID    int    `mapstructure:"gpu_device_id"`
	Threads        int    `mapstructure:"threads"`
	InterOpThreads int    `mapstructure:"inter_op_threads"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  int    `mapstructure:"ort_api_version"`
}

// WarmupConfig controls the throwaway inference made right after the session
// is created. Dims is a comma separated shape such as "1,3,224,224".
type WarmupConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dims    string `mapstructure:"dims"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

type TelemetryConfig struct {
	Metrics bool `mapstructure:"metrics"`
	Tracing bool `mapstructure:"tracing"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath: "models/model.onnx",
		},
		Runtime: RuntimeConfig{
			Engine:         EngineORT,
			Backend:        BackendCPU,
			GPUAccelerator: AcceleratorCUDA,
			GPUDeviceID:    0,
			Threads:        4,
			InterOpThreads: 1,
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
		},
		Warmup: WarmupConfig{
			Enabled: true,
			Dims:    "1,3,224,224",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			RequestTimeout:  30,
			ShutdownTimeout: 30,
			MaxBodyBytes:    64 << 20,
		},
		Telemetry: TelemetryConfig{
			Metrics: true,
			Tracing: false,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each CLI flag onto the config key it overrides.
var flagKeys = map[string]string{
	"model":            "paths.model_path",
	"engine":           "runtime.engine",
	"backend":          "runtime.backend",
	"gpu-accelerator":  "runtime.gpu_accelerator",
	"gpu-device-id":    "runtime.gpu_device_id",
	"threads":          "runtime.threads",
	"inter-op-threads": "runtime.inter_op_threads",
	"ort-lib":          "runtime.ort_library_path",
	"ort-version":      "runtime.ort_version",
	"ort-api-version":  "runtime.ort_api_version",
	"warmup":           "warmup.enabled",
	"warmup-dims":      "warmup.dims",
	"listen-addr":      "server.listen_addr",
	"request-timeout":  "server.request_timeout",
	"shutdown-timeout": "server.shutdown_timeout",
	"max-body-bytes":   "server.max_body_bytes",
	"metrics":          "telemetry.metrics",
	"tracing":          "telemetry.tracing",
	"log-level":        "log_level",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("model", defaults.Paths.ModelPath, "Path to the serialized ONNX model")
	fs.String("engine", defaults.Runtime.Engine, "Runtime binding: ort|purego")
	fs.String("backend", defaults.Runtime.Backend, "Execution backend: cpu|gpu")
	fs.String("gpu-accelerator", defaults.Runtime.GPUAccelerator, "GPU execution provider: cuda|coreml")
	fs.Int("gpu-device-id", defaults.Runtime.GPUDeviceID, "GPU device ordinal")
	fs.Int("threads", defaults.Runtime.Threads, "ONNX Runtime intra-op thread count")
	fs.Int("inter-op-threads", defaults.Runtime.InterOpThreads, "ONNX Runtime inter-op thread count")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Int("ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version used by the runtime probe")
	fs.Bool("warmup", defaults.Warmup.Enabled, "Run one warm-up inference after the session is created")
	fs.String("warmup-dims", defaults.Warmup.Dims, "Comma separated warm-up input shape")
	fs.String("listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Int64("max-body-bytes", defaults.Server.MaxBodyBytes, "Maximum accepted request body size")
	fs.Bool("metrics", defaults.Telemetry.Metrics, "Expose Prometheus metrics on /metrics")
	fs.Bool("tracing", defaults.Telemetry.Tracing, "Export inference spans to stderr")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("ORTHARNESS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if err := v.BindEnv("runtime.ort_library_path", "ORTHARNESS_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("ortharness")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("runtime.engine", c.Runtime.Engine)
	v.SetDefault("runtime.backend", c.Runtime.Backend)
	v.SetDefault("runtime.gpu_accelerator", c.Runtime.GPUAccelerator)
	v.SetDefault("runtime.gpu_device_id", c.Runtime.GPUDeviceID)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.inter_op_threads", c.Runtime.InterOpThreads)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("warmup.enabled", c.Warmup.Enabled)
	v.SetDefault("warmup.dims", c.Warmup.Dims)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("telemetry.metrics", c.Telemetry.Metrics)
	v.SetDefault("telemetry.tracing", c.Telemetry.Tracing)
	v.SetDefault("log_level", c.LogLevel)
}
