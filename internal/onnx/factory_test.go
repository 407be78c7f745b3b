package onnx

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFactory(rt *fakeRuntime) *SessionFactory {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSessionFactory(NewEnvironment(rt, EnvironmentOptions{}), WithFactoryLogger(logger))
}

func requireInitKind(t *testing.T, err error, want InitErrorKind) *SessionInitError {
	t.Helper()

	if !errors.Is(err, ErrSessionInit) {
		t.Fatalf("expected ErrSessionInit, got %v", err)
	}
	var initErr *SessionInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *SessionInitError, got %T", err)
	}
	if initErr.Kind != want {
		t.Fatalf("kind = %s, want %s (err: %v)", initErr.Kind, want, err)
	}
	return initErr
}

func TestCreateSession_CPU(t *testing.T) {
	rt := &fakeRuntime{}
	f := newTestFactory(rt)

	s, err := f.CreateSession([]byte("model"), CPUConfig())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got := s.InputNames(); len(got) != 1 || got[0] != "input" {
		t.Fatalf("InputNames = %v", got)
	}
	if rt.lastProvider.Backend != BackendCPU {
		t.Fatalf("runtime saw backend %q, want cpu", rt.lastProvider.Backend)
	}
	if !bytes.Equal(rt.lastModel, []byte("model")) {
		t.Fatal("runtime did not receive model bytes")
	}
}

func TestCreateSession_GPUProviderPassedThrough(t *testing.T) {
	rt := &fakeRuntime{}
	f := newTestFactory(rt)

	p := GPUConfig()
	p.DeviceID = 1
	p.Options = map[string]string{"arena_extend_strategy": "kSameAsRequested"}
	if _, err := f.CreateSession([]byte("model"), p); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if rt.lastProvider.Backend != BackendGPU || rt.lastProvider.DeviceID != 1 {
		t.Fatalf("runtime saw %+v", rt.lastProvider)
	}

	p.Options["arena_extend_strategy"] = "changed"
	if rt.lastProvider.Options["arena_extend_strategy"] != "kSameAsRequested" {
		t.Fatal("provider options were not copied")
	}
}

func TestCreateSession_InitializesEnvironmentOnce(t *testing.T) {
	rt := &fakeRuntime{}
	f := newTestFactory(rt)

	for range 3 {
		if _, err := f.CreateSession([]byte("model"), CPUConfig()); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	if rt.initCalls.Load() != 1 {
		t.Fatalf("environment initialized %d times, want 1", rt.initCalls.Load())
	}
}

func TestCreateSession_Errors(t *testing.T) {
	tests := []struct {
		name     string
		rt       *fakeRuntime
		model    []byte
		provider ProviderConfig
		want     InitErrorKind
	}{
		{
			name:     "empty model",
			rt:       &fakeRuntime{},
			model:    nil,
			provider: CPUConfig(),
			want:     InitInvalidModel,
		},
		{
			name:     "unknown backend",
			rt:       &fakeRuntime{},
			model:    []byte("m"),
			provider: ProviderConfig{Backend: "tpu"},
			want:     InitBackendUnavailable,
		},
		{
			name:     "bad accelerator",
			rt:       &fakeRuntime{},
			model:    []byte("m"),
			provider: ProviderConfig{Backend: BackendGPU, Accelerator: "rocm"},
			want:     InitBackendUnavailable,
		},
		{
			name:     "environment failure",
			rt:       &fakeRuntime{initErr: errors.New("no library")},
			model:    []byte("m"),
			provider: CPUConfig(),
			want:     InitEnvironment,
		},
		{
			name:     "unclassified runtime failure",
			rt:       &fakeRuntime{sessionErr: errors.New("out of memory")},
			model:    []byte("m"),
			provider: CPUConfig(),
			want:     InitRuntime,
		},
		{
			name:     "classified runtime failure",
			rt:       &fakeRuntime{sessionErr: newInitError(InitBackendUnavailable, "", errors.New("no CUDA"))},
			model:    []byte("m"),
			provider: GPUConfig(),
			want:     InitBackendUnavailable,
		},
		{
			name:     "model without outputs",
			rt:       &fakeRuntime{session: &fakeSession{inputs: []string{"x"}}},
			model:    []byte("m"),
			provider: CPUConfig(),
			want:     InitInvalidModel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newTestFactory(tt.rt).CreateSession(tt.model, tt.provider)
			if s != nil {
				t.Fatalf("expected nil session, got %T", s)
			}
			initErr := requireInitKind(t, err, tt.want)
			if initErr.Backend != tt.provider.Backend {
				t.Fatalf("backend = %q, want %q", initErr.Backend, tt.provider.Backend)
			}
		})
	}
}

func TestCreateSession_ClosesRejectedSession(t *testing.T) {
	sess := &fakeSession{outputs: []string{"y"}}
	_, err := newTestFactory(&fakeRuntime{session: sess}).CreateSession([]byte("m"), CPUConfig())
	requireInitKind(t, err, InitInvalidModel)
	if !sess.closed {
		t.Fatal("session without inputs was not closed")
	}
}

func TestCreateSession_NilEnvironment(t *testing.T) {
	_, err := NewSessionFactory(nil).CreateSession([]byte("m"), CPUConfig())
	requireInitKind(t, err, InitEnvironment)
}

func TestLoadSession(t *testing.T) {
	rt := &fakeRuntime{}
	f := newTestFactory(rt)

	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(path, []byte("serialized"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if _, err := f.LoadSession(path, CPUConfig()); err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if string(rt.lastModel) != "serialized" {
		t.Fatalf("runtime saw %q", rt.lastModel)
	}

	_, err := f.LoadSession(filepath.Join(t.TempDir(), "missing.onnx"), CPUConfig())
	requireInitKind(t, err, InitInvalidModel)
}

func TestSessionInitErrorMessage(t *testing.T) {
	err := newInitError(InitBackendUnavailable, BackendGPU, errors.New("CUDA not found"))
	msg := err.Error()
	for _, want := range []string{"gpu", "backend unavailable", "CUDA not found"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
	if errors.Unwrap(err) == nil {
		t.Error("SessionInitError does not unwrap its cause")
	}
}
