package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// SessionFactory turns serialized models into ready-to-run sessions on top of
// a shared Environment.
type SessionFactory struct {
	env    *Environment
	logger *slog.Logger
}

type FactoryOption func(*SessionFactory)

func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *SessionFactory) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewSessionFactory(env *Environment, opts ...FactoryOption) *SessionFactory {
	f := &SessionFactory{env: env, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateSession initializes the environment on first use and creates one
// session bound to the selected provider. Every failure is a
// *SessionInitError.
func (f *SessionFactory) CreateSession(model []byte, provider ProviderConfig) (Session, error) {
	if len(model) == 0 {
		return nil, newInitError(InitInvalidModel, provider.Backend, errors.New("model bytes are empty"))
	}
	if err := provider.Validate(); err != nil {
		return nil, newInitError(InitBackendUnavailable, provider.Backend, err)
	}
	if f.env == nil {
		return nil, newInitError(InitEnvironment, provider.Backend, errors.New("no environment"))
	}

	info, err := f.env.Init()
	if err != nil {
		return nil, newInitError(InitEnvironment, provider.Backend, err)
	}

	session, err := f.env.Runtime().NewSession(model, provider.clone())
	if err != nil {
		return nil, classifyInitError(provider.Backend, err)
	}

	inputs, outputs := session.InputNames(), session.OutputNames()
	if len(inputs) == 0 || len(outputs) == 0 {
		_ = session.Close()
		return nil, newInitError(InitInvalidModel, provider.Backend,
			fmt.Errorf("model declares %d inputs and %d outputs; need at least one of each", len(inputs), len(outputs)))
	}

	f.logger.Info(
		"created inference session",
		"backend", provider.String(),
		"ort_version", info.Version,
		"inputs", inputs,
		"outputs", outputs,
		"model_bytes", len(model),
	)

	return session, nil
}

// LoadSession reads the model at path and calls CreateSession.
func (f *SessionFactory) LoadSession(path string, provider ProviderConfig) (Session, error) {
	model, err := os.ReadFile(path)
	if err != nil {
		return nil, newInitError(InitInvalidModel, provider.Backend, fmt.Errorf("read model %s: %w", path, err))
	}
	return f.CreateSession(model, provider)
}

func classifyInitError(backend Backend, err error) *SessionInitError {
	var initErr *SessionInitError
	if errors.As(err, &initErr) {
		if initErr.Backend == "" {
			initErr.Backend = backend
		}
		return initErr
	}
	return newInitError(InitRuntime, backend, err)
}
