package onnx

import (
	"errors"
	"fmt"
)

// ErrSessionInit matches every *SessionInitError via errors.Is.
var ErrSessionInit = errors.New("session initialization failed")

type InitErrorKind int

const (
	// InitRuntime covers runtime rejections that fit no narrower kind.
	InitRuntime InitErrorKind = iota
	InitInvalidModel
	InitBackendUnavailable
	InitEnvironment
)

func (k InitErrorKind) String() string {
	switch k {
	case InitInvalidModel:
		return "invalid model"
	case InitBackendUnavailable:
		return "backend unavailable"
	case InitEnvironment:
		return "environment"
	default:
		return "runtime"
	}
}

type SessionInitError struct {
	Kind    InitErrorKind
	Backend Backend
	Err     error
}

func (e *SessionInitError) Error() string {
	backend := e.Backend
	if backend == "" {
		backend = "unknown"
	}
	return fmt.Sprintf("create %s session: %s: %v", backend, e.Kind, e.Err)
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}

func (e *SessionInitError) Is(target error) bool {
	return target == ErrSessionInit
}

func newInitError(kind InitErrorKind, backend Backend, err error) *SessionInitError {
	return &SessionInitError{Kind: kind, Backend: backend, Err: err}
}
