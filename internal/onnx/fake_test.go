package onnx

import (
	"context"
	"sync/atomic"
)

type fakeRuntime struct {
	info       RuntimeInfo
	initErr    error
	sessionErr error
	session    *fakeSession
	model      ModelInfo
	inspectErr error

	initCalls     atomic.Int32
	shutdownCalls atomic.Int32
	lastModel     []byte
	lastProvider  ProviderConfig
}

func (r *fakeRuntime) Initialize() (RuntimeInfo, error) {
	r.initCalls.Add(1)
	return r.info, r.initErr
}

func (r *fakeRuntime) NewSession(model []byte, provider ProviderConfig) (Session, error) {
	r.lastModel = model
	r.lastProvider = provider
	if r.sessionErr != nil {
		return nil, r.sessionErr
	}
	if r.session == nil {
		return &fakeSession{inputs: []string{"input"}, outputs: []string{"output"}}, nil
	}
	return r.session, nil
}

func (r *fakeRuntime) Inspect(model []byte) (ModelInfo, error) {
	r.lastModel = model
	return r.model, r.inspectErr
}

func (r *fakeRuntime) Shutdown() error {
	r.shutdownCalls.Add(1)
	return nil
}

type fakeSession struct {
	inputs  []string
	outputs []string
	closed  bool
}

func (s *fakeSession) InputNames() []string  { return s.inputs }
func (s *fakeSession) OutputNames() []string { return s.outputs }

func (s *fakeSession) Run(_ context.Context, feeds map[string]*Tensor) (map[string]*Tensor, error) {
	out := make(map[string]*Tensor, len(s.outputs))
	for _, name := range s.outputs {
		out[name] = feeds[s.inputs[0]]
	}
	return out, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}
