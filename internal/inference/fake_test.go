package inference

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/example/go-ort-harness/internal/onnx"
)

// fakeSession records every feed map and answers through runFn.
type fakeSession struct {
	inputs  []string
	outputs []string
	runFn   func(ctx context.Context, feeds map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error)

	mu     sync.Mutex
	calls  []map[string]*onnx.Tensor
	closed bool
}

func newEchoSession(inputs, outputs []string) *fakeSession {
	s := &fakeSession{inputs: inputs, outputs: outputs}
	s.runFn = func(_ context.Context, feeds map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
		out := make(map[string]*onnx.Tensor, len(outputs))
		for _, name := range outputs {
			out[name] = feeds[inputs[0]]
		}
		return out, nil
	}
	return s
}

func (s *fakeSession) InputNames() []string  { return s.inputs }
func (s *fakeSession) OutputNames() []string { return s.outputs }

func (s *fakeSession) Run(ctx context.Context, feeds map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	s.mu.Lock()
	s.calls = append(s.calls, feeds)
	s.mu.Unlock()
	return s.runFn(ctx, feeds)
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeClock only moves when advanced.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type observation struct {
	warmup  bool
	elapsed time.Duration
	err     error
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *recordingObserver) ObserveWarmup(elapsed time.Duration, err error) {
	o.mu.Lock()
	o.seen = append(o.seen, observation{warmup: true, elapsed: elapsed, err: err})
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveInference(elapsed time.Duration, err error) {
	o.mu.Lock()
	o.seen = append(o.seen, observation{elapsed: elapsed, err: err})
	o.mu.Unlock()
}

// newTestRunner returns a seeded Runner and the buffer its JSON logs go to.
func newTestRunner(opts ...Option) (*Runner, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{WithLogger(logger), WithRand(rand.New(rand.NewPCG(1, 2)))}
	return NewRunner(append(base, opts...)...), &logs
}

func mustTensor(data []float32, shape ...int64) *onnx.Tensor {
	t, err := onnx.NewTensor(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}
