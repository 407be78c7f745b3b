// Package inference runs warm-up and timed inference calls against an
// onnx.Session.
package inference

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/example/go-ort-harness/internal/inference"

// Observer receives the latency and outcome of every warm-up and inference
// call. err is nil on success.
type Observer interface {
	ObserveWarmup(elapsed time.Duration, err error)
	ObserveInference(elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveWarmup(time.Duration, error)    {}
func (nopObserver) ObserveInference(time.Duration, error) {}

// Runner holds no session state; one Runner may serve many sessions.
type Runner struct {
	logger   *slog.Logger
	now      func() time.Time
	observer Observer
	tracer   trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRand sets the source for warm-up and random inputs.
func WithRand(rng *rand.Rand) Option {
	return func(r *Runner) {
		if rng != nil {
			r.rng = rng
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:   slog.Default(),
		now:      time.Now,
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) since(start time.Time) time.Duration {
	d := r.now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
