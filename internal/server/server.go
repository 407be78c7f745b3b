package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-ort-harness/internal/config"
	"github.com/example/go-ort-harness/internal/inference"
	"github.com/example/go-ort-harness/internal/onnx"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Inferer runs one timed inference on a loaded session.
type Inferer interface {
	Infer(ctx context.Context, input *onnx.Tensor) (inference.Result, error)
	Info() inference.ModelInfo
}

type options struct {
	maxBodyBytes   int64
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	metrics        http.Handler
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   64 << 20,
		workers:        1,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes caps the size of a POST /v1/infer body.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets how many requests may hold an inference slot at once.
// Zero disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request inference deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) { o.metrics = h }
}

type handler struct {
	infer Inferer
	opts  options
	sem   chan struct{}
	log   *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /v1/model,
// POST /v1/infer and, when configured, /metrics.
func NewHandler(infer Inferer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		infer: infer,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/v1/model", h.handleModel)
	mux.HandleFunc("/v1/infer", h.handleInfer)
	if opts.metrics != nil {
		mux.Handle("/metrics", opts.metrics)
	}
	return requestID(mux)
}

// Version reports the main module version from the build info, or "dev".
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version(),
	})
}

func (h *handler) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.infer.Info())
}

type inferResponse struct {
	Output    *onnx.Tensor `json:"output"`
	ElapsedMS int64        `json:"elapsed_ms"`
}

func (h *handler) handleInfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var input onnx.Tensor
	body := http.MaxBytesReader(w, r.Body, h.opts.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&input); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", h.opts.maxBodyBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid tensor: "+err.Error())
		return
	}

	// Honour cancellation while waiting for a slot.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	res, err := h.infer.Infer(ctx, &input)
	if err != nil {
		h.writeInferError(ctx, w, &input, err)
		return
	}

	h.log.InfoContext(ctx, "inference complete",
		slog.String("request_id", RequestIDFromContext(ctx)),
		slog.Any("shape", input.Shape()),
		slog.Int64("duration_ms", res.ElapsedMS()),
	)
	writeJSON(w, http.StatusOK, inferResponse{Output: res.Output, ElapsedMS: res.ElapsedMS()})
}

// writeInferError maps an Infer failure onto a status code. The execution
// error text is generic; the cause is already in the runner's log.
func (h *handler) writeInferError(ctx context.Context, w http.ResponseWriter, input *onnx.Tensor, err error) {
	attrs := []any{
		slog.String("request_id", RequestIDFromContext(ctx)),
		slog.Any("shape", input.Shape()),
		slog.String("error", err.Error()),
	}

	switch {
	case ctx.Err() != nil:
		h.log.WarnContext(ctx, "inference timed out", attrs...)
		writeError(w, http.StatusGatewayTimeout, "inference timed out")
	case errors.Is(err, inference.ErrServiceClosed):
		h.log.WarnContext(ctx, "inference rejected", attrs...)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.ErrorContext(ctx, "inference request failed", attrs...)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	infer           Inferer
	handlerOpts     []Option
	shutdownTimeout time.Duration
}

// New builds a server for infer. Extra handler options are applied after the
// ones derived from cfg.
func New(cfg config.Config, infer Inferer, opts ...Option) *Server {
	shutdown := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}
	return &Server{
		cfg:             cfg,
		infer:           infer,
		handlerOpts:     opts,
		shutdownTimeout: shutdown,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Handler returns the handler Start serves.
func (s *Server) Handler() http.Handler {
	var opts []Option
	if s.cfg.Server.MaxBodyBytes > 0 {
		opts = append(opts, WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes))
	}
	if s.cfg.Server.RequestTimeout > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second))
	}
	opts = append(opts, s.handlerOpts...)
	return NewHandler(s.infer, opts...)
}

func (s *Server) Start(ctx context.Context) error {
	if s.infer == nil {
		return errors.New("server has no inference service")
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
