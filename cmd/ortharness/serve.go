package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/example/go-ort-harness/internal/config"
	"github.com/example/go-ort-harness/internal/inference"
	"github.com/example/go-ort-harness/internal/metrics"
	"github.com/example/go-ort-harness/internal/server"
	"github.com/example/go-ort-harness/internal/tracing"
)

const serviceName = "ortharness"

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve inference over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	return cmd
}

func serve(ctx context.Context, cfg config.Config) (err error) {
	var (
		runnerOpts  []inference.Option
		handlerOpts = []server.Option{server.WithLogger(slog.Default())}
		m           *metrics.Metrics
	)

	if cfg.Telemetry.Tracing {
		shutdownTracing, initErr := tracing.Init(os.Stderr, serviceName, server.Version())
		if initErr != nil {
			return initErr
		}
		defer func() { err = errors.Join(err, shutdownTracing(context.Background())) }()
	}

	if cfg.Telemetry.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		m.SetUnhealthy()
		runnerOpts = append(runnerOpts, inference.WithObserver(m))
		handlerOpts = append(handlerOpts, server.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	svc, closeSvc, err := openService(ctx, cfg, runnerOpts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeSvc()) }()

	if m != nil {
		m.SetHealthy()
		defer m.SetUnhealthy()
	}

	info := svc.Info()
	slog.Info("serving inference",
		"addr", cfg.Server.ListenAddr,
		"model", info.ModelPath,
		"backend", info.Backend,
		"inputs", info.Inputs,
		"outputs", info.Outputs,
	)

	return server.New(cfg, svc, handlerOpts...).Start(ctx)
}
