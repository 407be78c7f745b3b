package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-ort-harness/internal/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		inputPath string
		dims      string
		runs      int
		format    string
		threshold time.Duration
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark inference latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			svc, closeSvc, err := openService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeSvc() }()

			input, err := resolveInput(svc, inputPath, dims, cfg.Warmup.Dims)
			if err != nil {
				return err
			}

			results, err := bench.Run(cmd.Context(), svc, input, runs, !cfg.Warmup.Enabled)
			if err != nil {
				return err
			}
			stats := bench.ComputeStats(bench.Durations(results))

			switch format {
			case "json":
				bench.FormatJSON(results, stats, cmd.OutOrStdout())
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckLatencyThreshold(stats.Mean, threshold)
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "JSON tensor file; random input when empty")
	cmd.Flags().StringVar(&dims, "dims", "", "Shape of the random input (defaults to --warmup-dims)")
	cmd.Flags().IntVar(&runs, "runs", 10, "Number of timed inference runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().DurationVar(&threshold, "latency-threshold", 0, "Exit non-zero if mean latency exceeds this value (0 = disabled)")

	return cmd
}
