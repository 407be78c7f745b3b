// Package bench provides benchmarking primitives for the ortharness bench command.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/example/go-ort-harness/internal/inference"
	"github.com/example/go-ort-harness/internal/onnx"
)

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// Inferer is the part of inference.Service that bench drives.
type Inferer interface {
	Infer(ctx context.Context, input *onnx.Tensor) (inference.Result, error)
}

// RunResult holds the timing of a single inference run.
type RunResult struct {
	Index    int
	Cold     bool // first call on a session that was not warmed up
	Duration time.Duration
}

// Run executes runs timed inferences of input on infer. When coldFirst is set
// the first run is flagged as the cold call.
func Run(ctx context.Context, infer Inferer, input *onnx.Tensor, runs int, coldFirst bool) ([]RunResult, error) {
	if runs < 1 {
		return nil, fmt.Errorf("runs must be at least 1, got %d", runs)
	}

	results := make([]RunResult, 0, runs)
	for i := range runs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := infer.Infer(ctx, input)
		if err != nil {
			return results, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		results = append(results, RunResult{
			Index:    i,
			Cold:     coldFirst && i == 0,
			Duration: res.Elapsed,
		})
	}
	return results, nil
}

// Durations extracts the per-run latencies.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}
	return out
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
}

// ComputeStats calculates min, max, mean and nearest-rank percentiles.
// An empty slice yields zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return Stats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: sum / time.Duration(len(sorted)),
		P50:  percentile(sorted, 50),
		P95:  percentile(sorted, 95),
	}
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p * float64(len(sorted)) / 100))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// ---------------------------------------------------------------------------
// Latency threshold gate
// ---------------------------------------------------------------------------

// CheckLatencyThreshold returns an error if mean > threshold.
// A threshold of 0 disables the gate.
func CheckLatencyThreshold(mean, threshold time.Duration) error {
	if threshold <= 0 {
		return nil
	}
	if mean > threshold {
		return fmt.Errorf("mean latency %s exceeds threshold %s", mean, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s\n", "Run", "Cold", "MS")
	fmt.Fprintln(sb, strings.Repeat("-", 24))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.3f\n", r.Index+1, cold, ms(r.Duration))
	}

	fmt.Fprintln(sb, strings.Repeat("-", 24))
	for _, row := range []struct {
		label string
		d     time.Duration
	}{
		{"min", stats.Min},
		{"p50", stats.P50},
		{"mean", stats.Mean},
		{"p95", stats.P95},
		{"max", stats.Max},
	} {
		fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (%s)\n", "", "", ms(row.d), row.label)
	}

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
	P50MS  float64 `json:"p50_ms"`
	P95MS  float64 `json:"p95_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:  ms(stats.Min),
			MeanMS: ms(stats.Mean),
			MaxMS:  ms(stats.Max),
			P50MS:  ms(stats.P50),
			P95MS:  ms(stats.P95),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
