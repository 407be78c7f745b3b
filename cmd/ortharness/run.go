package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-ort-harness/internal/config"
	"github.com/example/go-ort-harness/internal/onnx"
)

// randomSource builds a tensor of the requested shape.
type randomSource interface {
	RandomInput(dims []int64) (*onnx.Tensor, error)
}

func newRunCmd() *cobra.Command {
	var (
		inputPath string
		dims      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one timed inference and print the first output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
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

			res, err := svc.Infer(cmd.Context(), input)
			if err != nil {
				return err
			}

			return writeRunResult(cmd.OutOrStdout(), res.Output, res.ElapsedMS())
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "JSON tensor file ({\"dtype\",\"shape\",\"data\"}); random input when empty")
	cmd.Flags().StringVar(&dims, "dims", "", "Shape of the random input (defaults to --warmup-dims)")

	return cmd
}

// resolveInput reads the tensor at path, or builds a random one of dims
// (falling back to fallbackDims).
func resolveInput(src randomSource, path, dims, fallbackDims string) (*onnx.Tensor, error) {
	if path != "" {
		return readTensorFile(path)
	}
	if dims == "" {
		dims = fallbackDims
	}
	shape, err := config.ParseDims(dims)
	if err != nil {
		return nil, fmt.Errorf("parse input dims %q: %w", dims, err)
	}
	return src.RandomInput(shape)
}

func readTensorFile(path string) (*onnx.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var t onnx.Tensor
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode input %s: %w", path, err)
	}
	return &t, nil
}

func writeRunResult(w io.Writer, output *onnx.Tensor, elapsedMS int64) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Output    *onnx.Tensor `json:"output"`
		ElapsedMS int64        `json:"elapsed_ms"`
	}{output, elapsedMS})
}
