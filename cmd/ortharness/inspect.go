package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/go-ort-harness/internal/onnx"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [model]",
		Short: "Print a model's inputs and outputs as the runtime loads them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			path := cfg.Paths.ModelPath
			if len(args) == 1 {
				path = args[0]
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read model: %w", err)
			}
			info, err := onnx.InspectModel(cfg.Runtime, data)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", path, err)
			}

			return writeModelInfo(cmd.OutOrStdout(), path, info)
		},
	}
}

func writeModelInfo(w io.Writer, path string, info onnx.ModelInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "model:\t%s\n", path)
	if info.Producer != "" {
		fmt.Fprintf(tw, "producer:\t%s\n", info.Producer)
	}
	fmt.Fprintf(tw, "version:\t%d\n", info.Version)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "KIND\tNAME\tTYPE\tSHAPE")
	for _, n := range info.Inputs {
		fmt.Fprintf(tw, "input\t%s\t%s\t%s\n", n.Name, orDash(n.DType), formatShape(n.Shape))
	}
	for _, n := range info.Outputs {
		fmt.Fprintf(tw, "output\t%s\t%s\t%s\n", n.Name, orDash(n.DType), formatShape(n.Shape))
	}

	return tw.Flush()
}

// formatShape prints dynamic dimensions as "?".
func formatShape(shape []int64) string {
	if shape == nil {
		return "-"
	}
	dims := make([]string, len(shape))
	for i, d := range shape {
		if d < 0 {
			dims[i] = "?"
			continue
		}
		dims[i] = strconv.FormatInt(d, 10)
	}
	return "[" + strings.Join(dims, ",") + "]"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
