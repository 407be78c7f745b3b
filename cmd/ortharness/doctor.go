package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-ort-harness/internal/doctor"
	"github.com/example/go-ort-harness/internal/onnx"
)

func newDoctorCmd() *cobra.Command {
	var skipLibrary bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			checks := doctor.Config{
				ProbeLibrary: func() (onnx.RuntimeInfo, error) {
					return onnx.ProbeLibrary(cfg.Runtime)
				},
				SkipLibrary: skipLibrary,
				ModelPath:   cfg.Paths.ModelPath,
				Runtime:     cfg.Runtime,
				Warmup:      cfg.Warmup,
			}
			if !skipLibrary {
				checks.ReadModel = func(model []byte) (onnx.ModelInfo, error) {
					return onnx.InspectModel(cfg.Runtime, model)
				}
			}

			out := cmd.OutOrStdout()
			result := doctor.Run(checks, out)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&skipLibrary, "skip-library", false, "Skip loading the ONNX Runtime shared library")

	return cmd
}
