package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

// benchReport summarises per-evaluation latency in milliseconds
type benchReport struct {
	Iterations int     `json:"iterations"`
	Mean       float64 `json:"mean_ms"`
	StdDev     float64 `json:"stddev_ms"`
	Min        float64 `json:"min_ms"`
	P50        float64 `json:"p50_ms"`
	P90        float64 `json:"p90_ms"`
	P99        float64 `json:"p99_ms"`
	Max        float64 `json:"max_ms"`
}

func newBenchCmd(flags *globalFlags) *cobra.Command {
	var (
		iterations int
		warmup     int
		file       string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "bench [code]",
		Short: "Measure evaluation latency of a script",
		Long: `Evaluate the same script repeatedly in one context and report latency
statistics. Repeated runs hit the compiled program cache after the first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if iterations <= 0 {
				return fmt.Errorf("iterations must be positive, got %d", iterations)
			}
			code, err := readSource(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, c, err := flags.openContext(ctx)
			if err != nil {
				return err
			}
			defer rt.Dispose()

			for i := 0; i < warmup; i++ {
				if _, err := c.EvalContext(ctx, code); err != nil {
					return fmt.Errorf("warmup: %w", err)
				}
			}

			samples := make([]float64, iterations)
			for i := range samples {
				start := time.Now()
				if _, err := c.EvalContext(ctx, code); err != nil {
					return fmt.Errorf("iteration %d: %w", i, err)
				}
				samples[i] = float64(time.Since(start)) / float64(time.Millisecond)
			}

			report := summarize(samples)
			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, report)
			}
			fmt.Fprintf(w, "iterations %d\n", report.Iterations)
			fmt.Fprintf(w, "mean       %.4f ms (± %.4f)\n", report.Mean, report.StdDev)
			fmt.Fprintf(w, "min/max    %.4f / %.4f ms\n", report.Min, report.Max)
			fmt.Fprintf(w, "p50/90/99  %.4f / %.4f / %.4f ms\n", report.P50, report.P90, report.P99)
			return nil
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", 1000, "Measured evaluations")
	cmd.Flags().IntVar(&warmup, "warmup", 10, "Unmeasured evaluations before sampling")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the script from a file ('-' for stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

// summarize sorts samples in place.
func summarize(samples []float64) benchReport {
	sort.Float64s(samples)
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) < 2 {
		std = 0
	}
	return benchReport{
		Iterations: len(samples),
		Mean:       mean,
		StdDev:     std,
		Min:        samples[0],
		P50:        stat.Quantile(0.5, stat.Empirical, samples, nil),
		P90:        stat.Quantile(0.9, stat.Empirical, samples, nil),
		P99:        stat.Quantile(0.99, stat.Empirical, samples, nil),
		Max:        samples[len(samples)-1],
	}
}
