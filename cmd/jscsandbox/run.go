package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/jscsandbox/internal/config"
	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

type scriptResult struct {
	path    string
	value   sandbox.Value
	err     error
	elapsed time.Duration
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		workers  int
		failFast bool
		out      outputFlags
	)

	cmd := &cobra.Command{
		Use:   "run <pattern>...",
		Short: "Evaluate script files, each in its own context",
		Long: `Evaluate every file matching the glob patterns ('**' crosses directories).
Scripts share nothing: each runs in a fresh context on a pooled runtime.
Exits non-zero when any script fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files match %v", args)
			}

			ctx := cmd.Context()
			if err := install(ctx); err != nil {
				return err
			}

			log := flags.logger()
			defer log.Sync()

			cfg, _ := config.LoadOrDefault()
			rtCfg := flags.options().Apply(cfg.Sandbox.Runtime())
			rtCfg.Logger = log.Named("sandbox")
			if cfg.Metrics.Enabled {
				rtCfg.Metrics = monitoring.Default()
			}

			if workers <= 0 {
				workers = 1
			}
			if workers > len(paths) {
				workers = len(paths)
			}
			pool, err := sandbox.NewPool(rtCfg, workers)
			if err != nil {
				return err
			}
			defer pool.Close()

			results := make([]scriptResult, len(paths))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(workers)

			for i, path := range paths {
				g.Go(func() error {
					res := runScript(gctx, pool, path)
					results[i] = res
					if res.err != nil {
						log.Debug("Script failed", zap.String("path", path), zap.Error(res.err))
						if failFast {
							return fmt.Errorf("%s: %w", path, res.err)
						}
					}
					return nil
				})
			}
			groupErr := g.Wait()

			w := cmd.OutOrStdout()
			failed := 0
			for _, res := range results {
				if res.path == "" {
					continue
				}
				if res.err != nil {
					failed++
					fmt.Fprintf(w, "%s %s: %v\n", failStyle.Render("FAIL"), res.path, res.err)
					continue
				}
				fmt.Fprintf(w, "%s %s %s\n", passStyle.Render("ok  "), res.path, dimStyle.Render(res.elapsed.Round(time.Microsecond).String()))
				if err := writeValue(w, res.value, out); err != nil {
					return err
				}
			}

			if groupErr != nil {
				return groupErr
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scripts failed", failed, len(paths))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Scripts evaluated in parallel")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failing script")
	out.register(cmd.Flags())
	return cmd
}

// expandPatterns resolves globs to a sorted, de-duplicated list of files.
// A pattern without glob syntax is taken as a literal path.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string

	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

func runScript(ctx context.Context, pool *sandbox.Pool, path string) scriptResult {
	res := scriptResult{path: path}

	code, err := os.ReadFile(path)
	if err != nil {
		res.err = err
		return res
	}

	start := time.Now()
	res.value, res.err = pool.Eval(ctx, string(code))
	res.elapsed = time.Since(start)
	return res
}
