package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jscsandbox"
	"github.com/GriffinCanCode/jscsandbox/bridge"
	"github.com/GriffinCanCode/jscsandbox/internal/config"
	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/internal/server"
	"github.com/GriffinCanCode/jscsandbox/internal/server/middleware"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

const replHelp = `Commands:
  .help    show this help
  .reset   discard all globals and start a fresh context
  .stats   evaluation totals for this process
  .exit    leave the REPL
Ctrl-C interrupts a running evaluation.`

func newReplCmd(flags *globalFlags) *cobra.Command {
	var (
		metricsAddr string
		history     string
		out         outputFlags
	)

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive session backed by a single context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, c, err := flags.openContext(ctx)
			if err != nil {
				return err
			}
			defer rt.Dispose()

			log := flags.logger()
			defer log.Sync()

			if metricsAddr != "" {
				srv, err := startStatusServer(metricsAddr, log)
				if err != nil {
					return err
				}
				defer shutdownStatusServer(srv)
				fmt.Fprintf(cmd.ErrOrStderr(), "status server on http://%s\n", srv.Addr())
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "js> ",
				HistoryFile:     history,
				InterruptPrompt: "^C",
				EOFPrompt:       ".exit",
				Stdin:           io.NopCloser(cmd.InOrStdin()),
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("readline: %w", err)
			}
			defer rl.Close()

			w := rl.Stdout()
			fmt.Fprintf(w, "jscsandbox %s (.help for commands)\n", version)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("readline: %w", err)
				}

				switch line = strings.TrimSpace(line); line {
				case "":
				case ".exit":
					return nil
				case ".help":
					fmt.Fprintln(w, replHelp)
				case ".reset":
					c.Dispose()
					if c, err = rt.CreateContext(); err != nil {
						return err
					}
					fmt.Fprintln(w, dimStyle.Render("context reset"))
				case ".stats":
					snap := monitoring.Default().GetSnapshot()
					fmt.Fprintf(w, "evals=%d failures=%d timeouts=%d total=%s\n",
						snap.Evals, snap.Failures, snap.Timeouts, snap.Total.Round(time.Microsecond))
				default:
					evalLine(ctx, c, line, w, out)
				}
			}
		},
	}

	home, _ := os.UserHomeDir()
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /health, /metrics and /stats on this address while the REPL runs")
	cmd.Flags().StringVar(&history, "history", filepath.Join(home, ".jscsandbox_history"), "History file (empty disables history)")
	out.register(cmd.Flags())
	return cmd
}

// evalLine runs one REPL input. An interrupt cancels the evaluation, not
// the session.
func evalLine(parent context.Context, c *sandbox.Context, code string, w io.Writer, out outputFlags) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	v, err := c.EvalContext(ctx, code)
	if err != nil {
		fmt.Fprintln(w, failStyle.Render("Error:"), err)
		return
	}
	if err := writeValue(w, v, out); err != nil {
		fmt.Fprintln(w, failStyle.Render("Error:"), err)
	}
}

func statusConfig(addr string) server.Config {
	// Load errors are reported by the facade when it links
	cfg, _ := config.LoadOrDefault()
	sc := server.DefaultConfig()
	sc.Addr = addr
	sc.Development = cfg.Logging.Development
	sc.CORS.AllowOrigins = cfg.Status.Origins
	sc.RateLimit = middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Status.RateLimit,
		Burst:             cfg.Status.Burst,
	}
	return sc
}

func startStatusServer(addr string, log *zap.Logger) (*server.Server, error) {
	// The facade links the process installer on first use
	if !jscsandbox.IsAvailable() {
		log.Warn("Starting status server while the sandbox is unavailable")
	}

	srv := server.New(statusConfig(addr), bridge.Default(),
		server.WithLogger(log.Named("status")),
		server.WithMetrics(monitoring.Default(), prometheus.DefaultGatherer),
	)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return srv, nil
}

func shutdownStatusServer(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
