package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jscsandbox"
	"github.com/GriffinCanCode/jscsandbox/internal/config"
	"github.com/GriffinCanCode/jscsandbox/internal/logging"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

type globalFlags struct {
	logLevel  string
	dev       bool
	timeoutMS int
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "jscsandbox",
		Short: "Evaluate JavaScript in an isolated sandbox",
		Long: `jscsandbox runs untrusted JavaScript in a sandbox with no filesystem,
network or module access. Each evaluation is bounded by an optional
wall-clock timeout and every value crossing the boundary is copied.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			flags.applyEnv(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flags.dev, "dev", false, "Human-readable development logging")
	pf.IntVar(&flags.timeoutMS, "timeout", 0, "Per-evaluation timeout in milliseconds (0 uses the configured default)")

	root.AddCommand(
		newEvalCmd(&flags),
		newReplCmd(&flags),
		newRunCmd(&flags),
		newBenchCmd(&flags),
		newSelftestCmd(&flags),
		newServeCmd(&flags),
		newVersionCmd(),
	)
	return root
}

// applyEnv forwards explicit logging flags to the environment the sandbox
// configuration is loaded from.
func (f *globalFlags) applyEnv(cmd *cobra.Command) {
	if cmd.Flags().Changed("log-level") {
		os.Setenv("LOG_LEVEL", f.logLevel)
	}
	if cmd.Flags().Changed("dev") {
		os.Setenv("LOG_DEV", strconv.FormatBool(f.dev))
	}
}

func (f *globalFlags) options() *sandbox.Options {
	if f.timeoutMS <= 0 {
		return nil
	}
	return &sandbox.Options{Timeout: time.Duration(f.timeoutMS) * time.Millisecond}
}

func (f *globalFlags) logger() *zap.Logger {
	cfg, cfgErr := config.LoadOrDefault()
	log, err := logging.New(cfg.Logging.Logger())
	if err != nil {
		if f.dev {
			log = logging.NewDevelopment()
		} else {
			log = logging.NewDefault()
		}
		log.Warn("Invalid log configuration, using defaults", zap.Error(err))
	}
	if cfgErr != nil {
		log.Warn("Invalid configuration, using defaults", zap.Error(cfgErr))
	}
	return log.Named("cli")
}

// install runs the handshake; every command needs a live bridge.
func install(ctx context.Context) error {
	if !jscsandbox.EnsureInstalled(ctx) {
		return fmt.Errorf("sandbox unavailable (state %s)", jscsandbox.State())
	}
	return nil
}

// openContext installs the bridge and returns a runtime with one context.
// The caller disposes the runtime.
func (f *globalFlags) openContext(ctx context.Context) (*sandbox.Runtime, *sandbox.Context, error) {
	if err := install(ctx); err != nil {
		return nil, nil, err
	}
	rt, err := jscsandbox.CreateRuntime(f.options())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	c, err := rt.CreateContext()
	if err != nil {
		rt.Dispose()
		return nil, nil, fmt.Errorf("failed to create context: %w", err)
	}
	return rt, c, nil
}
