package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jscsandbox"
	"github.com/GriffinCanCode/jscsandbox/internal/config"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Install the sandbox and serve its status endpoints",
		Long: `Run the installation handshake, then serve /health, /metrics and /stats
until interrupted. The address defaults to JSC_STATUS_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, _ := config.LoadOrDefault()
				addr = cfg.Status.Addr
			}
			if addr == "" {
				return fmt.Errorf("no address: pass --addr or set JSC_STATUS_ADDR")
			}

			log := flags.logger()
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Health reports the failure; keep serving either way
			if !jscsandbox.EnsureInstalled(ctx) {
				log.Warn("Sandbox unavailable", zap.String("state", jscsandbox.State().String()))
			}

			srv, err := startStatusServer(addr, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "status server on http://%s\n", srv.Addr())

			<-ctx.Done()
			log.Info("Shutting down gracefully")
			shutdownStatusServer(srv)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (host:port)")
	return cmd
}
