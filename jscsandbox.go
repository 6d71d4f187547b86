// Package jscsandbox is the host-facing entry point to the JavaScript
// sandbox. Call EnsureInstalled once at startup; afterwards IsAvailable,
// GetModule and CreateRuntime are synchronous.
//
//	if !jscsandbox.EnsureInstalled(ctx) {
//		return sandbox.ErrUnavailable
//	}
//	rt, err := jscsandbox.CreateRuntime(&sandbox.Options{Timeout: time.Second})
//	if err != nil {
//		return err
//	}
//	defer rt.Dispose()
//
// Configuration comes from the environment (see internal/config) and is
// read once, on first use.
package jscsandbox

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jscsandbox/bridge"
	"github.com/GriffinCanCode/jscsandbox/internal/config"
	"github.com/GriffinCanCode/jscsandbox/internal/logging"
	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

var linkOnce sync.Once

// link registers the in-process engine under the configured module name
// and builds the process installer. It runs once per process.
func link() *bridge.Installer {
	linkOnce.Do(func() {
		cfg, cfgErr := config.LoadOrDefault()

		log, err := logging.New(cfg.Logging.Logger())
		if err != nil {
			log = zap.NewNop()
		}
		if cfgErr != nil {
			log.Warn("Invalid configuration, using defaults", zap.Error(cfgErr))
		}

		var metrics *monitoring.Metrics
		if cfg.Metrics.Enabled {
			metrics = monitoring.Default()
		}

		rtCfg := cfg.Sandbox.Runtime()
		rtCfg.Logger = log.Named("sandbox")
		rtCfg.Metrics = metrics

		if _, err := bridge.RegisterEngine(bridge.NewArch, cfg.Sandbox.ModuleName, rtCfg); err != nil {
			log.Warn("Failed to register engine module", zap.Error(err))
		}

		bridge.Default(
			bridge.WithModuleName(cfg.Sandbox.ModuleName),
			bridge.WithLogger(log.Named("bridge")),
			bridge.WithMetrics(metrics),
		)
	})
	return bridge.Default()
}

// EnsureInstalled runs the installation handshake and reports whether the
// sandbox is ready. Safe to call any number of times from any goroutine.
func EnsureInstalled(ctx context.Context) bool {
	return link().EnsureInstalled(ctx)
}

// IsAvailable reports whether the sandbox bridge is installed and alive
func IsAvailable() bool {
	return link().IsAvailable()
}

// GetModule returns the bridge entry point, or nil when unavailable
func GetModule() bridge.Module {
	return link().GetModule()
}

// CreateRuntime creates a runtime through the installed bridge. It returns
// sandbox.ErrUnavailable until EnsureInstalled has succeeded.
func CreateRuntime(opts *sandbox.Options) (*sandbox.Runtime, error) {
	return link().CreateRuntime(opts)
}

// State returns the installation state of the process bridge
func State() bridge.State {
	return link().State()
}

// IsApplePlatform reports whether the host runs on an Apple OS, where the
// native JavaScriptCore bridge ships.
func IsApplePlatform() bool {
	switch runtime.GOOS {
	case "darwin", "ios":
		return true
	}
	return false
}
