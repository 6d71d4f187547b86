// Package config provides 12-factor configuration for the sandbox host.
//
// Configuration is loaded from environment variables with defaults.
// CLI flags override environment variables.
//
// Configuration Sections:
//   - Sandbox: engine defaults (timeout, stack depth, marshal depth, program cache, console)
//   - Logging: log level and output format
//   - Metrics: prometheus collection
//
// Example Usage:
//
//	cfg, err := config.LoadOrDefault()
//	if err != nil {
//		log.Warn("Invalid configuration, using defaults", zap.Error(err))
//	}
//	rt, err := sandbox.NewRuntime(cfg.Sandbox.Runtime())
//
// Environment Variables:
//   - JSC_SANDBOX_TIMEOUT_MS, JSC_SANDBOX_MAX_STACK, JSC_SANDBOX_MAX_DEPTH, JSC_SANDBOX_MAX_NODES
//   - JSC_SANDBOX_PROGRAM_CACHE, JSC_SANDBOX_CONSOLE, JSC_SANDBOX_MODULE
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ENABLED
//
// Globals seed files (YAML or TOML) are read by LoadGlobals.
package config
