/*
Package bridge implements the installation handshake and availability gate
that stand between a host and the sandbox engine.

# Overview

A process has one bridge slot. It is empty until a native module, found
through discovery, activates and hands its Bridge to the Installer. From
then on every entry point is synchronous and guarded by IsAvailable.

	Uninstalled -> Installing -> Installed
	                    \-> Failed -> Installing (retry)

# Discovery

Strategies are tried in order: the new-architecture registry, then the
legacy registry, both keyed by module name. The first hit wins. A lookup
that panics counts as a miss, and exhausting every strategy is a normal
outcome, not an error.

# Lifecycle

The process-wide Installer returned by Default is created once and never
torn down. Installation failures never surface as errors; EnsureInstalled
reports false and logs the cause.

# Usage Example

	bridge.RegisterEngine(bridge.NewArch, bridge.DefaultModuleName, sandbox.DefaultConfig())

	inst := bridge.Default()
	if !inst.EnsureInstalled(ctx) {
		return sandbox.ErrUnavailable
	}
	rt, err := inst.CreateRuntime(&sandbox.Options{Timeout: time.Second})
*/
package bridge
