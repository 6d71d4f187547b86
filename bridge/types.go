package bridge

import (
	"context"

	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

// DefaultModuleName is the symbolic name the native module registers under
const DefaultModuleName = "RNJSCSandbox"

// Module is the bridge entry point handed to hosts
type Module interface {
	CreateRuntime(opts *sandbox.Options) (*sandbox.Runtime, error)
}

// Bridge is what a native module installs into the process slot.
// IsAvailable is the liveness probe consulted by the gate.
type Bridge interface {
	Module
	IsAvailable() bool
}

// Host accepts a bridge from a native module during activation
type Host interface {
	Install(b Bridge)
}

// NativeModule is a discovery handle. EnsureInstalled activates the module,
// which installs its Bridge into host, and reports whether it succeeded.
type NativeModule interface {
	EnsureInstalled(ctx context.Context, host Host) (bool, error)
}

// State is the installation state of a process bridge slot
type State int32

const (
	StateUninstalled State = iota
	StateInstalling
	StateInstalled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
