package bridge

import (
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

// IsAvailable reports whether the bridge is installed and alive. It has no
// side effects and takes no locks, so hosts may call it before every entry
// point.
func (i *Installer) IsAvailable() bool {
	return i.State() == StateInstalled && i.probe()
}

// GetModule returns the bridge entry point, or nil when unavailable.
func (i *Installer) GetModule() Module {
	if !i.IsAvailable() {
		return nil
	}
	s := i.slot.Load()
	if s == nil {
		return nil
	}
	return s.bridge
}

// CreateRuntime creates a runtime through the installed bridge. It fails
// with sandbox.ErrUnavailable when the gate is closed.
func (i *Installer) CreateRuntime(opts *sandbox.Options) (*sandbox.Runtime, error) {
	m := i.GetModule()
	if m == nil {
		return nil, sandbox.ErrUnavailable
	}
	return m.CreateRuntime(opts)
}

// probe runs the bridge liveness check. A panicking probe reads as dead.
func (i *Installer) probe() (alive bool) {
	s := i.slot.Load()
	if s == nil || s.bridge == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			alive = false
		}
	}()
	return s.bridge.IsAvailable()
}
