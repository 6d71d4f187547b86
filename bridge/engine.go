package bridge

import (
	"context"
	"sync/atomic"

	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

// EngineModule is the native module backed by the in-process goja engine.
// Activating it installs an engine bridge built from its configuration.
type EngineModule struct {
	config    sandbox.Config
	bridge    *EngineBridge
	activated atomic.Int64
}

// NewEngineModule creates an engine module with cfg as runtime defaults
func NewEngineModule(cfg sandbox.Config) *EngineModule {
	return &EngineModule{
		config: cfg,
		bridge: NewEngineBridge(cfg),
	}
}

// EnsureInstalled installs the engine bridge into host
func (m *EngineModule) EnsureInstalled(ctx context.Context, host Host) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	host.Install(m.bridge)
	m.activated.Add(1)
	return true, nil
}

// Activations returns how many times the module was activated
func (m *EngineModule) Activations() int64 { return m.activated.Load() }

// Bridge returns the bridge the module installs
func (m *EngineModule) Bridge() *EngineBridge { return m.bridge }

// EngineBridge creates goja-backed runtimes
type EngineBridge struct {
	config   sandbox.Config
	shutdown atomic.Bool
}

// NewEngineBridge creates a bridge whose runtimes start from cfg
func NewEngineBridge(cfg sandbox.Config) *EngineBridge {
	return &EngineBridge{config: cfg}
}

// CreateRuntime creates a runtime with opts overlaid on the bridge defaults
func (b *EngineBridge) CreateRuntime(opts *sandbox.Options) (*sandbox.Runtime, error) {
	if b.shutdown.Load() {
		return nil, sandbox.ErrUnavailable
	}
	return sandbox.NewRuntime(opts.Apply(b.config))
}

// IsAvailable reports whether the bridge still accepts work
func (b *EngineBridge) IsAvailable() bool { return !b.shutdown.Load() }

// Shutdown stops the bridge from creating runtimes. Existing runtimes are
// not affected. The gate reports unavailable afterwards.
func (b *EngineBridge) Shutdown() { b.shutdown.Store(true) }

// RegisterEngine registers an engine module under name in reg
func RegisterEngine(reg *ModuleRegistry, name string, cfg sandbox.Config) (*EngineModule, error) {
	m := NewEngineModule(cfg)
	if err := reg.Register(name, m); err != nil {
		return nil, err
	}
	return m, nil
}
