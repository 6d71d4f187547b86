package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/jscsandbox/internal/logging"
	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

// Install outcomes recorded in metrics
const (
	outcomeInstalled = "installed"
	outcomeFailed    = "failed"
	outcomeNotFound  = "not_found"
	outcomeError     = "error"
)

// Installer owns one bridge slot and the state machine that fills it.
type Installer struct {
	name       string
	strategies []Strategy
	log        *zap.Logger
	metrics    *monitoring.Metrics

	state atomic.Int32
	slot  atomic.Pointer[slot]
	group singleflight.Group
}

type slot struct {
	bridge Bridge
}

// Option configures an Installer
type Option func(*Installer)

// WithLogger sets the installer logger
func WithLogger(log *zap.Logger) Option {
	return func(i *Installer) { i.log = logging.OrNop(log) }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(i *Installer) { i.metrics = m }
}

// WithModuleName sets the name looked up during discovery
func WithModuleName(name string) Option {
	return func(i *Installer) {
		if name != "" {
			i.name = name
		}
	}
}

// WithStrategies replaces the discovery strategies
func WithStrategies(strategies ...Strategy) Option {
	return func(i *Installer) { i.strategies = strategies }
}

var (
	defaultInstaller *Installer
	defaultOnce      sync.Once
)

// Default returns the process-wide installer. It is built on first use with
// opts; options passed to later calls are ignored. It is never torn down.
func Default(opts ...Option) *Installer {
	defaultOnce.Do(func() {
		defaultInstaller = NewInstaller(opts...)
	})
	return defaultInstaller
}

// NewInstaller creates an installer with its own bridge slot
func NewInstaller(opts ...Option) *Installer {
	i := &Installer{
		name:       DefaultModuleName,
		strategies: DefaultStrategies(),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.log = i.log.With(zap.String("module", i.name))
	i.metrics.SetInstallState(int(StateUninstalled))
	return i
}

// ModuleName returns the name used for discovery
func (i *Installer) ModuleName() string { return i.name }

// State returns the current installation state
func (i *Installer) State() State { return State(i.state.Load()) }

func (i *Installer) setState(s State) {
	i.state.Store(int32(s))
	i.metrics.SetInstallState(int(s))
}

// Install fills the bridge slot directly. Native modules call it during
// activation; hosts that link a bridge themselves may call it at startup.
func (i *Installer) Install(b Bridge) {
	if b == nil {
		return
	}
	i.slot.Store(&slot{bridge: b})

	// An attempt in flight decides the final state itself
	if i.State() == StateInstalling {
		i.log.Debug("Bridge installed during handshake")
		return
	}
	i.setState(StateInstalled)
	i.log.Info("Bridge installed")
}

// EnsureInstalled runs the installation handshake and reports whether the
// bridge is ready. It returns at once when already installed. Concurrent
// callers share one attempt. Failures are logged, never returned. When ctx
// ends first the current availability is reported instead.
func (i *Installer) EnsureInstalled(ctx context.Context) bool {
	if i.IsAvailable() {
		return true
	}

	attemptCtx := context.WithoutCancel(ctx)
	ch := i.group.DoChan(i.name, func() (interface{}, error) {
		// A flight that finished after our first check may have installed it
		if i.IsAvailable() {
			return true, nil
		}
		return i.attempt(attemptCtx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return i.IsAvailable()
	}
}

func (i *Installer) attempt(ctx context.Context) bool {
	start := time.Now()
	log := i.log.With(zap.String("attempt_id", uuid.NewString()))

	prev := i.State()
	i.setState(StateInstalling)
	log.Debug("Installation started", zap.Stringer("from", prev))

	d := Discover(i.strategies, i.name)
	for _, source := range d.Faults {
		log.Warn("Discovery lookup panicked", zap.String("source", source))
	}

	var ok bool
	outcome := outcomeFailed
	switch {
	case !d.Found:
		ok = i.probe()
		outcome = outcomeNotFound
		log.Debug("No native module found, probing bridge directly",
			zap.Strings("tried", d.Tried),
			zap.Bool("available", ok))
	default:
		installed, err := i.activate(ctx, d)
		if err != nil {
			outcome = outcomeError
			log.Warn("Native module activation failed", zap.Error(err))
			ok = i.probe()
		} else {
			ok = installed && i.probe()
		}
	}

	duration := time.Since(start)
	if ok {
		i.setState(StateInstalled)
		i.metrics.RecordInstall(outcomeInstalled)
		log.Info("Bridge ready",
			zap.String("source", d.Source),
			zap.Duration("duration", duration))
		return true
	}

	i.setState(StateFailed)
	i.metrics.RecordInstall(outcome)
	log.Warn("Bridge installation failed",
		zap.String("source", d.Source),
		zap.String("outcome", outcome),
		zap.Duration("duration", duration))
	return false
}

// activate calls the module's EnsureInstalled, converting errors and panics
// into an *sandbox.InstallError.
func (i *Installer) activate(ctx context.Context, d Discovery) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = &sandbox.InstallError{Source: d.Source, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	ok, err = d.Module.EnsureInstalled(ctx, i)
	if err != nil {
		return false, &sandbox.InstallError{Source: d.Source, Cause: err}
	}
	return ok, nil
}
