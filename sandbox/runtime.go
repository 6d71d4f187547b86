package sandbox

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jscsandbox/internal/logging"
	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/internal/shared/id"
)

// Runtime is an engine instance that hosts any number of isolated
// Contexts. Contexts of one runtime share the engine lock and the compiled
// program cache; they never share globals.
type Runtime struct {
	id       id.RuntimeID
	config   Config
	log      *zap.Logger
	metrics  *monitoring.Metrics
	programs *programCache

	// mu serialises all script execution on this runtime
	mu       sync.Mutex
	disposed atomic.Bool

	ctxMu    sync.Mutex
	contexts map[id.ContextID]*Context
}

// NewRuntime creates a runtime with the given configuration
func NewRuntime(cfg Config) (*Runtime, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("invalid timeout %v: must not be negative", cfg.Timeout)
	}
	if cfg.MaxCallStackSize < 0 {
		return nil, fmt.Errorf("invalid max call stack size %d", cfg.MaxCallStackSize)
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = DefaultMaxNodes
	}

	rt := &Runtime{
		id:       id.NewRuntimeID(),
		config:   cfg,
		metrics:  cfg.Metrics,
		contexts: make(map[id.ContextID]*Context),
	}
	rt.log = logging.OrNop(cfg.Logger).With(zap.String("runtime_id", rt.id.String()))
	rt.programs = newProgramCache(cfg.ProgramCacheSize, cfg.Metrics)

	rt.metrics.RuntimeCreated()
	rt.log.Debug("Runtime created",
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_call_stack", cfg.MaxCallStackSize),
		zap.Int("program_cache", cfg.ProgramCacheSize))
	return rt, nil
}

// CreateContext creates a fresh isolated context
func (r *Runtime) CreateContext() (*Context, error) {
	if r.disposed.Load() {
		return nil, &DisposedError{Kind: "runtime", ID: r.id.String()}
	}

	c := newContext(r)

	r.ctxMu.Lock()
	// Dispose may have run while the realm was being built
	if r.disposed.Load() {
		r.ctxMu.Unlock()
		c.disposed.Store(true)
		c.vm.Store(nil)
		return nil, &DisposedError{Kind: "runtime", ID: r.id.String()}
	}
	r.contexts[c.id] = c
	r.ctxMu.Unlock()

	r.metrics.ContextCreated()
	c.log.Debug("Context created")
	return c, nil
}

// Dispose invalidates the runtime and every context it created. Safe to
// call more than once.
func (r *Runtime) Dispose() {
	if !r.disposed.CompareAndSwap(false, true) {
		return
	}

	live := r.drain()
	for _, c := range live {
		if c.disposed.CompareAndSwap(false, true) {
			c.release()
		}
	}
	r.programs.purge()

	r.metrics.RuntimeDisposed()
	r.log.Debug("Runtime disposed", zap.Int("contexts", len(live)))
}

// Reset disposes every live context but keeps the runtime usable.
func (r *Runtime) Reset() {
	for _, c := range r.drain() {
		c.Dispose()
	}
}

func (r *Runtime) drain() []*Context {
	r.ctxMu.Lock()
	defer r.ctxMu.Unlock()

	live := make([]*Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		live = append(live, c)
	}
	r.contexts = make(map[id.ContextID]*Context)
	return live
}

func (r *Runtime) forget(c *Context) {
	r.ctxMu.Lock()
	delete(r.contexts, c.id)
	r.ctxMu.Unlock()
}

// ID returns the runtime identifier
func (r *Runtime) ID() id.RuntimeID { return r.id }

// Timeout returns the per-call budget, 0 when unbounded
func (r *Runtime) Timeout() time.Duration { return r.config.Timeout }

// Disposed reports whether Dispose has been called
func (r *Runtime) Disposed() bool { return r.disposed.Load() }

// Contexts returns the number of live contexts
func (r *Runtime) Contexts() int {
	r.ctxMu.Lock()
	defer r.ctxMu.Unlock()
	return len(r.contexts)
}
