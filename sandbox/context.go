package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/internal/shared/id"
)

// interruptReason is the value passed to goja's Interrupt so the caller can
// tell why an evaluation was aborted.
type interruptReason int

const (
	interruptTimeout interruptReason = iota + 1
	interruptCanceled
	interruptDisposed
)

func (r interruptReason) String() string {
	switch r {
	case interruptTimeout:
		return "timeout"
	case interruptCanceled:
		return "canceled"
	case interruptDisposed:
		return "disposed"
	}
	return "unknown"
}

// haltedError stops a marshalling walk after the crossing was interrupted.
// The engine only checks its interrupt flag while running script code.
type haltedError struct {
	reason interruptReason
}

func (e *haltedError) Error() string {
	return "marshalling interrupted: " + e.reason.String()
}

// Context is one isolated global scope inside a Runtime. Each Context owns
// its own engine realm; nothing global is shared with other Contexts.
type Context struct {
	id  id.ContextID
	rt  *Runtime
	log *zap.Logger

	vm       atomic.Pointer[goja.Runtime]
	disposed atomic.Bool
	// running counts in-flight crossings, including nested ones from host
	// callbacks; only the outermost clears the interrupt flag.
	running atomic.Int32
	// halt mirrors the engine interrupt for Go-side marshalling walks
	halt atomic.Int32
}

func newContext(rt *Runtime) *Context {
	c := &Context{
		id: id.NewContextID(),
		rt: rt,
	}
	c.log = rt.log.With(zap.String("context_id", c.id.String()))

	vm := goja.New()
	if rt.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(rt.config.MaxCallStackSize)
	}
	c.setupGlobals(vm)
	c.vm.Store(vm)
	return c
}

// ID returns the context identifier
func (c *Context) ID() id.ContextID { return c.id }

// Runtime returns the owning runtime
func (c *Context) Runtime() *Runtime { return c.rt }

// Disposed reports whether the context or its runtime has been disposed
func (c *Context) Disposed() bool {
	return c.disposed.Load() || c.rt.disposed.Load()
}

// Eval runs code as a top-level script and returns the completion value.
func (c *Context) Eval(code string) (Value, error) {
	return c.EvalContext(context.Background(), code)
}

// EvalContext is Eval that also aborts when ctx is done.
func (c *Context) EvalContext(ctx context.Context, code string) (Value, error) {
	return c.do(ctx, monitoring.OpEval, func(vm *goja.Runtime) (Value, error) {
		prog, err := c.rt.programs.compile(code)
		if err != nil {
			return Value{}, err
		}
		res, err := vm.RunProgram(prog)
		if err != nil {
			return Value{}, err
		}
		return c.export(vm, res)
	})
}

// SetGlobal binds name in this context's global scope only.
func (c *Context) SetGlobal(name string, value Value) error {
	_, err := c.do(context.Background(), monitoring.OpSetGlobal, func(vm *goja.Runtime) (Value, error) {
		return Value{}, c.protect(vm, func() error {
			gv, err := c.newImporter(vm).toJS(value, name, 0)
			if err != nil {
				return err
			}
			return vm.GlobalObject().Set(name, gv)
		})
	})
	return err
}

// GetGlobal reads name from this context's global scope. Unbound names
// read as undefined.
func (c *Context) GetGlobal(name string) (Value, error) {
	return c.do(context.Background(), monitoring.OpGetGlobal, func(vm *goja.Runtime) (Value, error) {
		var out Value
		err := c.protect(vm, func() error {
			var err error
			out, err = c.newExporter(vm).export(vm.GlobalObject().Get(name), name, 0)
			return err
		})
		return out, err
	})
}

// Dispose releases the context's realm. Safe to call more than once.
func (c *Context) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	c.rt.forget(c)
	c.release()
}

// release drops the realm and aborts an in-flight evaluation, if any.
func (c *Context) release() {
	vm := c.vm.Swap(nil)
	if vm == nil {
		return
	}
	if c.running.Load() > 0 {
		c.interrupt(vm, interruptDisposed)
	}
	c.rt.metrics.ContextsDisposed(1)
	c.log.Debug("Context disposed")
}

// interrupt aborts the running script and any marshalling walk in progress.
func (c *Context) interrupt(vm *goja.Runtime, reason interruptReason) {
	c.halt.CompareAndSwap(0, int32(reason))
	vm.Interrupt(reason)
}

func (c *Context) halted() interruptReason {
	return interruptReason(c.halt.Load())
}

func (c *Context) disposedErr() error {
	if c.rt.disposed.Load() {
		return &DisposedError{Kind: "runtime", ID: c.rt.id.String()}
	}
	return &DisposedError{Kind: "context", ID: c.id.String()}
}

func (c *Context) export(vm *goja.Runtime, val goja.Value) (Value, error) {
	var out Value
	err := c.protect(vm, func() error {
		var err error
		out, err = c.newExporter(vm).export(val, "$", 0)
		return err
	})
	return out, err
}

// protect runs fn as a native call so that script exceptions and interrupts
// raised by getters, setters or proxies come back as errors.
func (c *Context) protect(vm *goja.Runtime, fn func() error) error {
	var inner error
	call, _ := goja.AssertFunction(vm.ToValue(func(goja.FunctionCall) goja.Value {
		inner = fn()
		return goja.Undefined()
	}))
	if _, err := call(goja.Undefined()); err != nil {
		return err
	}
	return inner
}

// do performs one boundary crossing: it takes the engine lock, arms the
// watchdog, runs fn and classifies the outcome.
func (c *Context) do(ctx context.Context, op string, fn func(vm *goja.Runtime) (Value, error)) (Value, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		c.rt.metrics.RecordEval(op, monitoring.StatusCanceled, 0)
		return Value{}, fmt.Errorf("%s canceled: %w", op, err)
	}

	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()

	c.running.Add(1)
	defer c.running.Add(-1)

	vm := c.vm.Load()
	if vm == nil || c.Disposed() {
		c.rt.metrics.RecordEval(op, monitoring.StatusDisposed, 0)
		return Value{}, c.disposedErr()
	}

	// Classification may export the thrown value, so it stays under the watchdog.
	disarm := c.arm(ctx, vm)
	result, err := fn(vm)
	if err == nil && c.Disposed() {
		err = c.disposedErr()
	}
	status := monitoring.StatusOK
	if err != nil {
		result = Value{}
		status, err = c.classify(ctx, vm, err, time.Since(start))
	}
	disarm()

	if err != nil {
		c.log.Debug("Sandbox call failed",
			zap.String("op", op),
			zap.String("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
	c.rt.metrics.RecordEval(op, status, time.Since(start))
	return result, err
}

// arm starts the timeout watchdog and the cancellation watcher. The returned
// func stops both, waits for the watcher to exit and, for the outermost
// crossing, clears the interrupt. A timer firing after that is a no-op.
func (c *Context) arm(ctx context.Context, vm *goja.Runtime) func() {
	var (
		mu   sync.Mutex
		live = true
	)
	fire := func(reason interruptReason) {
		mu.Lock()
		defer mu.Unlock()
		if live {
			c.interrupt(vm, reason)
		}
	}

	var timer *time.Timer
	if timeout := c.rt.config.Timeout; timeout > 0 {
		timer = time.AfterFunc(timeout, func() { fire(interruptTimeout) })
	}

	var (
		done    chan struct{}
		watcher sync.WaitGroup
	)
	if ctx.Done() != nil {
		done = make(chan struct{})
		watcher.Add(1)
		go func() {
			defer watcher.Done()
			select {
			case <-ctx.Done():
				fire(interruptCanceled)
			case <-done:
			}
		}()
	}

	return func() {
		mu.Lock()
		live = false
		mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if done != nil {
			close(done)
			watcher.Wait()
		}
		if c.running.Load() == 1 {
			c.halt.Store(0)
			vm.ClearInterrupt()
		}
	}
}

// interruptOf reports why err aborted a crossing, if it did.
func interruptOf(err error) (interruptReason, bool) {
	var halted *haltedError
	if errors.As(err, &halted) {
		return halted.reason, true
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		reason, _ := interrupted.Value().(interruptReason)
		return reason, true
	}
	return 0, false
}

func (c *Context) classify(ctx context.Context, vm *goja.Runtime, err error, elapsed time.Duration) (string, error) {
	if reason, ok := interruptOf(err); ok {
		switch reason {
		case interruptTimeout:
			return monitoring.StatusTimeout, &TimeoutError{Timeout: c.rt.config.Timeout, Elapsed: elapsed}
		case interruptCanceled:
			cause := ctx.Err()
			if cause == nil {
				cause = context.Canceled
			}
			return monitoring.StatusCanceled, fmt.Errorf("evaluation canceled: %w", cause)
		case interruptDisposed:
			return monitoring.StatusDisposed, c.disposedErr()
		}
		return monitoring.StatusCanceled, fmt.Errorf("evaluation interrupted: %w", err)
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		value, message, err := c.thrownValue(vm, ex)
		if err != nil {
			return c.classify(ctx, vm, err, elapsed)
		}
		return monitoring.StatusThrown, &EvalError{Value: value, Message: message, Stack: safeString(ex.String)}
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return monitoring.StatusThrown, compileError("SyntaxError", syntax.Error())
	}
	var reference *goja.CompilerReferenceError
	if errors.As(err, &reference) {
		return monitoring.StatusThrown, compileError("ReferenceError", reference.Error())
	}

	switch {
	case errors.Is(err, ErrMarshal):
		return monitoring.StatusMarshal, err
	case errors.Is(err, ErrDisposed):
		return monitoring.StatusDisposed, err
	}
	return monitoring.StatusThrown, err
}

func compileError(name, message string) *EvalError {
	message = strings.TrimPrefix(message, name+": ")
	return &EvalError{
		Value:   Object(map[string]Value{"name": String(name), "message": String(message)}),
		Message: name + ": " + message,
	}
}

// setupGlobals hides host-only globals and installs the console.
func (c *Context) setupGlobals(vm *goja.Runtime) {
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = vm.Set(name, goja.Undefined())
	}

	if !c.rt.config.Console {
		return
	}
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, c.makeConsoleFunc(level))
	}
	_ = vm.Set("console", console)
}

func (c *Context) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		entry := LogEntry{Level: level, Message: strings.Join(parts, " "), Time: time.Now()}

		fields := []zap.Field{zap.String("console", level)}
		switch level {
		case "warn":
			c.log.Warn(entry.Message, fields...)
		case "error":
			c.log.Error(entry.Message, fields...)
		case "debug":
			c.log.Debug(entry.Message, fields...)
		default:
			c.log.Info(entry.Message, fields...)
		}

		if hook := c.rt.config.ConsoleHook; hook != nil {
			hook(entry)
		}
		return goja.Undefined()
	}
}
