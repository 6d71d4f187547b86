/*
Package sandbox provides isolated JavaScript execution on top of the goja
engine.

# Overview

A Runtime is an engine instance. It hands out any number of Contexts, each
with its own global scope. Code evaluated in one Context never sees globals
of another, even within the same Runtime.

  - Runtime: engine lock, per-call timeout, compiled program cache
  - Context: one realm; Eval, SetGlobal, GetGlobal, Dispose
  - Value: the closed set of values that may cross the boundary
  - Function: host handle to a sandbox function

# Boundary

Every crossing marshals. Primitives, arrays and plain objects are copied;
functions cross as callables in either direction. Values that cannot cross
(symbols, bigints, cyclic graphs, graphs deeper than MaxDepth) fail with a
*MarshalError and leave the context usable.

Host functions run with the engine lock released, so they may call back
into any Context of the same Runtime.

# Timeouts

With Config.Timeout set, each crossing is interrupted once its wall-clock
budget is spent and returns a *TimeoutError. The Context stays usable.
Contexts passed to EvalContext and CallContext abort the crossing the same
way when canceled.

# Disposal

Dispose on a Context or Runtime is idempotent. Disposing a Runtime
invalidates all of its Contexts at once; any later operation fails with a
*DisposedError, which matches ErrDisposed.

# Usage Example

	rt, err := sandbox.NewRuntime(sandbox.DefaultConfig())
	if err != nil {
		return err
	}
	defer rt.Dispose()

	ctx, err := rt.CreateContext()
	if err != nil {
		return err
	}
	_ = ctx.SetGlobal("x", sandbox.Number(42))
	v, err := ctx.Eval("x * 2")
*/
package sandbox
