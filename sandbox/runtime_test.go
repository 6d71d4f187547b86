package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
)

func newTestRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	t.Cleanup(rt.Dispose)
	return rt
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := newTestRuntime(t, DefaultConfig()).CreateContext()
	require.NoError(t, err)
	return c
}

func TestRuntimeEvaluation(t *testing.T) {
	c := newTestContext(t)

	tests := []struct {
		name   string
		script string
		want   Value
	}{
		{name: "arithmetic", script: "1 + 2 * 3", want: Number(7)},
		{name: "array length", script: "[1, 2, 3].length", want: Number(3)},
		{name: "string operations", script: "'hello'.toUpperCase()", want: String("HELLO")},
		{name: "math", script: "Math.sqrt(16)", want: Number(4)},
		{name: "loop completion", script: "var s = 0; for (var i = 0; i < 10; i++) { s += i; } s", want: Number(45)},
		{name: "boolean", script: "1 < 2", want: Bool(true)},
		{name: "null", script: "null", want: Null()},
		{name: "undefined", script: "undefined", want: Undefined()},
		{name: "empty script", script: "", want: Undefined()},
		{name: "array", script: "[1, 'a', null]", want: Array(Number(1), String("a"), Null())},
		{name: "object", script: "({x: 1, y: {z: true}})", want: Object(map[string]Value{
			"x": Number(1),
			"y": Object(map[string]Value{"z": Bool(true)}),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Eval(tt.script)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestRuntimeObjectField(t *testing.T) {
	c := newTestContext(t)

	v, err := c.Eval("({x: 1})")
	require.NoError(t, err)
	assert.Equal(t, KindObject, v.Kind())
	assert.Equal(t, 1.0, v.Get("x").Number())
}

func TestRuntimeSecurity(t *testing.T) {
	c := newTestContext(t)

	for _, name := range []string{"require", "process", "module", "exports"} {
		t.Run(name+" hidden", func(t *testing.T) {
			v, err := c.Eval("typeof " + name)
			require.NoError(t, err)
			assert.Equal(t, "undefined", v.Str())
		})
	}

	t.Run("require call throws", func(t *testing.T) {
		_, err := c.Eval("require('fs')")
		assert.ErrorIs(t, err, ErrEval)
	})
}

func TestSetGetGlobal(t *testing.T) {
	c := newTestContext(t)

	require.NoError(t, c.SetGlobal("x", Number(42)))

	v, err := c.Eval("x")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.Number())

	v, err = c.GetGlobal("x")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.Number())

	_, err = c.Eval("var fromScript = 'hi'")
	require.NoError(t, err)
	v, err = c.GetGlobal("fromScript")
	require.NoError(t, err)
	assert.Equal(t, "hi", v.Str())

	v, err = c.GetGlobal("neverBound")
	require.NoError(t, err)
	assert.True(t, v.IsUndefined())
}

func TestSetGlobalProtoKey(t *testing.T) {
	c := newTestContext(t)

	require.NoError(t, c.SetGlobal("o", Object(map[string]Value{"__proto__": Number(1)})))

	v, err := c.Eval("Object.keys(o).length")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Number())

	v, err = c.Eval("Object.getPrototypeOf(o) === Object.prototype")
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

func TestEvalThrows(t *testing.T) {
	c := newTestContext(t)

	t.Run("error object", func(t *testing.T) {
		_, err := c.Eval("throw new Error('test')")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEval)
		assert.Contains(t, err.Error(), "test")

		var evalErr *EvalError
		require.True(t, errors.As(err, &evalErr))
		assert.Equal(t, "Error", evalErr.Value.Get("name").Str())
		assert.Equal(t, "test", evalErr.Value.Get("message").Str())
		assert.Equal(t, "Error: test", evalErr.Message)
	})

	t.Run("thrown string", func(t *testing.T) {
		_, err := c.Eval("throw 'plain'")
		var evalErr *EvalError
		require.True(t, errors.As(err, &evalErr))
		assert.Equal(t, "plain", evalErr.Value.Str())
		assert.Equal(t, "plain", evalErr.Message)
	})

	t.Run("thrown object", func(t *testing.T) {
		_, err := c.Eval("throw {code: 7}")
		var evalErr *EvalError
		require.True(t, errors.As(err, &evalErr))
		assert.Equal(t, 7.0, evalErr.Value.Get("code").Number())
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := c.Eval("1 +")
		var evalErr *EvalError
		require.True(t, errors.As(err, &evalErr))
		assert.Equal(t, "SyntaxError", evalErr.Value.Get("name").Str())
	})

	t.Run("reference error", func(t *testing.T) {
		_, err := c.Eval("notDefinedAnywhere")
		var evalErr *EvalError
		require.True(t, errors.As(err, &evalErr))
		assert.Equal(t, "ReferenceError", evalErr.Value.Get("name").Str())
	})

	// The context survives a throw
	v, err := c.Eval("2 + 2")
	require.NoError(t, err)
	assert.Equal(t, 4.0, v.Number())
}

func TestContextIsolation(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	a, err := rt.CreateContext()
	require.NoError(t, err)
	b, err := rt.CreateContext()
	require.NoError(t, err)

	require.NoError(t, a.SetGlobal("shared", String("a-only")))
	_, err = a.Eval("var declared = 1; Array.prototype.polluted = true")
	require.NoError(t, err)

	v, err := b.GetGlobal("shared")
	require.NoError(t, err)
	assert.True(t, v.IsUndefined())

	v, err = b.Eval("typeof declared")
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.Str())

	v, err = b.Eval("[].polluted")
	require.NoError(t, err)
	assert.True(t, v.IsUndefined())
}

func TestRuntimeTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	c, err := newTestRuntime(t, cfg).CreateContext()
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Eval("let i = 0; while (true) { i++; }")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 100*time.Millisecond, timeoutErr.Timeout)

	// Timed out contexts stay usable
	v, err := c.Eval("1 + 1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Number())
}

func TestTimeoutInsideFunctionCall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	c, err := newTestRuntime(t, cfg).CreateContext()
	require.NoError(t, err)

	fn, err := c.Eval("(function () { for (;;) {} })")
	require.NoError(t, err)

	_, err = fn.Callable().Call()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestEvalContextCancel(t *testing.T) {
	c := newTestContext(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.EvalContext(ctx, "while (true) {}")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = c.EvalContext(canceled, "1")
	assert.ErrorIs(t, err, context.Canceled)

	v, err := c.Eval("'still alive'")
	require.NoError(t, err)
	assert.Equal(t, "still alive", v.Str())
}

func TestContextDispose(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	c, err := rt.CreateContext()
	require.NoError(t, err)
	assert.Equal(t, 1, rt.Contexts())

	c.Dispose()
	c.Dispose()

	assert.True(t, c.Disposed())
	assert.Equal(t, 0, rt.Contexts())

	_, err = c.Eval("1")
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, c.SetGlobal("x", Number(1)), ErrDisposed)
	_, err = c.GetGlobal("x")
	assert.ErrorIs(t, err, ErrDisposed)

	// Other contexts are unaffected
	other, err := rt.CreateContext()
	require.NoError(t, err)
	v, err := other.Eval("3")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Number())
}

func TestRuntimeDispose(t *testing.T) {
	rt, err := NewRuntime(DefaultConfig())
	require.NoError(t, err)

	a, err := rt.CreateContext()
	require.NoError(t, err)
	b, err := rt.CreateContext()
	require.NoError(t, err)
	fn, err := a.Eval("(function () { return 1 })")
	require.NoError(t, err)

	rt.Dispose()
	rt.Dispose()

	assert.True(t, rt.Disposed())
	assert.True(t, a.Disposed())
	assert.True(t, b.Disposed())
	assert.Equal(t, 0, rt.Contexts())

	_, err = a.Eval("1")
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = b.GetGlobal("x")
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = fn.Callable().Call()
	assert.ErrorIs(t, err, ErrDisposed)

	_, err = rt.CreateContext()
	assert.ErrorIs(t, err, ErrDisposed)

	var disposedErr *DisposedError
	require.True(t, errors.As(err, &disposedErr))
	assert.Equal(t, "runtime", disposedErr.Kind)
}

func TestRuntimeDisposeDuringEval(t *testing.T) {
	rt, err := NewRuntime(DefaultConfig())
	require.NoError(t, err)
	c, err := rt.CreateContext()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Eval("while (true) {}")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	rt.Dispose()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDisposed)
	case <-time.After(5 * time.Second):
		t.Fatal("evaluation was not aborted by Dispose")
	}
}

func TestNewRuntimeValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = -time.Second
	_, err := NewRuntime(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MaxCallStackSize = -1
	_, err = NewRuntime(cfg)
	assert.Error(t, err)

	rt := newTestRuntime(t, Config{})
	assert.Equal(t, time.Duration(0), rt.Timeout())
	assert.NotEmpty(t, rt.ID().String())
}

func TestOptionsApply(t *testing.T) {
	base := DefaultConfig()

	var nilOpts *Options
	assert.Equal(t, base.Timeout, nilOpts.Apply(base).Timeout)

	got := (&Options{Timeout: time.Second}).Apply(base)
	assert.Equal(t, time.Second, got.Timeout)
	assert.Equal(t, base.MaxDepth, got.MaxDepth)

	got = (&Options{}).Apply(base)
	assert.Equal(t, base.Timeout, got.Timeout)
}

func TestRuntimeConsoleCapture(t *testing.T) {
	var mu sync.Mutex
	var entries []LogEntry

	cfg := DefaultConfig()
	cfg.ConsoleHook = func(e LogEntry) {
		mu.Lock()
		entries = append(entries, e)
		mu.Unlock()
	}
	c, err := newTestRuntime(t, cfg).CreateContext()
	require.NoError(t, err)

	_, err = c.Eval(`
		console.log('info message', 1);
		console.warn('warning message');
		console.error('error message');
		'done'
	`)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, entries, 3)

	levels := []string{"log", "warn", "error"}
	for i, entry := range entries {
		assert.Equal(t, levels[i], entry.Level)
	}
	assert.Equal(t, "info message 1", entries[0].Message)
}

func TestConsoleDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Console = false
	c, err := newTestRuntime(t, cfg).CreateContext()
	require.NoError(t, err)

	v, err := c.Eval("typeof console")
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.Str())
}

func TestHostFunction(t *testing.T) {
	c := newTestContext(t)

	add := HostFunc(func(args ...Value) (Value, error) {
		sum := 0.0
		for _, a := range args {
			sum += a.Number()
		}
		return Number(sum), nil
	})
	require.NoError(t, c.SetGlobal("add", Func(add)))

	v, err := c.Eval("add(2, 3, 4)")
	require.NoError(t, err)
	assert.Equal(t, 9.0, v.Number())

	fail := HostFunc(func(args ...Value) (Value, error) {
		return Value{}, errors.New("boom")
	})
	require.NoError(t, c.SetGlobal("fail", Func(fail)))

	_, err = c.Eval("fail()")
	assert.ErrorIs(t, err, ErrEval)
	assert.Contains(t, err.Error(), "boom")

	v, err = c.Eval("try { fail(); 'no' } catch (e) { 'caught' }")
	require.NoError(t, err)
	assert.Equal(t, "caught", v.Str())

	panics := HostFunc(func(args ...Value) (Value, error) {
		panic("host bug")
	})
	require.NoError(t, c.SetGlobal("panics", Func(panics)))
	_, err = c.Eval("panics()")
	assert.ErrorIs(t, err, ErrEval)
	assert.Contains(t, err.Error(), "host bug")
}

func TestHostFunctionReentry(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	a, err := rt.CreateContext()
	require.NoError(t, err)
	b, err := rt.CreateContext()
	require.NoError(t, err)

	require.NoError(t, b.SetGlobal("base", Number(40)))

	inner := HostFunc(func(args ...Value) (Value, error) {
		return b.Eval("base + 2")
	})
	require.NoError(t, a.SetGlobal("inner", Func(inner)))

	v, err := a.Eval("inner() * 10")
	require.NoError(t, err)
	assert.Equal(t, 420.0, v.Number())
}

func TestFunctionHandle(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	a, err := rt.CreateContext()
	require.NoError(t, err)

	v, err := a.Eval("var mul = function (x, y) { return x * y }; mul")
	require.NoError(t, err)
	require.Equal(t, KindCallable, v.Kind())

	fn, ok := v.Callable().(*Function)
	require.True(t, ok)
	assert.Same(t, a, fn.Context())

	res, err := fn.Call(Number(6), Number(7))
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.Number())

	// Same-context import gives back the original function
	require.NoError(t, a.SetGlobal("again", v))
	same, err := a.Eval("again === mul")
	require.NoError(t, err)
	assert.True(t, same.Bool())

	again, err := a.GetGlobal("mul")
	require.NoError(t, err)
	assert.True(t, Equal(v, again))

	// Handles do not cross into other contexts
	b, err := rt.CreateContext()
	require.NoError(t, err)
	err = b.SetGlobal("stolen", v)
	assert.ErrorIs(t, err, ErrMarshal)
}

func TestFunctionCallThrows(t *testing.T) {
	c := newTestContext(t)

	v, err := c.Eval("(function () { throw new TypeError('bad arg') })")
	require.NoError(t, err)

	_, err = v.Callable().Call()
	var evalErr *EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "TypeError", evalErr.Value.Get("name").Str())
}

func TestProgramCache(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.Metrics = m
	rt := newTestRuntime(t, cfg)

	a, err := rt.CreateContext()
	require.NoError(t, err)
	b, err := rt.CreateContext()
	require.NoError(t, err)

	_, err = a.Eval("40 + 2")
	require.NoError(t, err)
	v, err := b.Eval("40 + 2")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.Number())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProgramCacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProgramCacheHits))
	assert.Equal(t, 1, rt.programs.len())
}

func TestProgramCacheEviction(t *testing.T) {
	cache := newProgramCache(2, nil)

	for _, code := range []string{"1", "2", "3"} {
		_, err := cache.compile(code)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.len())

	_, err := cache.compile("1 +")
	assert.Error(t, err)
	assert.Equal(t, 2, cache.len())

	cache.purge()
	assert.Equal(t, 0, cache.len())

	uncached := newProgramCache(0, nil)
	_, err = uncached.compile("1")
	require.NoError(t, err)
	assert.Equal(t, 0, uncached.len())
}

func TestEvalMetrics(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.Metrics = m
	rt := newTestRuntime(t, cfg)
	c, err := rt.CreateContext()
	require.NoError(t, err)

	_, _ = c.Eval("1")
	_, _ = c.Eval("throw 1")
	_ = c.SetGlobal("x", Number(1))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evals.WithLabelValues(monitoring.OpEval, monitoring.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evals.WithLabelValues(monitoring.OpEval, monitoring.StatusThrown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evals.WithLabelValues(monitoring.OpSetGlobal, monitoring.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContextsActive))

	rt.Dispose()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ContextsActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RuntimesActive))
}

func TestConcurrentContexts(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c, err := rt.CreateContext()
			if err != nil {
				errs <- err
				return
			}
			defer c.Dispose()

			if err := c.SetGlobal("n", Number(float64(n))); err != nil {
				errs <- err
				return
			}
			v, err := c.Eval("n * 2")
			if err != nil {
				errs <- err
				return
			}
			if v.Number() != float64(n*2) {
				errs <- errors.New("context saw another context's global")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()

	rt, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stats().InUse)

	c, err := rt.CreateContext()
	require.NoError(t, err)
	_, err = c.Eval("42")
	require.NoError(t, err)

	require.NoError(t, pool.Release(rt))
	assert.True(t, c.Disposed())
	assert.Equal(t, 2, pool.Stats().Available)
}

func TestPoolReplacesDisposedRuntime(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1)
	require.NoError(t, err)
	defer pool.Close()

	rt, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	rt.Dispose()
	require.NoError(t, pool.Release(rt))

	fresh, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, fresh.Disposed())
	assert.NotEqual(t, rt.ID(), fresh.ID())
	require.NoError(t, pool.Release(fresh))
}

func TestPoolEval(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := pool.Eval(ctx, "Math.sqrt(16)")
		require.NoError(t, err, "iteration %d", i)
		assert.Equal(t, 4.0, v.Number())
	}

	// Each Eval gets a fresh context
	_, err = pool.Eval(ctx, "var leaked = 1")
	require.NoError(t, err)
	v, err := pool.Eval(ctx, "typeof leaked")
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.Str())
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1)
	require.NoError(t, err)
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, pool.Stats().Closed)
}
