package sandbox

import (
	"context"
	"strconv"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/internal/shared/id"
)

// Function is a host handle to a function that lives inside a Context.
// Calls go through the same boundary as Eval: engine lock, watchdog and
// marshalling. A handle is only valid while its Context is alive.
type Function struct {
	id    id.FunctionID
	ctx   *Context
	call  goja.Callable
	value *goja.Object
}

func (c *Context) newFunction(fn goja.Callable, obj *goja.Object) *Function {
	return &Function{
		id:    id.NewFunctionID(),
		ctx:   c,
		call:  fn,
		value: obj,
	}
}

// ID returns the handle identifier. Exporting the same sandbox function
// twice yields two handles with different IDs; use Equal to compare them.
func (f *Function) ID() id.FunctionID { return f.id }

// Context returns the context the function belongs to
func (f *Function) Context() *Context { return f.ctx }

// Call invokes the function with this set to undefined.
func (f *Function) Call(args ...Value) (Value, error) {
	return f.CallContext(context.Background(), args...)
}

// CallContext is Call that also aborts when ctx is done.
func (f *Function) CallContext(ctx context.Context, args ...Value) (Value, error) {
	return f.ctx.do(ctx, monitoring.OpCall, func(vm *goja.Runtime) (Value, error) {
		im := f.ctx.newImporter(vm)
		jsArgs := make([]goja.Value, len(args))
		for i, a := range args {
			gv, err := im.toJS(a, "arguments["+strconv.Itoa(i)+"]", 0)
			if err != nil {
				return Value{}, err
			}
			jsArgs[i] = gv
		}

		res, err := f.call(goja.Undefined(), jsArgs...)
		if err != nil {
			return Value{}, err
		}
		return f.ctx.export(vm, res)
	})
}

func (f *Function) same(o *Function) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.ctx == o.ctx && f.value.SameAs(o.value)
}
