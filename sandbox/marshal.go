package sandbox

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// maxArrayLength bounds arrays exported to the host so that a sparse array
// with a huge length cannot stall the boundary.
const maxArrayLength = 1 << 24

// walk is the per-crossing cost limit shared by both marshalling
// directions. Host values are trees, so a graph that shares sub-objects is
// charged once per reference.
type walk struct {
	ctx    *Context
	limit  int
	budget int
}

func (c *Context) newWalk() walk {
	return walk{ctx: c, limit: c.rt.config.MaxNodes, budget: c.rt.config.MaxNodes}
}

// visit charges one value to the walk. It fails once the budget is spent or
// the crossing has been interrupted.
func (w *walk) visit(path string) error {
	if reason := w.ctx.halted(); reason != 0 {
		return &haltedError{reason: reason}
	}
	if w.budget <= 0 {
		return &MarshalError{Path: path, Reason: fmt.Sprintf("value exceeds %d nodes", w.limit)}
	}
	w.budget--
	return nil
}

// exporter converts engine values to host values for one crossing. It tracks
// the objects on the current path; meeting one again is a cycle.
type exporter struct {
	walk
	vm       *goja.Runtime
	maxDepth int
	active   map[*goja.Object]struct{}
}

func (c *Context) newExporter(vm *goja.Runtime) *exporter {
	return &exporter{
		walk:     c.newWalk(),
		vm:       vm,
		maxDepth: c.rt.config.MaxDepth,
		active:   make(map[*goja.Object]struct{}),
	}
}

func (e *exporter) export(val goja.Value, path string, depth int) (Value, error) {
	if err := e.visit(path); err != nil {
		return Value{}, err
	}
	if val == nil || goja.IsUndefined(val) {
		return Undefined(), nil
	}
	if goja.IsNull(val) {
		return Null(), nil
	}

	obj, ok := val.(*goja.Object)
	if !ok {
		return exportPrimitive(val, path)
	}

	if depth >= e.maxDepth {
		return Value{}, &MarshalError{Path: path, Reason: fmt.Sprintf("maximum depth %d exceeded", e.maxDepth)}
	}

	if fn, ok := goja.AssertFunction(obj); ok {
		return Func(e.ctx.newFunction(fn, obj)), nil
	}

	if _, seen := e.active[obj]; seen {
		return Value{}, &MarshalError{Path: path, Reason: "cyclic reference"}
	}
	e.active[obj] = struct{}{}
	defer delete(e.active, obj)

	switch obj.ClassName() {
	case "Array":
		return e.exportArray(obj, path, depth)
	case "Error":
		return e.exportError(obj, path, depth)
	case "Date":
		return Number(obj.ToFloat()), nil
	}
	return e.exportObject(obj, path, depth)
}

func exportPrimitive(val goja.Value, path string) (Value, error) {
	switch x := val.Export().(type) {
	case bool:
		return Bool(x), nil
	case int64:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	}
	return Value{}, &MarshalError{Path: path, Reason: fmt.Sprintf("unsupported sandbox type %T", val.Export())}
}

func (e *exporter) exportArray(obj *goja.Object, path string, depth int) (Value, error) {
	length := obj.Get("length").ToInteger()
	if length > maxArrayLength {
		return Value{}, &MarshalError{Path: path, Reason: fmt.Sprintf("array length %d exceeds %d", length, maxArrayLength)}
	}
	if length > int64(e.budget) {
		return Value{}, &MarshalError{Path: path, Reason: fmt.Sprintf("array length %d exceeds %d nodes", length, e.limit)}
	}

	elems := make([]Value, length)
	for i := range elems {
		idx := strconv.Itoa(i)
		ev, err := e.export(obj.Get(idx), path+"["+idx+"]", depth+1)
		if err != nil {
			return Value{}, err
		}
		elems[i] = ev
	}
	return Array(elems...), nil
}

func (e *exporter) exportObject(obj *goja.Object, path string, depth int) (Value, error) {
	keys := obj.Keys()
	fields := make(map[string]Value, len(keys))
	for _, k := range keys {
		fv, err := e.export(obj.Get(k), path+"."+k, depth+1)
		if err != nil {
			return Value{}, err
		}
		fields[k] = fv
	}
	return Object(fields), nil
}

// exportError keeps the non-enumerable name, message and stack that a plain
// key walk would drop.
func (e *exporter) exportError(obj *goja.Object, path string, depth int) (Value, error) {
	v, err := e.exportObject(obj, path, depth)
	if err != nil {
		return Value{}, err
	}
	for _, k := range []string{"name", "message", "stack"} {
		if _, ok := v.obj[k]; ok {
			continue
		}
		if pv := obj.Get(k); pv != nil && !goja.IsUndefined(pv) {
			v.obj[k] = String(pv.String())
		}
	}
	return v, nil
}

// importer converts host values to engine values for one crossing. Host
// graphs carry no cheap identity, so cycles are caught by the depth limit.
type importer struct {
	walk
	vm       *goja.Runtime
	maxDepth int
}

func (c *Context) newImporter(vm *goja.Runtime) *importer {
	return &importer{walk: c.newWalk(), vm: vm, maxDepth: c.rt.config.MaxDepth}
}

func (im *importer) toJS(v Value, path string, depth int) (goja.Value, error) {
	if depth > im.maxDepth {
		return nil, &MarshalError{Path: path, Reason: fmt.Sprintf("maximum depth %d exceeded (cyclic value?)", im.maxDepth)}
	}
	if err := im.visit(path); err != nil {
		return nil, err
	}

	switch v.kind {
	case KindUndefined:
		return goja.Undefined(), nil
	case KindNull:
		return goja.Null(), nil
	case KindBool:
		return im.vm.ToValue(v.b), nil
	case KindNumber:
		return im.vm.ToValue(v.n), nil
	case KindString:
		return im.vm.ToValue(v.s), nil
	case KindArray:
		items := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			gv, err := im.toJS(e, path+"["+strconv.Itoa(i)+"]", depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = gv
		}
		return im.vm.NewArray(items...), nil
	case KindObject:
		obj := im.vm.NewObject()
		for k, e := range v.obj {
			gv, err := im.toJS(e, path+"."+k, depth+1)
			if err != nil {
				return nil, err
			}
			// Define rather than assign so keys like __proto__ stay plain data
			if err := obj.DefineDataProperty(k, gv, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
				return nil, &MarshalError{Path: path + "." + k, Reason: err.Error()}
			}
		}
		return obj, nil
	case KindCallable:
		return im.importCallable(v.fn, path)
	}
	return nil, &MarshalError{Path: path, Reason: "unknown value kind " + v.kind.String()}
}

func (im *importer) importCallable(fn Callable, path string) (goja.Value, error) {
	if fn == nil {
		return nil, &MarshalError{Path: path, Reason: "nil callable"}
	}
	if f, ok := fn.(*Function); ok {
		if f.ctx != im.ctx {
			return nil, &MarshalError{Path: path, Reason: "function handle belongs to another context"}
		}
		return f.value, nil
	}
	return im.ctx.hostFunction(im.vm, fn), nil
}

// hostFunction exposes a host Callable to scripts. The engine lock is
// released while host code runs so the host may call back into the runtime.
func (c *Context) hostFunction(vm *goja.Runtime, fn Callable) goja.Value {
	return vm.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]Value, len(call.Arguments))
		exp := c.newExporter(vm)
		for i, a := range call.Arguments {
			av, err := exp.export(a, "arguments["+strconv.Itoa(i)+"]", 0)
			if err != nil {
				panic(vm.NewTypeError(err.Error()))
			}
			args[i] = av
		}

		res, err := c.callHost(fn, args)
		if err != nil {
			panic(vm.NewGoError(err))
		}

		out, err := c.newImporter(vm).toJS(res, "$", 0)
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return out
	})
}

func (c *Context) callHost(fn Callable, args []Value) (res Value, err error) {
	c.rt.mu.Unlock()
	defer c.rt.mu.Lock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host function panicked: %v", r)
		}
	}()
	return fn.Call(args...)
}

// thrownValue marshals a thrown value for an EvalError, falling back to its
// string form when the value itself cannot cross. An interrupted walk is
// returned as an error.
func (c *Context) thrownValue(vm *goja.Runtime, ex *goja.Exception) (Value, string, error) {
	thrown := ex.Value()

	var v Value
	err := c.protect(vm, func() error {
		var merr error
		v, merr = c.newExporter(vm).export(thrown, "$", 0)
		return merr
	})
	if err != nil {
		if _, ok := interruptOf(err); ok {
			return Value{}, "", err
		}
		var me *MarshalError
		if !errors.As(err, &me) {
			return String(safeString(ex.Error)), safeString(ex.Error), nil
		}
		v = String(safeString(thrown.String))
	}
	return v, thrownMessage(v, ex), nil
}

func thrownMessage(v Value, ex *goja.Exception) string {
	switch v.kind {
	case KindString:
		return v.s
	case KindObject:
		msg := v.Get("message")
		name := v.Get("name")
		if msg.kind == KindString {
			if name.kind == KindString && name.s != "" {
				return name.s + ": " + msg.s
			}
			return msg.s
		}
	}
	if v.kind != KindObject && v.kind != KindArray {
		return v.String()
	}
	return safeString(ex.Error)
}

func safeString(fn func() string) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = "uncaught exception"
		}
	}()
	return fn()
}
