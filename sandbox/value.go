package sandbox

import (
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Kind tags the variant held by a Value
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindCallable
)

// String returns the JavaScript typeof-style name of the kind
func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindCallable:
		return "function"
	default:
		return "unknown"
	}
}

// Value is a value that can cross the host/sandbox boundary.
// The zero Value is undefined.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
	fn   Callable
}

// Callable is a function that can be invoked from either side of the boundary.
type Callable interface {
	Call(args ...Value) (Value, error)
}

// HostFunc adapts a Go function to Callable.
type HostFunc func(args ...Value) (Value, error)

// Call invokes f.
func (f HostFunc) Call(args ...Value) (Value, error) {
	return f(args...)
}

// Undefined is the zero Value.
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps b.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps n. All sandbox numbers are float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps s.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Func wraps a callable. Importing it into a context exposes it to scripts.
func Func(fn Callable) Value { return Value{kind: KindCallable, fn: fn} }

// Array wraps elems as an array value.
func Array(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, arr: elems}
}

// Object wraps fields as an object value. A nil map is an empty object.
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

// Accessors return the zero value when v holds a different kind.

func (v Value) Kind() Kind         { return v.kind }
func (v Value) IsUndefined() bool  { return v.kind == KindUndefined }
func (v Value) IsNull() bool       { return v.kind == KindNull }
func (v Value) IsNullish() bool    { return v.kind == KindUndefined || v.kind == KindNull }
func (v Value) Bool() bool         { return v.b }
func (v Value) Number() float64    { return v.n }
func (v Value) Str() string        { return v.s }
func (v Value) Elements() []Value  { return v.arr }
func (v Value) Callable() Callable { return v.fn }

// Fields returns the object's fields; nil for non-objects.
func (v Value) Fields() map[string]Value { return v.obj }

// Len returns the element count of an array or the field count of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	case KindString:
		return len(v.s)
	}
	return 0
}

// Index returns element i of an array, or undefined when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Undefined()
	}
	return v.arr[i]
}

// Get returns an object field, or undefined when absent.
func (v Value) Get(key string) Value {
	if v.kind != KindObject {
		return Undefined()
	}
	return v.obj[key]
}

// Keys returns the object's field names in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Export converts v to a plain Go value: nil, bool, float64, string,
// []any, map[string]any or Callable.
func (v Value) Export() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Export()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Export()
		}
		return out
	case KindCallable:
		return v.fn
	}
	return nil
}

// String renders v the way a REPL would echo it.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb, 0)
	return sb.String()
}

func (v Value) format(sb *strings.Builder, depth int) {
	if depth > 32 {
		sb.WriteString("...")
		return
	}
	switch v.kind {
	case KindUndefined:
		sb.WriteString("undefined")
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(formatNumber(v.n))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.format(sb, depth+1)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			v.obj[k].format(sb, depth+1)
		}
		sb.WriteByte('}')
	case KindCallable:
		if f, ok := v.fn.(*Function); ok {
			sb.WriteString("[Function ")
			sb.WriteString(f.ID().String())
			sb.WriteByte(']')
			return
		}
		sb.WriteString("[Function host]")
	}
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// MarshalJSON encodes v as JSON. Undefined and callables encode as null,
// as do non-finite numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(v.jsonView())
}

func (v Value) jsonView() any {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return nil
		}
		return v.n
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.jsonView()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			if e.kind == KindUndefined || e.kind == KindCallable {
				continue
			}
			out[k] = e.jsonView()
		}
		return out
	case KindCallable:
		return nil
	}
	return v.Export()
}

// Equal reports whether a and b are structurally equal. Numbers compare by
// value with NaN equal to itself; callables compare by identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n || (math.IsNaN(a.n) && math.IsNaN(b.n))
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindCallable:
		return sameCallable(a.fn, b.fn)
	}
	return false
}

func sameCallable(a, b Callable) bool {
	if fa, ok := a.(*Function); ok {
		fb, ok := b.(*Function)
		return ok && fa.same(fb)
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() {
		return false
	}
	switch ra.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Chan:
		return ra.Pointer() == rb.Pointer()
	}
	return false
}

// FromGo converts a host-native Go value to a Value. Supported: nil, bool,
// all integer and float kinds, string, time.Time (epoch milliseconds),
// []any, []Value, []string, []float64, map[string]any, map[string]Value,
// Value, Callable and func(...Value) (Value, error).
func FromGo(x any) (Value, error) {
	return fromGo(x, "$", 0, DefaultMaxDepth)
}

// MustFromGo is FromGo that panics on unsupported input. For literals in
// host code and tests.
func MustFromGo(x any) Value {
	v, err := FromGo(x)
	if err != nil {
		panic(err)
	}
	return v
}

func fromGo(x any, path string, depth, maxDepth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, &MarshalError{Path: path, Reason: "maximum depth exceeded (cyclic value?)"}
	}

	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case time.Time:
		return Number(float64(t.UnixMilli())), nil
	case func(args ...Value) (Value, error):
		return Func(HostFunc(t)), nil
	case Callable:
		return Func(t), nil
	case []Value:
		return Array(t...), nil
	case []string:
		elems := make([]Value, len(t))
		for i, s := range t {
			elems[i] = String(s)
		}
		return Array(elems...), nil
	case []float64:
		elems := make([]Value, len(t))
		for i, n := range t {
			elems[i] = Number(n)
		}
		return Array(elems...), nil
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			ev, err := fromGo(e, path+"["+strconv.Itoa(i)+"]", depth+1, maxDepth)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		return Array(elems...), nil
	case map[string]Value:
		return Object(t), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := fromGo(e, path+"."+k, depth+1, maxDepth)
			if err != nil {
				return Value{}, err
			}
			fields[k] = ev
		}
		return Object(fields), nil
	}

	return Value{}, &MarshalError{Path: path, Reason: "unsupported host type " + reflect.TypeOf(x).String()}
}
