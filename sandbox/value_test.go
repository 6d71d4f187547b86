package sandbox

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKinds(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		kind Kind
	}{
		{"zero", Value{}, KindUndefined},
		{"undefined", Undefined(), KindUndefined},
		{"null", Null(), KindNull},
		{"bool", Bool(true), KindBool},
		{"number", Number(1.5), KindNumber},
		{"string", String("s"), KindString},
		{"array", Array(), KindArray},
		{"object", Object(nil), KindObject},
		{"callable", Func(HostFunc(func(...Value) (Value, error) { return Undefined(), nil })), KindCallable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.v.Kind())
		})
	}

	assert.True(t, Undefined().IsNullish())
	assert.True(t, Null().IsNullish())
	assert.False(t, Bool(false).IsNullish())
	assert.Equal(t, "function", KindCallable.String())
}

func TestValueAccessors(t *testing.T) {
	obj := Object(map[string]Value{"b": Number(2), "a": Array(String("x"), Null())})

	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	assert.Equal(t, 2, obj.Len())
	assert.Equal(t, 2.0, obj.Get("b").Number())
	assert.True(t, obj.Get("missing").IsUndefined())
	assert.Equal(t, "x", obj.Get("a").Index(0).Str())
	assert.True(t, obj.Get("a").Index(5).IsUndefined())
	assert.True(t, Number(1).Get("a").IsUndefined())
	assert.Nil(t, String("s").Keys())
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined(), "undefined"},
		{Null(), "null"},
		{Bool(false), "false"},
		{Number(7), "7"},
		{Number(0.5), "0.5"},
		{Number(math.NaN()), "NaN"},
		{Number(math.Inf(-1)), "-Infinity"},
		{String("hi"), `"hi"`},
		{Array(Number(1), String("a")), `[1, "a"]`},
		{Object(map[string]Value{"b": Bool(true), "a": Null()}), `{a: null, b: true}`},
		{Func(HostFunc(nil)), "[Function host]"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}

func TestValueExport(t *testing.T) {
	v := Object(map[string]Value{
		"n":   Number(1),
		"arr": Array(Bool(true), Null()),
		"u":   Undefined(),
	})

	assert.Equal(t, map[string]any{
		"n":   1.0,
		"arr": []any{true, nil},
		"u":   nil,
	}, v.Export())
}

func TestValueMarshalJSON(t *testing.T) {
	v := Object(map[string]Value{
		"n":    Number(1),
		"nan":  Number(math.NaN()),
		"list": Array(String("a"), Undefined()),
		"skip": Undefined(),
		"fn":   Func(HostFunc(nil)),
	})

	data, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"n": 1, "nan": null, "list": ["a", null]}`, string(data))
}

func TestEqual(t *testing.T) {
	fn := HostFunc(func(...Value) (Value, error) { return Undefined(), nil })
	other := HostFunc(func(...Value) (Value, error) { return Null(), nil })

	assert.True(t, Equal(Number(math.NaN()), Number(math.NaN())))
	assert.True(t, Equal(Array(Number(1)), Array(Number(1))))
	assert.False(t, Equal(Array(Number(1)), Array(Number(1), Number(2))))
	assert.True(t, Equal(Object(map[string]Value{"a": Null()}), Object(map[string]Value{"a": Null()})))
	assert.False(t, Equal(Object(map[string]Value{"a": Null()}), Object(map[string]Value{"b": Null()})))
	assert.False(t, Equal(Null(), Undefined()))
	assert.True(t, Equal(Func(fn), Func(fn)))
	assert.False(t, Equal(Func(fn), Func(other)))
}

func TestFromGo(t *testing.T) {
	when := time.UnixMilli(1700000000000)
	fn := func(args ...Value) (Value, error) { return Undefined(), nil }

	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"bool", true, Bool(true)},
		{"int", 3, Number(3)},
		{"uint8", uint8(4), Number(4)},
		{"float32", float32(0.5), Number(0.5)},
		{"string", "s", String("s")},
		{"time", when, Number(1700000000000)},
		{"strings", []string{"a", "b"}, Array(String("a"), String("b"))},
		{"floats", []float64{1, 2}, Array(Number(1), Number(2))},
		{"nested", map[string]any{"a": []any{1, "x", nil}}, Object(map[string]Value{
			"a": Array(Number(1), String("x"), Null()),
		})},
		{"value", String("v"), String("v")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.in)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s, want %s", got, tt.want)
		})
	}

	got, err := FromGo(fn)
	require.NoError(t, err)
	assert.Equal(t, KindCallable, got.Kind())
}

func TestFromGoErrors(t *testing.T) {
	_, err := FromGo(struct{}{})
	assert.ErrorIs(t, err, ErrMarshal)

	_, err = FromGo(map[string]any{"ch": make(chan int)})
	var me *MarshalError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "$.ch", me.Path)

	// A self-referencing host graph is caught by the depth bound
	cyclic := map[string]any{}
	cyclic["self"] = cyclic
	_, err = FromGo(cyclic)
	assert.ErrorIs(t, err, ErrMarshal)

	assert.Panics(t, func() { MustFromGo(struct{}{}) })
}

func TestErrorMatching(t *testing.T) {
	assert.ErrorIs(t, &DisposedError{Kind: "context", ID: "ctx_1"}, ErrDisposed)
	assert.ErrorIs(t, &TimeoutError{Timeout: time.Second}, ErrTimeout)
	assert.ErrorIs(t, &EvalError{Message: "x"}, ErrEval)
	assert.ErrorIs(t, &MarshalError{Path: "$", Reason: "r"}, ErrMarshal)

	cause := assert.AnError
	installErr := &InstallError{Source: "legacy", Cause: cause}
	assert.ErrorIs(t, installErr, ErrInstall)
	assert.ErrorIs(t, installErr, cause)
	assert.Contains(t, installErr.Error(), "legacy")

	assert.Equal(t, "context ctx_1 is disposed", (&DisposedError{Kind: "context", ID: "ctx_1"}).Error())
}
