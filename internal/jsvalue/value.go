package jsvalue

import (
	"context"
	"reflect"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
	"github.com/GriffinCanCode/guesthost/internal/shared/id"
)

// Value is a guest value pinned to the runtime that produced it
type Value struct {
	owner id.RuntimeID
	v     goja.Value
}

// Wrap pins v to rt. Call it only with values rt produced.
func Wrap(rt *sandbox.Runtime, v goja.Value) Value {
	return Value{owner: rt.ID(), v: v}
}

// Owner returns the ID of the runtime the value belongs to
func (v Value) Owner() id.RuntimeID {
	return v.owner
}

func (v Value) value() Value { return v }

// with runs fn under the runtime lock after checking ownership
func (v Value) with(rt *sandbox.Runtime, fn func(vm *goja.Runtime) error) error {
	return rt.With(func(vm *goja.Runtime) error {
		if v.owner == "" || rt.ID() != v.owner {
			return ErrRuntimeMismatch
		}
		return fn(vm)
	})
}

// Raw returns the underlying engine value after checking ownership
func (v Value) Raw(rt *sandbox.Runtime) (goja.Value, error) {
	if err := v.with(rt, func(*goja.Runtime) error { return nil }); err != nil {
		return nil, err
	}
	return v.v, nil
}

// Type returns the guest typeof string
func (v Value) Type(rt *sandbox.Runtime) (string, error) {
	var t string
	err := v.with(rt, func(*goja.Runtime) error {
		t = typeOf(v.v)
		return nil
	})
	return t, err
}

// String converts the value the way the guest's String() would
func (v Value) String(rt *sandbox.Runtime) (string, error) {
	var s string
	err := v.with(rt, func(*goja.Runtime) error {
		s = v.v.String()
		return nil
	})
	return s, err
}

func typeOf(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if _, ok := goja.AssertFunction(v); ok {
		return "function"
	}
	switch v.(type) {
	case *goja.Object:
		if _, ok := v.Export().(*goja.Promise); ok {
			return "promise"
		}
		return "object"
	case *goja.Symbol:
		return "symbol"
	}
	switch v.ExportType().Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int64, reflect.Float64:
		return "number"
	}
	return "bigint"
}

// Global looks up a global binding
func Global(rt *sandbox.Runtime, name string) (Value, error) {
	var out Value
	err := rt.With(func(vm *goja.Runtime) error {
		v := vm.Get(name)
		if v == nil {
			v = goja.Undefined()
		}
		out = Value{owner: rt.ID(), v: v}
		return nil
	})
	return out, err
}

// Eval evaluates src and wraps its completion value
func Eval(ctx context.Context, rt *sandbox.Runtime, name, src string) (Value, error) {
	v, err := rt.Eval(ctx, name, src)
	if err != nil {
		return Value{}, err
	}
	return Wrap(rt, v), nil
}
