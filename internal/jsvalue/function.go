package jsvalue

import (
	"context"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// Function is a callable guest value
type Function struct {
	Value
	fn goja.Callable
}

// NewFunction wraps v, which must be callable
func NewFunction(rt *sandbox.Runtime, v Value) (*Function, error) {
	var f *Function
	err := v.with(rt, func(*goja.Runtime) error {
		fn, ok := goja.AssertFunction(v.v)
		if !ok {
			return &DecodeError{Expected: "function", Got: typeOf(v.v)}
		}
		f = &Function{Value: v, fn: fn}
		return nil
	})
	return f, err
}

// wrapped is implemented by Value and every handle embedding it
type wrapped interface {
	value() Value
}

// Call invokes the function with this set to undefined. Arguments may be
// Values from the same runtime or plain Go values.
func (f *Function) Call(ctx context.Context, rt *sandbox.Runtime, args ...interface{}) (Value, error) {
	if rt.Closed() {
		return Value{}, sandbox.ErrRuntimeClosed
	}

	var out Value
	err := rt.Guarded(ctx, func(vm *goja.Runtime) error {
		if rt.ID() != f.owner {
			return ErrRuntimeMismatch
		}
		converted := make([]goja.Value, len(args))
		for i, arg := range args {
			switch a := arg.(type) {
			case wrapped:
				v := a.value()
				if v.owner != f.owner {
					return ErrRuntimeMismatch
				}
				converted[i] = v.v
			case goja.Value:
				converted[i] = a
			default:
				converted[i] = vm.ToValue(a)
			}
		}
		ret, err := f.fn(goja.Undefined(), converted...)
		if err != nil {
			return err
		}
		out = Value{owner: f.owner, v: ret}
		return nil
	})
	return out, err
}
