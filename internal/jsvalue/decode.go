package jsvalue

import (
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// Decode converts a guest value into T.
//
// The value is exported from the engine and then decoded through JSON, so
// T follows encoding/json rules. undefined and null only decode into
// pointers, interfaces, maps and slices.
func Decode[T any](rt *sandbox.Runtime, v Value) (T, error) {
	var out T
	err := v.with(rt, func(*goja.Runtime) error {
		var err error
		out, err = decode[T](v.v)
		return err
	})
	return out, err
}

// decode must run under the runtime lock
func decode[T any](v goja.Value) (T, error) {
	var out T
	target := reflect.TypeOf((*T)(nil)).Elem()

	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		switch target.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
			return out, nil
		}
		return out, &DecodeError{Expected: target.String(), Got: typeOf(v)}
	}
	if _, ok := goja.AssertFunction(v); ok {
		return out, &DecodeError{Expected: target.String(), Got: "function"}
	}

	exported := v.Export()
	if direct, ok := exported.(T); ok {
		return direct, nil
	}

	data, err := sonic.Marshal(exported)
	if err != nil {
		return out, &DecodeError{Expected: target.String(), Got: typeOf(v), Err: err}
	}
	if err := sonic.Unmarshal(data, &out); err != nil {
		return out, &DecodeError{Expected: target.String(), Got: typeOf(v), Err: err}
	}
	return out, nil
}
