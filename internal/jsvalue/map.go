package jsvalue

import (
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// Map is a guest object accessed by string keys
type Map struct {
	Value
	obj *goja.Object
}

// NewMap wraps v, which must be a non-function object
func NewMap(rt *sandbox.Runtime, v Value) (*Map, error) {
	var m *Map
	err := v.with(rt, func(*goja.Runtime) error {
		obj, ok := v.v.(*goja.Object)
		if !ok {
			return &DecodeError{Expected: "object", Got: typeOf(v.v)}
		}
		if _, isFn := goja.AssertFunction(obj); isFn {
			return &DecodeError{Expected: "object", Got: "function"}
		}
		m = &Map{Value: v, obj: obj}
		return nil
	})
	return m, err
}

// Get looks up key, including inherited properties. The bool is false when
// the property does not exist.
func (m *Map) Get(rt *sandbox.Runtime, key string) (Value, bool, error) {
	var (
		out   Value
		found bool
	)
	err := m.with(rt, func(*goja.Runtime) error {
		if v := m.obj.Get(key); v != nil {
			out, found = Value{owner: m.owner, v: v}, true
		}
		return nil
	})
	return out, found, err
}

// keys must run under the runtime lock
func (m *Map) keys() []string {
	all := m.obj.Keys()
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if utf8.ValidString(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Keys returns own enumerable string keys in engine enumeration order
func (m *Map) Keys(rt *sandbox.Runtime) ([]string, error) {
	var keys []string
	err := m.with(rt, func(*goja.Runtime) error {
		keys = m.keys()
		return nil
	})
	return keys, err
}

// Len counts the keys Keys would return
func (m *Map) Len(rt *sandbox.Runtime) (int, error) {
	var n int
	err := m.with(rt, func(*goja.Runtime) error {
		n = len(m.keys())
		return nil
	})
	return n, err
}

// ToMap snapshots the object's own enumerable properties
func (m *Map) ToMap(rt *sandbox.Runtime) (map[string]Value, error) {
	var out map[string]Value
	err := m.with(rt, func(*goja.Runtime) error {
		keys := m.keys()
		out = make(map[string]Value, len(keys))
		for _, k := range keys {
			if v := m.obj.Get(k); v != nil {
				out[k] = Value{owner: m.owner, v: v}
			}
		}
		return nil
	})
	return out, err
}
